package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sample() []Entry {
	return []Entry{
		{RoomID: "r1", Kind: KindMessage, Role: domain.RoleAssistant, Text: "Welcome!", Timestamp: t0.Add(2 * time.Second)},
		{RoomID: "r1", Kind: KindMessage, Role: domain.RoleUser, SpeakerID: "u1", SpeakerName: "Alice", Text: "Hi", Timestamp: t0},
		{RoomID: "r1", Kind: KindSummary, Role: domain.RoleSystem, Text: "They said hello.", Timestamp: t0.Add(3 * time.Second)},
		{RoomID: "r1", Kind: KindMessage, Role: domain.RoleUser, SpeakerID: "u2", Text: "Hey", Timestamp: t0},
	}
}

func TestExport_JSONIsChronologicalAndStable(t *testing.T) {
	t.Parallel()
	doc, err := Export(RoomMeta{ID: "r1", Name: "Standup"}, sample(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", doc.ContentType)
	assert.Equal(t, "transcript-r1.json", doc.Filename)

	var got jsonDocument
	require.NoError(t, json.Unmarshal(doc.Body, &got))
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, DefaultLimit, got.Limit)
	texts := make([]string, 0, len(got.Entries))
	for _, e := range got.Entries {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"Hi", "Hey", "Welcome!", "They said hello."}, texts)
}

func TestExport_Text(t *testing.T) {
	t.Parallel()
	doc, err := Export(RoomMeta{ID: "r1"}, sample(), Options{Format: FormatText})
	require.NoError(t, err)
	body := string(doc.Body)
	assert.True(t, strings.HasPrefix(body, "Transcript of r1 (r1)"))
	assert.Contains(t, body, "[2026-03-01T12:00:00Z] Alice: Hi\n")
	assert.Contains(t, body, "] u2: Hey\n")
	assert.Contains(t, body, "] AI: Welcome!\n")
	assert.Contains(t, body, "(summary) They said hello.")
}

func TestExport_Markdown(t *testing.T) {
	t.Parallel()
	doc, err := Export(RoomMeta{ID: "r1", Name: "Standup"}, sample(), Options{Format: FormatMarkdown, Limit: 2})
	require.NoError(t, err)
	body := string(doc.Body)
	assert.Contains(t, body, "# Transcript: Standup")
	assert.Contains(t, body, "- Entries: 2 of 4")
	assert.Contains(t, body, "**Alice** _12:00:00_\n\nHi")
	assert.NotContains(t, body, "Welcome!")
	assert.Equal(t, 2, doc.Returned)
}

func TestExport_Pagination(t *testing.T) {
	t.Parallel()
	var many []Entry
	for i := 0; i < 620; i++ {
		many = append(many, Entry{RoomID: "r1", Text: fmt.Sprint(i), Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}

	tests := []struct {
		name         string
		opts         Options
		wantReturned int
		wantFirst    string
	}{
		{"default limit", Options{}, DefaultLimit, "0"},
		{"limit capped", Options{Limit: 10_000}, MaxLimit, "0"},
		{"offset", Options{Offset: 610, Limit: 50}, 10, "610"},
		{"offset past end", Options{Offset: 1000}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := Export(RoomMeta{ID: "r1"}, many, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, 620, doc.Total)
			assert.Equal(t, tt.wantReturned, doc.Returned)
			var got jsonDocument
			require.NoError(t, json.Unmarshal(doc.Body, &got))
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, got.Entries[0].Text)
			} else {
				assert.Empty(t, got.Entries)
			}
		})
	}
}

func TestExport_Rejects(t *testing.T) {
	t.Parallel()
	_, err := Export(RoomMeta{ID: "r1"}, nil, Options{Offset: -1})
	assert.ErrorIs(t, err, ErrBadOffset)
	_, err = Export(RoomMeta{ID: "r1"}, nil, Options{Format: "pdf"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "md": FormatMarkdown, " text ": FormatText, "txt": FormatText} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	for _, e := range sample() {
		require.NoError(t, s.Append(ctx, e))
	}
	require.NoError(t, s.Append(ctx, Entry{RoomID: "other", Text: "x"}))

	got, err := s.List(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got, 4)
	got[0].Text = "mutated"
	again, _ := s.List(ctx, "r1")
	assert.Equal(t, "Welcome!", again[0].Text)

	none, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFromMessage(t *testing.T) {
	t.Parallel()
	e := FromMessage("r1", domain.Message{Role: domain.RoleUser, Content: "[Alice]: hi", SpeakerID: "u1", SpeakerName: "Alice", Timestamp: t0})
	assert.Equal(t, KindMessage, e.Kind)
	assert.Equal(t, "hi", e.Text)
	assert.Equal(t, domain.RoomID("r1"), e.RoomID)
}
