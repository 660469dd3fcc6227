package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"

	DefaultLimit = 100
	MaxLimit     = 500
)

var (
	ErrUnknownFormat = errors.New("unknown transcript format")
	ErrBadOffset     = errors.New("offset must not be negative")
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

type RoomMeta struct {
	ID        domain.RoomID
	Name      string
	CreatedAt time.Time
}

type Options struct {
	Format Format
	Offset int
	Limit  int
}

type Document struct {
	ContentType string
	Filename    string
	Body        []byte
	Total       int
	Returned    int
}

type jsonDocument struct {
	RoomID   domain.RoomID `json:"roomId"`
	RoomName string        `json:"roomName"`
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	Limit    int           `json:"limit"`
	Entries  []Entry       `json:"entries"`
}

// Export orders entries chronologically, cuts the requested page and renders it.
func Export(room RoomMeta, entries []Entry, opts Options) (Document, error) {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Offset < 0 {
		return Document{}, ErrBadOffset
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	page := paginate(sorted, opts.Offset, opts.Limit)
	doc := Document{Total: len(sorted), Returned: len(page)}
	base := "transcript-" + string(room.ID)

	switch opts.Format {
	case FormatJSON:
		body, err := json.MarshalIndent(jsonDocument{
			RoomID: room.ID, RoomName: room.Name, Total: len(sorted),
			Offset: opts.Offset, Limit: opts.Limit, Entries: page,
		}, "", "  ")
		if err != nil {
			return Document{}, err
		}
		doc.ContentType, doc.Filename, doc.Body = "application/json", base+".json", body
	case FormatText:
		doc.ContentType, doc.Filename, doc.Body = "text/plain; charset=utf-8", base+".txt", renderText(room, page)
	case FormatMarkdown:
		doc.ContentType, doc.Filename, doc.Body = "text/markdown; charset=utf-8", base+".md", renderMarkdown(room, page, len(sorted))
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	return doc, nil
}

func paginate(entries []Entry, offset, limit int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

func speaker(e Entry) string {
	switch {
	case e.SpeakerName != "":
		return e.SpeakerName
	case e.SpeakerID != "":
		return e.SpeakerID
	case e.Role == domain.RoleAssistant:
		return "AI"
	}
	return string(e.Role)
}

func renderText(room RoomMeta, page []Entry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript of %s (%s)\n\n", displayName(room), room.ID)
	for _, e := range page {
		ts := e.Timestamp.UTC().Format(time.RFC3339)
		if e.Kind == KindSummary {
			fmt.Fprintf(&b, "[%s] (summary) %s\n", ts, e.Text)
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", ts, speaker(e), e.Text)
	}
	return []byte(b.String())
}

func renderMarkdown(room RoomMeta, page []Entry, total int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript: %s\n\n", displayName(room))
	fmt.Fprintf(&b, "- Room: `%s`\n", room.ID)
	if !room.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Created: %s\n", room.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Entries: %d of %d\n\n", len(page), total)
	for _, e := range page {
		ts := e.Timestamp.UTC().Format("15:04:05")
		if e.Kind == KindSummary {
			fmt.Fprintf(&b, "> **Summary** _%s_: %s\n\n", ts, e.Text)
			continue
		}
		fmt.Fprintf(&b, "**%s** _%s_\n\n%s\n\n", speaker(e), ts, e.Text)
	}
	return []byte(b.String())
}

func displayName(room RoomMeta) string {
	if room.Name != "" {
		return room.Name
	}
	return string(room.ID)
}
