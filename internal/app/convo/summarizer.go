package convo

import (
	"context"
	"strings"

	"github.com/dkeye/voxroom/internal/domain"
)

const sentenceRunes = 160

// Summarizer condenses a conversation into a short text. A leading system
// message carries the previous summary and must be folded into the result.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []domain.Message) (string, error)
}

// DigestSummarizer keeps the first sentence of each message, newest last, within MaxChars.
type DigestSummarizer struct {
	MaxChars int
}

func (d DigestSummarizer) Summarize(_ context.Context, msgs []domain.Message) (string, error) {
	limit := d.MaxChars
	if limit <= 0 {
		limit = 2000
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == domain.RoleSystem {
			for _, l := range strings.Split(strings.TrimSpace(msg.Content), "\n") {
				if l != "" {
					lines = append(lines, l)
				}
			}
			continue
		}
		who := "assistant"
		if msg.Role == domain.RoleUser {
			who = msg.SpeakerName
		}
		lines = append(lines, "- "+who+": "+firstSentence(stripFrame(msg)))
	}
	// drop from the front so the most recent context survives
	for len(lines) > 0 && totalLen(lines) > limit {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n"), nil
}

func stripFrame(msg domain.Message) string {
	if msg.Role != domain.RoleUser {
		return msg.Content
	}
	prefix := FrameUtterance(msg.SpeakerName, "")
	return strings.TrimPrefix(msg.Content, prefix)
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	if r := []rune(s); len(r) > sentenceRunes {
		return string(r[:sentenceRunes]) + "…"
	}
	return s
}

func totalLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
