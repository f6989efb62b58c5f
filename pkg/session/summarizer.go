package session

import (
	"context"
	"strings"
)

// SummaryFunc merges the previous summary with a transcript of evicted
// turns into a fresh running summary. Backed by the external text
// generator in production, a stub in tests.
type SummaryFunc func(ctx context.Context, existingSummary, transcript string) (string, error)

// Summarizer folds evicted turns into a window's running summary.
type Summarizer struct {
	summarize SummaryFunc
}

func NewSummarizer(summarize SummaryFunc) *Summarizer {
	return &Summarizer{summarize: summarize}
}

// Summarize drains the window's pending evictions and updates the
// summary. Failures leave the old summary in place and re-queue nothing:
// the tier is best-effort and allowed to lag, never to block a turn.
// Callers must hold the owning user's lock.
func (s *Summarizer) Summarize(ctx context.Context, w *Window) error {
	if s == nil || s.summarize == nil {
		return nil
	}
	pending := w.TakePending()
	if len(pending) == 0 {
		return nil
	}

	transcript := renderTranscript(pending)
	summary, err := s.summarize(ctx, w.Summary(), transcript)
	if err != nil {
		return err
	}
	if strings.TrimSpace(summary) != "" {
		w.SetSummary(strings.TrimSpace(summary))
	}
	return nil
}

func renderTranscript(turns []Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString("用户: " + turn.User + "\n")
		b.WriteString("小厨神: " + turn.Reply + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
