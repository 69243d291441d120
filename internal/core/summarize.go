package core

import (
	"context"
	"fmt"
	"strings"

	"medtriage/internal/logger"
	"medtriage/internal/metrics"
	"medtriage/pkg"
)

// attachSummary runs the summarization collaborator for a just-completed
// intake and records the result. It is deliberately split from the
// completion transition: the bounded collaborator call happens outside any
// store transaction, and the write is conditioned on the summary still
// being absent so retries are idempotent. Failures degrade to a placeholder
// and never surface to the beneficiary.
func (s *Service) attachSummary(ctx context.Context, id string, answers map[string]string) {
	text, err := s.llm.Summarize(ctx, buildSummaryPrompt(answers))
	if err != nil || strings.TrimSpace(text) == "" {
		metrics.SummaryFallbacks.Inc()
		logger.Warn("summary fallback", "session", id, "err", err)
		text = summaryPlaceholder
	}
	err = s.store.Mutate(ctx, id, func(sess *pkg.Session) ([]pkg.Message, error) {
		if sess.Summary != nil {
			return nil, nil
		}
		sess.Summary = &text
		now := s.now()
		return []pkg.Message{
			{
				SessionID: id,
				Role:      pkg.RoleAssistant,
				Content:   text,
				Timestamp: now,
				Phase:     pkg.PhaseSummary,
			},
			systemMessage(id, now, intakeCompleteNotice),
		}, nil
	})
	if err != nil {
		logger.Error("failed to record summary", "session", id, "err", err)
	}
}

// buildSummaryPrompt lays the recorded answers out in schema order as
// question/answer pairs for the model.
func buildSummaryPrompt(answers map[string]string) string {
	var b strings.Builder
	b.WriteString("Please summarize these patient answers:\n")
	for _, q := range IntakeSchema {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\nQuestion: %s\nAnswer: %s\n", q.Prompt, a)
	}
	return b.String()
}
