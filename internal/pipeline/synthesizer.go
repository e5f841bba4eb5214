package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/nl2sql"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/query"
)

// Synthesizer turns a query result into a short natural-language answer.
type Synthesizer struct {
	completer nl2sql.Completer
	fallback  string
	logger    *slog.Logger
}

func NewSynthesizer(completer nl2sql.Completer, fallback string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Synthesizer{completer: completer, fallback: fallback, logger: logger}
}

// Summarize never fails: a completion error or blank completion yields the
// fallback answer.
func (s *Synthesizer) Summarize(ctx context.Context, question, sql string, result query.Result) string {
	start := time.Now()
	answer, err := s.completer.Complete(ctx, nl2sql.BuildAnswerPrompt(question, sql, result))
	observability.ObserveLLMCall("answer", err, time.Since(start))
	if err != nil {
		observability.LoggerWithTrace(ctx, s.logger).Warn("answer synthesis failed", slog.Any("error", err))
		return s.fallback
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s.fallback
	}
	return answer
}
