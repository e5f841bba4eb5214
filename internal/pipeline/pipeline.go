package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nlquery/nlquery/internal/history"
	"github.com/nlquery/nlquery/internal/nl2sql"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/sqlguard"
)

type FailureKind string

const (
	FailureNone       FailureKind = "none"
	FailureValidation FailureKind = "validation"
	FailureGeneration FailureKind = "generation"
	FailurePolicy     FailureKind = "policy"
	FailureExecution  FailureKind = "execution"
	FailureTimeout    FailureKind = "timeout"
)

const (
	policyRejectedAnswer  = "I can only run read-only queries."
	executionFailedAnswer = "I had trouble running that query."
	noRecordsAnswer       = "No matching records found."
)

// Outcome is the result of one question. Kind is FailureNone on success and
// Err is set otherwise.
type Outcome struct {
	Question   string
	SQL        string
	Answer     string
	Columns    []string
	Rows       [][]any
	Truncated  bool
	Kind       FailureKind
	Err        error
	SessionID  string
	ExchangeID string
}

func (o Outcome) Failed() bool {
	return o.Kind != FailureNone
}

// ErrorCode is a stable code for a failed outcome and empty on success.
func (o Outcome) ErrorCode() string {
	switch o.Kind {
	case FailureValidation:
		var validationErr *ValidationError
		if errors.As(o.Err, &validationErr) {
			return validationErr.Code
		}
		return "INVALID_QUESTION"
	case FailureGeneration:
		return "SQL_GENERATION_FAILED"
	case FailurePolicy:
		return "SQL_NOT_ALLOWED"
	case FailureExecution:
		return "QUERY_FAILED"
	case FailureTimeout:
		return "TIMEOUT"
	default:
		return ""
	}
}

type Config struct {
	MaxQuestionLength int
	Summarize         bool
	FallbackAnswer    string
	RowLimit          int
}

type Dependencies struct {
	Schema      schema.Description
	Translator  nl2sql.Translator
	Policy      sqlguard.QueryPolicy
	Engine      query.Engine
	Synthesizer *Synthesizer
	History     *history.Registry
	Logger      *slog.Logger
}

// Pipeline answers questions: validate, translate, gate, execute, answer.
type Pipeline struct {
	cfg         Config
	schema      schema.Description
	translator  nl2sql.Translator
	policy      sqlguard.QueryPolicy
	engine      query.Engine
	synthesizer *Synthesizer
	history     *history.Registry
	logger      *slog.Logger
}

func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if deps.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("query policy is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if err := deps.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if strings.TrimSpace(cfg.FallbackAnswer) == "" {
		return nil, fmt.Errorf("fallback answer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		cfg:         cfg,
		schema:      deps.Schema.Copy(),
		translator:  deps.Translator,
		policy:      deps.Policy,
		engine:      deps.Engine,
		synthesizer: deps.Synthesizer,
		history:     deps.History,
		logger:      logger,
	}, nil
}

func (p *Pipeline) Schema() schema.Description {
	return p.schema.Copy()
}

// Translate validates the question and generates SQL without running it.
func (p *Pipeline) Translate(ctx context.Context, question string) (nl2sql.Result, error) {
	question, err := ValidateQuestion(question, p.cfg.MaxQuestionLength)
	if err != nil {
		return nl2sql.Result{}, err
	}
	return p.translate(ctx, question)
}

// Ask runs the whole pipeline for one question. Failures are reported in the
// returned Outcome. The outcome is recorded in session when it is non-nil.
func (p *Pipeline) Ask(ctx context.Context, session *history.Session, question string) Outcome {
	outcome := p.ask(ctx, question)
	if outcome.Question == "" {
		outcome.Question = strings.TrimSpace(question)
	}
	observability.ObservePipelineOutcome(string(outcome.Kind))
	if session != nil {
		exchange := history.Exchange{
			Question:    outcome.Question,
			SQL:         outcome.SQL,
			Answer:      outcome.Answer,
			FailureKind: string(outcome.Kind),
		}
		if p.history != nil {
			exchange = p.history.Record(session, exchange)
		} else {
			exchange = session.Record(exchange)
		}
		outcome.SessionID = exchange.SessionID
		outcome.ExchangeID = exchange.ID
	}
	return outcome
}

func (p *Pipeline) ask(ctx context.Context, rawQuestion string) Outcome {
	logger := observability.LoggerWithTrace(ctx, p.logger)

	question, err := ValidateQuestion(rawQuestion, p.cfg.MaxQuestionLength)
	if err != nil {
		return Outcome{Kind: FailureValidation, Err: err, Answer: err.Error()}
	}
	logger.Info("question received", slog.String("question", truncate(question, 120)))

	translated, err := p.translate(ctx, question)
	if err != nil {
		logger.Warn("sql generation failed", slog.Any("error", err))
		return Outcome{Question: question, Kind: failureKind(err, FailureGeneration), Err: err, Answer: p.cfg.FallbackAnswer}
	}
	logger.Debug("sql generated", slog.String("sql", translated.SQL))

	outcome := Outcome{Question: question, SQL: translated.SQL}
	if err := p.policy.Check(translated.SQL); err != nil {
		reason := "rejected"
		var policyErr *sqlguard.PolicyError
		if errors.As(err, &policyErr) {
			reason = policyErr.Code()
		}
		observability.IncrementPolicyRejection(reason)
		logger.Warn("generated sql rejected", slog.String("reason", reason), slog.String("sql", translated.SQL))
		outcome.Kind, outcome.Err, outcome.Answer = FailurePolicy, err, policyRejectedAnswer
		return outcome
	}
	statement, err := sqlguard.Normalize(translated.SQL)
	if err != nil {
		outcome.Kind, outcome.Err, outcome.Answer = FailurePolicy, err, policyRejectedAnswer
		return outcome
	}

	start := time.Now()
	result, err := p.engine.Execute(ctx, query.Request{SQL: statement, RowLimit: p.cfg.RowLimit})
	observability.ObserveQuery(err, time.Since(start))
	if err != nil {
		logger.Warn("query execution failed", slog.Any("error", err))
		outcome.Kind, outcome.Err, outcome.Answer = failureKind(err, FailureExecution), err, executionFailedAnswer
		return outcome
	}
	logger.Info("query executed",
		slog.Int("rows", len(result.Rows)),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", result.Duration),
	)

	outcome.Kind = FailureNone
	outcome.Columns = result.Columns
	outcome.Rows = result.Rows
	outcome.Truncated = result.Truncated
	outcome.Answer = p.answer(ctx, question, statement, result)
	return outcome
}

func (p *Pipeline) translate(ctx context.Context, question string) (nl2sql.Result, error) {
	start := time.Now()
	result, err := p.translator.Translate(ctx, nl2sql.Request{Question: question, Schema: p.schema})
	observability.ObserveLLMCall("sql", err, time.Since(start))
	return result, err
}

func (p *Pipeline) answer(ctx context.Context, question, sql string, result query.Result) string {
	if p.cfg.Summarize && p.synthesizer != nil {
		return p.synthesizer.Summarize(ctx, question, sql, result)
	}
	return describeResult(result)
}

func describeResult(result query.Result) string {
	switch n := len(result.Rows); {
	case n == 0:
		return noRecordsAnswer
	case n == 1:
		return "I found 1 record."
	case result.Truncated:
		return fmt.Sprintf("I found more than %d records.", n)
	default:
		return fmt.Sprintf("I found %d records.", n)
	}
}

func failureKind(err error, fallback FailureKind) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return fallback
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
