package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Completer is a blocking text completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Request struct {
	Question string
	Schema   schema.Description
}

type Result struct {
	SQL           string `json:"sql"`
	RawCompletion string `json:"raw_completion"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type CompletionTranslator struct {
	completer Completer
	info      ModelInfo
}

func NewTranslator(completer Completer, info ModelInfo) (*CompletionTranslator, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	return &CompletionTranslator{completer: completer, info: info}, nil
}

func (t *CompletionTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	prompt := BuildSQLPrompt(req.Question, req.Schema)
	raw, err := t.completer.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generate sql: %w", err)
	}

	sql := Sanitize(raw)
	if strings.TrimSpace(sql) == "" {
		return Result{}, fmt.Errorf("generate sql: %w", ErrEmptyCompletion)
	}
	return Result{
		SQL:           sql,
		RawCompletion: raw,
		Provider:      t.info.Provider,
		Model:         t.info.Model,
	}, nil
}
