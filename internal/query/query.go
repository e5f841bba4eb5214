package query

import (
	"context"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

// Result is a fully materialized result set. Rows hold driver values with
// byte slices converted to strings.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
