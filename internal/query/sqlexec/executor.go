package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/sqlguard"
)

var ErrSQLRequired = errors.New("sql is required")

// ExecutionError carries the statement that failed together with the
// database error.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Config struct {
	Timeout  time.Duration
	RowLimit int
}

// Executor runs statements against a database/sql pool. Every call uses its
// own connection which is released on all exit paths.
type Executor struct {
	db       *sql.DB
	timeout  time.Duration
	rowLimit int
}

func New(db *sql.DB, cfg Config) (*Executor, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.RowLimit < 0 {
		return nil, fmt.Errorf("row limit must be >= 0")
	}
	return &Executor{db: db, timeout: cfg.Timeout, rowLimit: cfg.RowLimit}, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Execute runs request.SQL and materializes at most RowLimit rows. The text
// must hold exactly one statement; drivers such as DuckDB would otherwise run
// every statement in it. A driver panic is returned as an ExecutionError.
func (e *Executor) Execute(ctx context.Context, request query.Request) (result query.Result, err error) {
	sqlText, err := sqlguard.Normalize(request.SQL)
	if errors.Is(err, sqlguard.ErrEmptyStatement) {
		return query.Result{}, &ExecutionError{SQL: request.SQL, Err: ErrSQLRequired}
	}
	if err != nil {
		return query.Result{}, &ExecutionError{SQL: request.SQL, Err: err}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	limit := request.RowLimit
	if limit <= 0 {
		limit = e.rowLimit
	}

	start := time.Now()
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return query.Result{}, e.fail(ctx, sqlText, fmt.Errorf("acquire connection: %w", err))
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			// database/sql keeps the connection locked after a driver panic, so
			// it is abandoned instead of closed.
			result = query.Result{}
			err = &ExecutionError{SQL: sqlText, Err: fmt.Errorf("driver panic: %v", recovered)}
			return
		}
		_ = conn.Close()
	}()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, e.fail(ctx, sqlText, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, e.fail(ctx, sqlText, fmt.Errorf("query columns: %w", err))
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if limit > 0 && len(resultRows) == limit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, e.fail(ctx, sqlText, fmt.Errorf("scan row: %w", err))
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, e.fail(ctx, sqlText, fmt.Errorf("iterate rows: %w", err))
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func (e *Executor) fail(ctx context.Context, sqlText string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &ExecutionError{SQL: sqlText, Err: err}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.UTC().Format(time.RFC3339)
		case float64:
			normalized[i] = finiteOrString(typed)
		case float32:
			normalized[i] = finiteOrString(float64(typed))
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

// finiteOrString keeps finite floats and renders NaN and infinities as
// "NaN", "+Inf" and "-Inf", which encoding/json cannot encode as numbers.
func finiteOrString(value float64) any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'g', -1, 64)
	}
	return value
}
