package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyStatement       = errors.New("empty statement")
	ErrMultipleStatements   = errors.New("multiple statements are not allowed")
	ErrUnsupportedStatement = errors.New("unsupported statement")
	ErrForbiddenKeyword     = errors.New("forbidden keyword")
	ErrAmbiguousLiteral     = errors.New("backslash-escaped quote in string literal")
	ErrFileAccess           = errors.New("file access is not allowed")
)

// QueryPolicy decides whether a generated statement may reach the database.
type QueryPolicy interface {
	Check(sql string) error
}

// PolicyError is returned by ReadOnlyPolicy. Reason is one of the package
// sentinel errors.
type PolicyError struct {
	Reason  error
	Keyword string
}

func (e *PolicyError) Error() string {
	if e.Keyword == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Keyword)
}

func (e *PolicyError) Unwrap() error {
	return e.Reason
}

// Code is a stable snake_case label for the rejection reason.
func (e *PolicyError) Code() string {
	switch {
	case errors.Is(e.Reason, ErrEmptyStatement):
		return "empty_statement"
	case errors.Is(e.Reason, ErrMultipleStatements):
		return "multiple_statements"
	case errors.Is(e.Reason, ErrUnsupportedStatement):
		return "unsupported_statement"
	case errors.Is(e.Reason, ErrForbiddenKeyword):
		return "forbidden_keyword"
	case errors.Is(e.Reason, ErrAmbiguousLiteral):
		return "ambiguous_literal"
	case errors.Is(e.Reason, ErrFileAccess):
		return "file_access"
	default:
		return "rejected"
	}
}

var allowedLeadingKeywords = map[string]struct{}{
	"SELECT": {},
	"WITH":   {},
}

// REPLACE is left out because it is also a string function.
var forbiddenKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"MERGE":    {},
	"UPSERT":   {},
	"DROP":     {},
	"ALTER":    {},
	"CREATE":   {},
	"TRUNCATE": {},
	"GRANT":    {},
	"REVOKE":   {},
	"ATTACH":   {},
	"DETACH":   {},
	"COPY":     {},
	"PRAGMA":   {},
	"VACUUM":   {},
	"INSTALL":  {},
	"LOAD":     {},
	"EXPORT":   {},
	"IMPORT":   {},
	"CALL":     {},
	"INTO":     {},
}

// fileFunctions read from the server filesystem or remote URLs. Dataset views
// are mounted outside the policy, so generated SQL never needs them.
var fileFunctions = map[string]struct{}{
	"READ_TEXT":             {},
	"READ_BLOB":             {},
	"READ_PARQUET":          {},
	"PARQUET_SCAN":          {},
	"PARQUET_METADATA":      {},
	"PARQUET_SCHEMA":        {},
	"PARQUET_FILE_METADATA": {},
	"PARQUET_KV_METADATA":   {},
	"SNIFF_CSV":             {},
	"GLOB":                  {},
	"GETENV":                {},
	"PG_READ_FILE":          {},
	"PG_READ_BINARY_FILE":   {},
	"PG_LS_DIR":             {},
	"LO_IMPORT":             {},
}

var fileFunctionPrefixes = []string{"READ_CSV", "READ_JSON", "READ_NDJSON", "READ_XLSX", "ICEBERG_", "DELTA_SCAN"}

func isFileFunction(name string) bool {
	if _, ok := fileFunctions[name]; ok {
		return true
	}
	for _, prefix := range fileFunctionPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ReadOnlyPolicy admits exactly one SELECT or WITH statement that contains no
// data or schema modifying keyword outside of literals and quoted identifiers
// and does not read files.
type ReadOnlyPolicy struct{}

func NewReadOnlyPolicy() ReadOnlyPolicy {
	return ReadOnlyPolicy{}
}

func (ReadOnlyPolicy) Check(sql string) error {
	stmt, err := single(sql)
	if err != nil {
		return err
	}
	first := ""
	if len(stmt.words) > 0 {
		first = stmt.words[0]
	}
	if _, ok := allowedLeadingKeywords[first]; !ok {
		return &PolicyError{Reason: ErrUnsupportedStatement, Keyword: first}
	}
	for _, word := range stmt.words {
		if _, forbidden := forbiddenKeywords[word]; forbidden {
			return &PolicyError{Reason: ErrForbiddenKeyword, Keyword: word}
		}
	}
	for _, call := range stmt.calls {
		if isFileFunction(call) {
			return &PolicyError{Reason: ErrFileAccess, Keyword: call}
		}
	}
	if len(stmt.fileScans) > 0 {
		return &PolicyError{Reason: ErrFileAccess, Keyword: stmt.fileScans[0]}
	}
	return nil
}

// Permits reports whether policy accepts sql.
func Permits(policy QueryPolicy, sql string) bool {
	return policy.Check(sql) == nil
}

// Normalize returns the only statement in sql with comments and statement
// separators removed. It applies the same statement splitting as Check and is
// used by executors to refuse multi-statement text.
func Normalize(sql string) (string, error) {
	stmt, err := single(sql)
	if err != nil {
		return "", err
	}
	return stmt.text, nil
}

func single(sql string) (statement, error) {
	statements := split(sql)
	switch len(statements) {
	case 0:
		return statement{}, &PolicyError{Reason: ErrEmptyStatement}
	case 1:
		if statements[0].ambiguous {
			return statement{}, &PolicyError{Reason: ErrAmbiguousLiteral}
		}
		return statements[0], nil
	default:
		return statement{}, &PolicyError{Reason: ErrMultipleStatements}
	}
}
