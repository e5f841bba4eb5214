package nl2sql

import (
	"strings"
	"unicode"
)

const fence = "```"

var fenceLanguageTags = map[string]struct{}{
	"sql":        {},
	"sqlite":     {},
	"sqlite3":    {},
	"duckdb":     {},
	"postgres":   {},
	"postgresql": {},
	"psql":       {},
	"pgsql":      {},
	"mysql":      {},
	"tsql":       {},
	"plsql":      {},
}

// Sanitize removes markdown code fences and an optional language tag from a
// model completion. If the completion holds a fenced block, only the first
// block is kept. The result never contains a fence, which makes Sanitize
// idempotent.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	if open := strings.Index(text, fence); open >= 0 {
		body := text[open+len(fence):]
		switch end := strings.Index(body, fence); {
		case end >= 0:
			text = stripLanguageTag(body[:end])
		case strings.TrimSpace(text[:open]) == "":
			text = stripLanguageTag(body)
		default:
			text = text[:open]
		}
	}
	return strings.TrimFunc(text, isSanitizeCutset)
}

func isSanitizeCutset(r rune) bool {
	return r == '`' || unicode.IsSpace(r)
}

func stripLanguageTag(value string) string {
	end := strings.IndexAny(value, " \t\r\n")
	token := value
	if end >= 0 {
		token = value[:end]
	}
	if _, ok := fenceLanguageTags[strings.ToLower(token)]; !ok {
		return value
	}
	if end < 0 {
		return ""
	}
	return value[end:]
}
