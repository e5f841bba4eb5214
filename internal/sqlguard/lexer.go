package sqlguard

import "strings"

type statement struct {
	text  string
	words []string
	// calls holds upper-cased words directly followed by "(".
	calls []string
	// ambiguous is set when a single-quoted literal contains a backslash
	// before a quote, which dialects disagree on.
	ambiguous bool
	// fileScans holds quoted names used directly as a FROM or JOIN source.
	fileScans []string
}

// split breaks sql into non-empty statements on top-level semicolons. String
// literals, quoted identifiers and dollar-quoted bodies are copied verbatim and
// never contribute words. Comments are replaced by a single space.
func split(sql string) []statement {
	var (
		out     []statement
		text    strings.Builder
		current statement
	)
	flush := func() {
		trimmed := strings.TrimSpace(text.String())
		if trimmed != "" {
			current.text = trimmed
			out = append(out, current)
		}
		text.Reset()
		current = statement{}
	}
	// lastWord is the previous word when only whitespace separates it from
	// the current position.
	lastWord := ""

	for i := 0; i < len(sql); {
		c := sql[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			text.WriteByte(c)
			i++
			continue
		}
		previous := lastWord
		lastWord = ""
		switch {
		case c == '\'' || c == '"' || c == '`':
			backslash := c == '\'' && isEscapeStringPrefix(sql, i)
			end := quotedEnd(sql, i, c, backslash)
			literal := sql[i:end]
			if c == '\'' && strings.Contains(literal, `\'`) {
				current.ambiguous = true
			}
			if (previous == "FROM" || previous == "JOIN") && looksLikeFile(c, literal) {
				current.fileScans = append(current.fileScans, literal)
			}
			text.WriteString(literal)
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end
			}
			text.WriteByte(' ')
			lastWord = previous
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 4
			}
			text.WriteByte(' ')
			lastWord = previous
		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					end = len(sql)
				} else {
					end = i + len(tag) + end + len(tag)
				}
				text.WriteString(sql[i:end])
				i = end
				continue
			}
			text.WriteByte(c)
			i++
		case c == ';':
			flush()
			i++
		case isWordStart(c):
			start := i
			for i < len(sql) && isWordPart(sql[i]) {
				i++
			}
			word := sql[start:i]
			upper := strings.ToUpper(word)
			current.words = append(current.words, upper)
			if next := skipSpace(sql, i); next < len(sql) && sql[next] == '(' {
				current.calls = append(current.calls, upper)
			}
			lastWord = upper
			text.WriteString(word)
		case isWordPart(c):
			// numeric literal or parameter suffix such as 1e10 or $1
			for i < len(sql) && isWordPart(sql[i]) {
				text.WriteByte(sql[i])
				i++
			}
		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}

// quotedEnd returns the index just past the literal opened at start. A doubled
// quote character is an escaped quote. With backslash set, as for E'...'
// strings, a backslash escapes the following byte.
func quotedEnd(sql string, start int, quote byte, backslash bool) int {
	for i := start + 1; i < len(sql); i++ {
		if backslash && sql[i] == '\\' {
			i++
			continue
		}
		if sql[i] != quote {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

// isEscapeStringPrefix reports whether the quote at i opens an E'...' string.
func isEscapeStringPrefix(sql string, i int) bool {
	if i == 0 || (sql[i-1] != 'E' && sql[i-1] != 'e') {
		return false
	}
	return i == 1 || !isWordPart(sql[i-2])
}

// looksLikeFile reports whether a quoted FROM source would be resolved as a
// file path. Any string literal is; identifiers only when they carry a path or
// extension separator.
func looksLikeFile(quote byte, literal string) bool {
	if quote == '\'' {
		return true
	}
	return strings.ContainsAny(literal, "./\\:")
}

func skipSpace(sql string, i int) int {
	for i < len(sql) && (sql[i] == ' ' || sql[i] == '\t' || sql[i] == '\n' || sql[i] == '\r') {
		i++
	}
	return i
}

// dollarTag matches a Postgres dollar-quote opener such as $$ or $body$.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !isWordPart(c) || (i == 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
