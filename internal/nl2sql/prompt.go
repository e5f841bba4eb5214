package nl2sql

import (
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/schema"
)

const answerPromptMaxRows = 50

// BuildSQLPrompt embeds the schema and the verbatim question into the
// generation instructions. The question is not inspected.
func BuildSQLPrompt(question string, desc schema.Description) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert working with a ")
	b.WriteString(desc.Dialect)
	b.WriteString(" database")
	if desc.Name != "" {
		b.WriteString(" named ")
		b.WriteString(desc.Name)
	}
	b.WriteString(".\n\nAvailable tables and columns:\n")
	b.WriteString(desc.Render())
	b.WriteString("\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Write exactly one SQL SELECT statement that answers the question.\n")
	b.WriteString("- Use only the tables and columns listed above.\n")
	b.WriteString("- Return ONLY the SQL. No markdown, no code fences, no explanation.\n")
	return b.String()
}

// BuildAnswerPrompt asks for a natural-language summary of an executed query.
// At most answerPromptMaxRows rows are embedded.
func BuildAnswerPrompt(question, sql string, result query.Result) string {
	var b strings.Builder
	b.WriteString("You answer questions about a database using the result of a SQL query.\n\n")
	b.WriteString("Question:\n")
	b.WriteString(question)
	b.WriteString("\n\nSQL query executed:\n")
	b.WriteString(sql)
	b.WriteString("\n\nQuery result:\n")
	b.WriteString(FormatResult(result, answerPromptMaxRows))
	b.WriteString("\nAnswer the question in one or two plain sentences using only the result above. ")
	b.WriteString("If the result is empty, say that no matching records were found.\n")
	return b.String()
}

// FormatResult renders a result as pipe-separated text with a header line.
func FormatResult(result query.Result, maxRows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")
	shown := len(result.Rows)
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}
	for _, row := range result.Rows[:shown] {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatValue(value)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(result.Rows) == 0 {
		b.WriteString("(no rows)\n")
	}
	if hidden := len(result.Rows) - shown; hidden > 0 {
		fmt.Fprintf(&b, "(%d more rows)\n", hidden)
	}
	if result.Truncated {
		b.WriteString("(result truncated by row limit)\n")
	}
	return b.String()
}

func formatValue(value any) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprint(value)
}
