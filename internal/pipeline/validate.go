package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	CodeQuestionRequired = "QUESTION_REQUIRED"
	CodeQuestionTooLong  = "QUESTION_TOO_LONG"
)

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateQuestion trims the question and enforces presence and a maximum
// length in characters.
func ValidateQuestion(question string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return "", &ValidationError{Code: CodeQuestionRequired, Message: "question is required"}
	}
	if maxLength > 0 && utf8.RuneCountInString(trimmed) > maxLength {
		return "", &ValidationError{
			Code:    CodeQuestionTooLong,
			Message: fmt.Sprintf("question exceeds %d characters", maxLength),
		}
	}
	return trimmed, nil
}
