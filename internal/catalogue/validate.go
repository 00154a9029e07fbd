package catalogue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDuplicateURL is returned when a book with the same url is already catalogued.
var ErrDuplicateURL = errors.New("a book with this url already exists")

const (
	MinGrade = 1
	MaxGrade = 12
)

// ValidationError reports a client mistake on a write operation. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GradeInput is a grade as clients send it: a JSON number, a numeric string,
// an empty string or null.
type GradeInput string

func (g *GradeInput) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*g = ""
	case strings.HasPrefix(raw, `"`):
		s, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("grade: %w", err)
		}
		*g = GradeInput(strings.TrimSpace(s))
	default:
		*g = GradeInput(raw)
	}
	return nil
}

// Parse converts the input into an optional grade within [MinGrade, MaxGrade].
func (g GradeInput) Parse() (*int, error) {
	raw := strings.TrimSpace(string(g))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, invalid("grade", "must be a whole number, got %q", raw)
	}
	if n < MinGrade || n > MaxGrade {
		return nil, invalid("grade", "must be between %d and %d, got %d", MinGrade, MaxGrade, n)
	}
	return &n, nil
}

func validateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return &ValidationError{Message: "title and questions array required"}
	}
	for i, q := range questions {
		field := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(q.Prompt) == "" {
			return invalid(field, "prompt is required")
		}
		if len(q.Options) < 2 {
			return invalid(field, "needs at least 2 options, got %d", len(q.Options))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return invalid(field, "answerIndex %d out of range for %d options", q.AnswerIndex, len(q.Options))
		}
	}
	return nil
}
