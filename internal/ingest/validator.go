package ingest

import (
	"fmt"
	"strings"
)

const (
	maxIDLength   = 256
	maxTextLength = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateDocument checks that a submitted document has a usable id and
// non-empty text within the size limits, returning a ValidationError with
// per-field details if not.
func ValidateDocument(doc Document) error {
	errs := make(map[string]string)

	switch {
	case strings.TrimSpace(doc.ID) == "":
		errs["id"] = "id is required"
	case doc.ID != strings.TrimSpace(doc.ID):
		errs["id"] = "id must not have surrounding whitespace"
	case len(doc.ID) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}

	if strings.TrimSpace(doc.Text) == "" {
		errs["text"] = "text is required and must not be empty"
	} else if len(doc.Text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
