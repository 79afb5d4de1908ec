package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// maxNoteChars caps a stored interaction note.
const maxNoteChars = 2000

// ValidationError reports caller input that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// check validates v's struct tags and returns the first failure as a
// *ValidationError.
func (e *Engine) check(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return fmt.Errorf("validate input: %w", err)
}

// cutID splits a suggestion id on its first colon.
func cutID(id string) (head, tail string, ok bool) {
	return strings.Cut(id, ":")
}

// sanitizeNote trims a note and truncates it at a word boundary. The cut
// never splits a multi-byte rune.
func sanitizeNote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxNoteChars {
		return s
	}
	cut := maxNoteChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxNoteChars-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
