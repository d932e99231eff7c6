package catalog

// validation.go checks structural and domain constraints on one record.
//
// Validation never has side effects and runs before any queue send or
// persistence. A failing record is dropped by the caller with the returned
// reason logged; it never aborts the batch or file it belongs to.

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ValidationError reports why a record was rejected.
type ValidationError struct {
	Field   string // Field name, empty for whole-record problems
	Message string // Human-readable reason
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid record: " + e.Message
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate returns the first constraint the record violates, or nil.
//
// requireID is true on the queue side, where every record must already carry
// its key; the create endpoint assigns ids itself and passes false.
func Validate(r Record, requireID bool) error {
	if requireID && strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Message: "must be a non-empty string"}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Message: "must be a non-empty string"}
	}
	if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return &ValidationError{Field: "price", Message: "must be a finite number"}
	}
	if r.Price <= 0 {
		return &ValidationError{Field: "price", Message: fmt.Sprintf("must be greater than 0, got %v", r.Price)}
	}
	if r.Count < 0 {
		return &ValidationError{Field: "count", Message: fmt.Sprintf("must be 0 or greater, got %d", r.Count)}
	}
	return nil
}

// Valid is the boolean form of [Validate].
func Valid(r Record, requireID bool) bool {
	return Validate(r, requireID) == nil
}
