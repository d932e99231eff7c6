package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedJSON is returned by Decode when the payload is not JSON at all.
// It is kept apart from *ValidationError so the create endpoint can answer
// the two cases with different messages.
var ErrMalformedJSON = errors.New("malformed JSON")

// wireRecord keeps every field raw so JSON types can be checked before they
// are coerced: a price of "10" (string) is a validation failure, not 10.
type wireRecord struct {
	ID          json.RawMessage `json:"id"`
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Price       json.RawMessage `json:"price"`
	Count       json.RawMessage `json:"count"`
}

// Decode parses one JSON object into a Record and checks field types.
// Domain constraints (price > 0 and so on) are left to Validate.
func Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Record{}, &ValidationError{Message: "body must be a JSON object"}
		}
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if isNull(bytes.TrimSpace(data)) {
		return Record{}, &ValidationError{Message: "body must be a JSON object"}
	}

	var (
		rec Record
		err error
	)
	if rec.ID, err = optionalString("id", w.ID); err != nil {
		return Record{}, err
	}
	if isNull(w.Title) {
		return Record{}, &ValidationError{Field: "title", Message: "is required"}
	}
	if rec.Title, err = optionalString("title", w.Title); err != nil {
		return Record{}, err
	}
	if rec.Description, err = optionalString("description", w.Description); err != nil {
		return Record{}, err
	}
	if rec.Price, err = requiredNumber("price", w.Price); err != nil {
		return Record{}, err
	}

	count, err := requiredNumber("count", w.Count)
	if err != nil {
		return Record{}, err
	}
	if count != math.Trunc(count) || math.Abs(count) > math.MaxInt32 {
		return Record{}, &ValidationError{Field: "count", Message: "must be an integer"}
	}
	rec.Count = int(count)

	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// optionalString accepts a JSON string, null, or absence ("").
func optionalString(field string, raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Field: field, Message: "must be a string"}
	}
	return s, nil
}

// requiredNumber accepts only a JSON number.
func requiredNumber(field string, raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, &ValidationError{Field: field, Message: "is required"}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, &ValidationError{Field: field, Message: "must be a number"}
	}
	return f, nil
}
