// Package httpx holds the JSON response conventions shared by every API module.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// NonFieldErrors is the key used for errors that do not belong to one field.
const NonFieldErrors = "non_field_errors"

// Common validation messages.
const (
	MsgRequired   = "This field is required."
	MsgBlank      = "This field may not be blank."
	MsgBadPayload = "Invalid JSON payload."
)

// ErrInvalidJSON is returned by DecodeJSON for malformed bodies.
var ErrInvalidJSON = errors.New("invalid JSON payload")

// ValidationError collects per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// FieldError returns a ValidationError with a single message.
func FieldError(field, msg string) *ValidationError {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

// Add appends msg to field.
func (v *ValidationError) Add(field, msg string) {
	v.Fields[field] = append(v.Fields[field], msg)
}

// Empty reports whether no messages were added.
func (v *ValidationError) Empty() bool {
	return len(v.Fields) == 0
}

// Err returns v, or nil when it is empty.
func (v *ValidationError) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for field, msgs := range v.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Require adds MsgRequired for every empty value.
func (v *ValidationError) Require(fields map[string]string) {
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			v.Add(name, MsgRequired)
		}
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrors writes {"success":false,"errors":fields}.
func WriteErrors(w http.ResponseWriter, status int, fields map[string][]string) {
	WriteJSON(w, status, map[string]any{"success": false, "errors": fields})
}

// WriteError writes {"success":false,"error":msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"success": false, "error": msg})
}

// WriteValidation writes a ValidationError as a 400, or reports false when
// err is not one.
func WriteValidation(w http.ResponseWriter, err error) bool {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	WriteErrors(w, http.StatusBadRequest, verr.Fields)
	return true
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrInvalidJSON
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// DecodeOrReject decodes the body and writes the standard 400 on failure.
func DecodeOrReject(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := DecodeJSON(r, v); err != nil {
		WriteError(w, http.StatusBadRequest, MsgBadPayload)
		return false
	}
	return true
}
