// Package validation carries the field-level request error type shared by the
// domain services. Handlers translate it into the problem document's errors map.
package validation

import "strings"

// FieldErrors maps a request field to the messages recorded against it.
type FieldErrors map[string][]string

// Add appends a message to the named field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Error carries per-field validation messages for a rejected request.
type Error struct {
	Fields FieldErrors
}

func (e *Error) Error() string {
	return "validation error"
}

// NewError builds a single-field validation error.
func NewError(field, message string) *Error {
	fe := FieldErrors{}
	fe.Add(field, message)
	return &Error{Fields: fe}
}

// ValidEmail applies the light syntactic check used across the request
// validators: something before and after an at-sign, no whitespace.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
