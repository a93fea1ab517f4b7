// Package server defines the error taxonomy for room and session operations.
package server

import (
	"errors"
	"fmt"
)

// ErrUsernameTaken is returned by Directory.Join when the display name is
// already in use within the requested room. The message doubles as the
// user-facing join error.
var ErrUsernameTaken = errors.New("Username already taken in this room")

// ValidationError reports a request field that was empty after trimming.
// It is handled at the session boundary and never reaches the directory.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must not be empty", e.Field)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
