package errors

import (
	"errors"
	"fmt"
)

// Errors shared by the client packages.
var (
	// Session errors
	ErrNoSession          = errors.New("no session")
	ErrMissingCredentials = errors.New("identifier and secret are required")

	// Store errors
	ErrStoreClosed = errors.New("store closed")
	ErrInvalidKey  = errors.New("invalid store key")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
