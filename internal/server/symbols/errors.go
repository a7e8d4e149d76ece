// Package symbols checks that an uploaded archive is a well-formed symbols
// package before it is accepted by the gallery.
package symbols

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a symbols package was rejected. Callers branch on
// the kind instead of inspecting concrete error types.
type ErrorKind int

const (
	// KindInvalidPackage: the archive is not a symbols package at all.
	KindInvalidPackage ErrorKind = iota + 1
	// KindInvalidData: the archive has content a symbols package may not carry.
	KindInvalidData
	// KindEntity: an entry could not be read.
	KindEntity
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidPackage:
		return "invalid_package"
	case KindInvalidData:
		return "invalid_data"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// ValidationError carries a user-facing message and its kind.
type ValidationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AsValidationError extracts a ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func invalidPackage(format string, args ...any) error {
	return &ValidationError{Kind: KindInvalidPackage, Message: fmt.Sprintf(format, args...)}
}

func invalidData(format string, args ...any) error {
	return &ValidationError{Kind: KindInvalidData, Message: fmt.Sprintf(format, args...)}
}
