// Package errors wraps pkg/errors and attaches an error kind to failures that
// cross package boundaries, so callers can record them into an error sink
// under the right kind or decide that they are fatal.
package errors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// New returns an error of the given kind with a stack trace.
func New(kind types.ErrorKind, message string) error {
	return errors.WithStack(kindError{kind: kind, message: message})
}

// Newf is New with formatting.
func Newf(kind types.ErrorKind, format string, args ...any) error {
	return errors.WithStack(kindError{kind: kind, message: fmt.Sprintf(format, args...)})
}

// WithKind attaches kind to err while keeping err as the cause. A nil err
// returns nil.
func WithKind(kind types.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(kindError{kind: kind, message: err.Error(), cause: err})
}

// Is reports whether any error in err's chain carries kind.
func Is(err error, kind types.ErrorKind) bool {
	return errors.Is(err, kindError{kind: kind})
}

// KindOf returns the kind carried by err, or fallback when err is not a
// kinded error.
func KindOf(err error, fallback types.ErrorKind) types.ErrorKind {
	var ke kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return fallback
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}

// kindError is the fundamental type used by this package.
type kindError struct {
	kind    types.ErrorKind
	message string
	cause   error
}

func (e kindError) Error() string {
	return e.message
}

func (e kindError) Unwrap() error {
	return e.cause
}

func (e kindError) Is(err error) bool {
	if o, ok := err.(kindError); ok && e.kind == o.kind {
		return true
	}
	return false
}
