// Package errors provides error wrapping utilities for context-aware error messages
// and the error kinds shared by the download packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrCancelled marks work that stopped because the caller cancelled it.
	// It is not a failure and is never remembered as a task error.
	ErrCancelled = stderrors.New("download cancelled")

	// ErrUnrecognizedSource is returned when a URL matches none of the known
	// trace source patterns. No task is started for such URLs.
	ErrUnrecognizedSource = stderrors.New("url not recognized as a gps trace source")
)

// TransportError reports a network or decode failure from a fetcher.
type TransportError struct {
	Op  string // "bbox" or "url"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError. If err is nil, it returns nil.
func Transport(op, url string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if stderrors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, URL: url, Err: err}
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// New, Is and As forward to the standard library so callers importing this
// package do not need a second errors import.
func New(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
