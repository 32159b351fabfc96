// Package apperr defines the error kinds shared by the store, the dissection
// providers, and the import pipeline.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrParentNotFound = errors.New("parent not found")
	ErrAmbiguous      = errors.New("ambiguous id prefix")
	ErrAlreadyExists  = errors.New("already exists")
	ErrIO             = errors.New("io failure")
	ErrProtocol       = errors.New("protocol error")
	ErrNetwork        = errors.New("network failure")
)
