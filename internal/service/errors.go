package service

import "errors"

var (
	ErrAlreadyWatched   = errors.New("document is already watched")
	ErrTargetMismatch   = errors.New("paused document has a different notify target")
	ErrNotWatched       = errors.New("document is not watched")
	ErrResourceNotFound = errors.New("document not found upstream")
	ErrPermissionDenied = errors.New("no permission to read document")
	ErrInvalidToken     = errors.New("invalid document token")
	ErrInvalidTarget    = errors.New("notify target is required")
	ErrUpstream         = errors.New("document source unavailable")
)
