package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidState    = errors.New("invalid job state")
	ErrProviderFailure = errors.New("provider failure")
)
