package documents

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAccessDenied     = errors.New("access denied")
	ErrQuarantined      = errors.New("document quarantined")
	ErrNotReprocessable = errors.New("extraction not in a terminal state")
)

const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeForbidden   = "forbidden"
	CodeQuarantined = "quarantined"
	CodeConflict    = "conflict"
	CodeInternal    = "internal_error"
)
