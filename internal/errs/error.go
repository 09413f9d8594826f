package errs

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAvailable     = errors.New("book is not available")
	ErrAlreadyReturned  = errors.New("loan already returned")
	ErrAlreadyResolved  = errors.New("reservation already resolved")
	ErrLimitExceeded    = errors.New("max borrow limit reached")
	ErrInvalidSetting   = errors.New("invalid setting value")
	ErrStoreConflict    = errors.New("store conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
