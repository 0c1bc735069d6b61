package errs

import (
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrCreditTooLow       = errors.New("credit score below 90")
	ErrBorrowLimit        = errors.New("borrow limit reached")
	ErrNoCopyAvailable    = errors.New("no copy available")
	ErrNoActiveLoan       = errors.New("no active loan")
	ErrHasDependents      = errors.New("has dependent records")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
