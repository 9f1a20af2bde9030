package quota

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	ErrInvalidKey    = errors.New("invalid or expired key")
	ErrNotFound      = errors.New("user not found")
	ErrRender        = errors.New("generating qr code")
	ErrSaveHeld      = errors.New("save held after failed load")
)

// PersistenceError reports a failed gateway load or save. The ledger logs it
// and keeps serving from memory.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s ledger: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
