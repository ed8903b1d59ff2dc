// Package businessflow contains the core business logic for sequence allocation
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Sequence-related errors
	ErrSequenceNotFound    = errors.New("sequence not found")
	ErrSequenceKeyRequired = errors.New("sequence key is required")
	ErrInvalidStepBounds   = errors.New("step bounds must satisfy 1 <= step_min <= step_max")
	ErrNegativeStartValue  = errors.New("start value must not be negative")
	ErrOutsideTransaction  = errors.New("allocation requires an enclosing transaction")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsSequenceNotFound(err error) bool {
	return errors.Is(err, ErrSequenceNotFound)
}
