package service

import (
	"errors"
	"fmt"
)

// Error classes. Transports map these to status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrServiceUnavailable = errors.New("service unavailable")
)

var (
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrInsufficientStock  = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrProductUnavailable = fmt.Errorf("%w: product unavailable", ErrValidation)
	ErrInvalidState       = fmt.Errorf("%w: invalid state", ErrValidation)
)
