package ports

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes gateway failures. Only Transient failures are
// retried; Unauthorized invalidates the whole session; Validation rolls the
// offending edit back with the server's message surfaced verbatim.
type ErrorKind int

const (
	Transient ErrorKind = iota + 1
	Validation
	Unauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Validation:
		return "validation"
	case Unauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// GatewayError is a typed failure from the remote service.
type GatewayError struct {
	Kind    ErrorKind
	Status  int // HTTP status when applicable, 0 for transport errors
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind; unknown errors are treated as transient so
// that plain transport failures get the retry path.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Transient
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	return KindOf(err) == Transient
}

// IsValidation reports whether the remote rejected the request semantics.
func IsValidation(err error) bool {
	return KindOf(err) == Validation
}

// IsUnauthorized reports whether the session credential is no longer valid.
func IsUnauthorized(err error) bool {
	return KindOf(err) == Unauthorized
}
