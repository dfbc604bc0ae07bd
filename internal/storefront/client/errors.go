package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/api"
)

var (
	// ErrAuthRequired means there is no usable session; the user must log in.
	ErrAuthRequired = errors.New("please log in to continue")

	// ErrVersionConflict means the cart changed since it was last fetched.
	ErrVersionConflict = errors.New("cart was modified elsewhere")
)

// NetworkError is a transport failure or an unreadable response. It is the
// retryable class of failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerRejection is a non-2xx response. Message is the server's text,
// shown to the user verbatim.
type ServerRejection struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerRejection) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

func (e *ServerRejection) Is(target error) bool {
	switch target {
	case ErrAuthRequired:
		return e.Status == http.StatusUnauthorized
	case ErrVersionConflict:
		return e.Status == http.StatusConflict && e.Code == CodeVersionConflict
	}
	return false
}

// CodeVersionConflict is the error code the backend uses for a stale If-Match.
const CodeVersionConflict = api.CodeVersionConflict

// IsRetryable reports whether err is a transient failure worth offering a
// retry for.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var sr *ServerRejection
	return errors.As(err, &sr) && sr.Status >= http.StatusInternalServerError
}
