package domain

import (
	"fmt"
	"net/http"
)

var (
	ErrServiceNotFound     = fmt.Errorf("service not found")
	ErrServiceUnavailable  = fmt.Errorf("no available instances")
	ErrRegistryUnavailable = fmt.Errorf("registry store unavailable")
	ErrInvalidRequest      = fmt.Errorf("invalid request")
	ErrUnauthorized        = fmt.Errorf("unauthorized")
	ErrUpstream            = fmt.Errorf("upstream request failed")
)

// GatewayError is an error that maps to a client-facing HTTP status.
type GatewayError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewUnavailableError(service string) *GatewayError {
	return &GatewayError{
		Status:  http.StatusServiceUnavailable,
		Code:    "service_unavailable",
		Message: fmt.Sprintf("no available instances for service: %s", service),
		Err:     ErrServiceUnavailable,
	}
}

// NewUpstreamError builds the error relayed for a failed downstream call.
// A zero status means the transport itself failed.
func NewUpstreamError(status int, message string, err error) *GatewayError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if err == nil {
		err = ErrUpstream
	}
	return &GatewayError{
		Status:  status,
		Code:    "upstream_error",
		Message: message,
		Err:     err,
	}
}
