package apperr

import (
	"errors"
	"fmt"
)

// Pipeline-facing errors. Handlers map these onto the HTTP error envelope;
// workers write them onto the owning entity's error field.
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrNotFound            = errors.New("resource not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrConflict            = errors.New("resource conflict")
)

// UpstreamError describes a failed call to an external vendor: a non-2xx
// response, a vendor-level error code embedded in a 200, or a malformed
// payload.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Service, e.Message)
}

// Upstream builds an UpstreamError for the named vendor.
func Upstream(service string, statusCode int, message string) *UpstreamError {
	return &UpstreamError{Service: service, StatusCode: statusCode, Message: message}
}

// IsUpstream reports whether err wraps an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
