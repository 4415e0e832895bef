package invoice

import (
	"errors"

	"github.com/storefront/backend/internal/domain/shared"
)

// Error codes raised by the invoicing context
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidState   = "INVALID_STATE"
)

// ErrArtifactNotFound is returned by artifact stores when the named artifact is absent
var ErrArtifactNotFound = errors.New("invoice artifact not found")

// NewInvalidRequestError creates an INVALID_REQUEST domain error
func NewInvalidRequestError(message string) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInvalidRequest, message)
}

// IsInvalidRequest reports whether err is (or wraps) an INVALID_REQUEST domain error
func IsInvalidRequest(err error) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == ErrCodeInvalidRequest
}

// SinkWriteError reports an I/O failure while emitting the rendered document.
// It is fatal to the render that produced it and is never retried internally.
type SinkWriteError struct {
	Op  string
	Err error
}

func (e *SinkWriteError) Error() string {
	if e.Op == "" {
		return "invoice sink write failed: " + e.Err.Error()
	}
	return "invoice sink " + e.Op + " failed: " + e.Err.Error()
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// IsSinkWriteError reports whether err is (or wraps) a SinkWriteError
func IsSinkWriteError(err error) bool {
	var sinkErr *SinkWriteError
	return errors.As(err, &sinkErr)
}
