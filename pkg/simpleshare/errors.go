package simpleshare

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy
var (
	// ErrInvalidRequest indicates bad or missing caller input
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates the storage key has no backing object
	ErrNotFound = errors.New("object not found")

	// ErrBackendUnavailable indicates a storage backend error, timeout or bad server credentials
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrMethodNotAllowed indicates the wrong HTTP verb
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// BrokerError represents an error related to a broker operation on one key
type BrokerError struct {
	Op  string
	Key string
	Err error
}

func (e *BrokerError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// StatusError carries the HTTP status a backend answered with
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// BackendStatus returns the backend HTTP status carried by err, or 0.
func BackendStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// invalid wraps a validation failure so it matches ErrInvalidRequest.
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// unavailable classifies a backend failure. ErrNotFound passes through;
// everything else is reported as ErrBackendUnavailable with the cause kept.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
