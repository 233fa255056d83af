package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusCode maps an error from the service to an HTTP status. A status
// carried from the storage backend is passed through when it is an error
// status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, simpleshare.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, simpleshare.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simpleshare.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	}
	if status := simpleshare.BackendStatus(err); status >= 400 && status <= 599 {
		return status
	}
	return http.StatusInternalServerError
}

// errorCode returns the machine readable code for status
func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	}
	if status >= 500 {
		return "backend_unavailable"
	}
	return "backend_rejected"
}

// writeServiceError reports a service failure. Only validation messages
// reach the client; backend causes stay in the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusCode(err)

	message := http.StatusText(status)
	switch status {
	case http.StatusBadRequest:
		message = validationMessage(err)
	case http.StatusNotFound:
		message = "File not found"
	}

	attrs := []any{"op", op, "status", status, "request_id", RequestIDFromContext(r.Context()), "err", err}
	if status >= 500 {
		slog.Error("Request failed", attrs...)
	} else {
		slog.Warn("Request rejected", attrs...)
	}

	writeError(w, r, status, errorCode(status), message)
}

// validationMessage strips the operation prefix so the client sees only
// what was wrong with its input.
func validationMessage(err error) string {
	var be *simpleshare.BrokerError
	if errors.As(err, &be) {
		return be.Err.Error()
	}
	return err.Error()
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]ErrorBody{"error": {Code: code, Message: message}})
}
