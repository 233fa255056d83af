package presigned

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	// ObjectKeyContextKey is the context key for storing the validated object key
	ObjectKeyContextKey contextKey = "presigned:object_key"
)

// ValidateMiddlewareWithSigner returns HTTP middleware that validates presigned
// URL signatures. If validation succeeds, it calls the next handler with the
// validated object key in the context.
//
// Example:
//
//	r.With(signer.Middleware).Put("/blobs/*", uploadHandler)
func ValidateMiddlewareWithSigner(signer *Signer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := signer.ValidateRequest(r); err != nil {
			handleValidationError(w, r, err)
			return
		}

		objectKey, err := signer.ExtractObjectKey(r.URL.Path)
		if err != nil {
			slog.Warn("presigned: failed to extract object key", "path", r.URL.Path, "err", err)
			writeError(w, r, http.StatusBadRequest, "missing_object_key", "object key is required in URL path")
			return
		}

		ctx := context.WithValue(r.Context(), ObjectKeyContextKey, objectKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Middleware is ValidateMiddlewareWithSigner in chi's middleware shape
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return ValidateMiddlewareWithSigner(s, next)
}

// ObjectKeyFromContext extracts the validated object key from the request context
// Returns empty string if not found
func ObjectKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(ObjectKeyContextKey).(string); ok {
		return key
	}
	return ""
}

// handleValidationError writes an appropriate HTTP error response based on the validation error
func handleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMissingSignature):
		writeError(w, r, http.StatusUnauthorized, "missing_signature", "signature parameter is required")
	case errors.Is(err, ErrMissingExpiration):
		writeError(w, r, http.StatusUnauthorized, "missing_expires", "expires parameter is required")
	case errors.Is(err, ErrInvalidExpiration):
		writeError(w, r, http.StatusBadRequest, "invalid_expires", "expires parameter must be a valid timestamp")
	case errors.Is(err, ErrExpired):
		writeError(w, r, http.StatusForbidden, "expired", "presigned URL has expired")
	case errors.Is(err, ErrInvalidSignature):
		writeError(w, r, http.StatusForbidden, "invalid_signature", "invalid signature")
	default:
		slog.Error("presigned: validation error", "err", err)
		writeError(w, r, http.StatusForbidden, "forbidden", "authentication failed")
	}
}
