package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: backend returned status %d", e.Status)
	}
	return fmt.Sprintf("gateway: backend returned status %d: %s", e.Status, e.Message)
}

// IsAlreadyInCart classifies the backend's "line already exists" signal.
// The add endpoint is not idempotent and reports the conflict as 400 or 409,
// or occasionally as a 500 whose message mentions the duplicate. The text
// match is a fallback heuristic covered by gateway tests; explicit status
// codes are always preferred when present.
func IsAlreadyInCart(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case http.StatusBadRequest, http.StatusConflict:
		return true
	case http.StatusInternalServerError:
		message := strings.ToLower(statusErr.Message)
		return strings.Contains(message, "already") || strings.Contains(message, "exists")
	default:
		return false
	}
}

// IsUnauthorized reports whether the backend rejected the session.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == http.StatusUnauthorized
}
