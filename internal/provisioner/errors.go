package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrAlreadyExists is returned by CreateDatabase when the name is taken.
var ErrAlreadyExists = errors.New("database already exists")

// APIError is a non-2xx response from the provisioning backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provisioning api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("provisioning api: status %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err is worth retrying later: network failures,
// timeouts, 408, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Transport errors that are not net.Error (connection reset mid-body).
	return !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, context.Canceled)
}

func isAlreadyExists(status int, message string) bool {
	if status == http.StatusConflict {
		return true
	}
	return status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "already exists")
}
