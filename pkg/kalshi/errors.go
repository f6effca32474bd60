package kalshi

import "fmt"

// APIError is a non-2xx response from the exchange. Rate limits (429) are
// handled inside the client's retry loop and never surface as APIError.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the response class is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}
