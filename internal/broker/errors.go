package broker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// ErrNotFound is returned when a symbol or resource does not exist. Not-found
// responses are never retried.
var ErrNotFound = errors.New("not found")

// statusCodePattern recovers an HTTP status from error messages shaped like
// "request failed, 503 status code" when no structured APIError is present.
var statusCodePattern = regexp.MustCompile(`\b([1-5]\d{2}) status code\b`)

// StatusOf extracts an HTTP-like status from err, either from a structured
// APIError in the chain or by pattern-matching the message.
func StatusOf(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		status, convErr := strconv.Atoi(m[1])
		if convErr == nil {
			return status, true
		}
	}
	return 0, false
}
