package reddit

import (
	"errors"
	"fmt"
)

// ThrottledError is the API's explicit slow-down response (HTTP 429).
type ThrottledError struct {
	URL string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("HTTP 429 Too Many Requests: %s", e.URL)
}

// IsThrottled checks if an error is a throttling response.
func IsThrottled(err error) bool {
	var throttled *ThrottledError
	return errors.As(err, &throttled)
}

// ServerError is a 5xx response from the API.
type ServerError struct {
	URL        string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsServerError checks if an error is a server-side failure.
func IsServerError(err error) bool {
	var server *ServerError
	return errors.As(err, &server)
}

// RequestError wraps a transport-level failure (DNS, connect, timeout).
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRequestError checks if an error is a transport failure.
func IsRequestError(err error) bool {
	var request *RequestError
	return errors.As(err, &request)
}
