package ghl

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAPIKey     = errors.New("ghl: api key is required")
	ErrMissingLocationID = errors.New("ghl: location id is required")
	ErrInvalidBaseURL    = errors.New("ghl: invalid base url")
	ErrUnauthorized      = errors.New("ghl: credential rejected")
	ErrNotFound          = errors.New("ghl: resource not found")
	ErrRateLimited       = errors.New("ghl: upstream rate limit exceeded")
	ErrUpstream          = errors.New("ghl: upstream request failed")
	ErrFactoryClosed     = errors.New("ghl: client factory is closed")
)

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ghl: upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("ghl: upstream returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the status code so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUpstream
	}
}
