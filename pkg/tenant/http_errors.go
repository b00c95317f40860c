package tenant

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the JSON shape of every rejection produced by this package.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the error kind and carries a caller-safe message.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

type errorKind struct {
	err    error
	status int
	code   string
}

// Order matters: the first matching kind wins for joined errors.
var errorKinds = []errorKind{
	{ErrTenantRequired, http.StatusBadRequest, "tenant_required"},
	{ErrInvalidIdentifier, http.StatusBadRequest, "invalid_identifier"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrInvalidConfiguration, http.StatusBadRequest, "invalid_configuration"},
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{ErrInactive, http.StatusForbidden, "tenant_inactive"},
	{ErrIncomplete, http.StatusForbidden, "tenant_incomplete"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrNotFound, http.StatusNotFound, "tenant_not_found"},
	{ErrUnsupported, http.StatusMethodNotAllowed, "unsupported"},
	{ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// StatusCode maps an error from this package to an HTTP status.
// Unknown errors map to 500.
func StatusCode(err error) int {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorCode maps an error to a stable machine-readable code.
func ErrorCode(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}

// ErrorMessage returns the message safe to show to a caller. Unknown errors
// never expose their text.
func ErrorMessage(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return "internal server error"
}

// WriteError writes err as a JSON error body with the mapped status code.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorStatus(w, StatusCode(err), err)
}

// WriteErrorStatus is WriteError with an explicit status code.
func WriteErrorStatus(w http.ResponseWriter, status int, err error) {
	body := ErrorBody{Error: ErrorDetail{Code: ErrorCode(err), Message: ErrorMessage(err)}}
	var d detailer
	if errors.As(err, &d) {
		body.Error.Details = d.Details()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// detailer is implemented by validation errors that carry per-field messages.
type detailer interface {
	Details() map[string][]string
}
