package tools

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/ghlmux/pkg/ghl"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

var (
	// ErrMissingArgument is returned when a required tool argument is empty.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrUpstreamFailed replaces failures the caller cannot act on. The
	// cause is logged, never returned.
	ErrUpstreamFailed = errors.New("upstream request failed")
)

// publicError maps err to what a tool caller may see: argument errors and
// tenant rejections as is, upstream API answers with their status and
// message, anything else as ErrUpstreamFailed.
func publicError(err error) error {
	var apiErr *ghl.APIError
	switch {
	case errors.Is(err, ErrMissingArgument):
		return err
	case tenant.StatusCode(err) != http.StatusInternalServerError:
		return errors.New(tenant.ErrorMessage(err))
	case errors.As(err, &apiErr):
		return apiErr
	default:
		return ErrUpstreamFailed
	}
}
