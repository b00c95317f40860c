package ratelimit

import (
	"math"
	"net/http"
	"strconv"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders writes the X-RateLimit-* headers, plus Retry-After in whole
// seconds (at least 1) for rejected requests.
func SetHeaders(w http.ResponseWriter, res *Result) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds(res)))
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func RetryAfterSeconds(res *Result) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	return max(secs, 1)
}
