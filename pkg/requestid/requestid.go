package requestid

import (
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	Header = "X-Request-ID"
	prefix = "req_"

	maxIDLength = 128
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Generator produces ids from a monotonically increasing counter and a clock.
type Generator struct {
	counter atomic.Uint64
	now     func() time.Time
}

// NewGenerator returns a Generator. A nil clock means time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns a new id.
func (g *Generator) Next() string {
	n := g.counter.Add(1)
	b := make([]byte, 0, 40)
	b = append(b, prefix...)
	b = strconv.AppendInt(b, g.now().UnixMilli(), 10)
	b = append(b, '_')
	b = strconv.AppendUint(b, n, 10)
	return string(b)
}

var defaultGenerator = NewGenerator(nil)

// New returns an id from the process-wide generator.
func New() string {
	return defaultGenerator.Next()
}

// Valid reports whether an inbound id is safe to echo back and log.
func Valid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
