package cache

import (
	"sync"
	"time"
)

// Janitor calls a sweep function on a fixed interval until stopped.
type Janitor struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewJanitor starts a background goroutine calling sweep every interval.
// It panics if interval is not positive or sweep is nil.
func NewJanitor(interval time.Duration, sweep func()) *Janitor {
	if interval <= 0 {
		panic("cache: janitor interval must be positive")
	}
	if sweep == nil {
		panic("cache: janitor sweep function is required")
	}

	j := &Janitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweep()
			case <-j.stop:
				return
			}
		}
	}()

	return j
}

// Stop halts the sweep loop and waits for it to exit. Safe to call repeatedly.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}
