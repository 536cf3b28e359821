package frontdesk

import (
	"sync"
	"time"
)

// Reconnect defaults.
const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// Reconnector counts unsolicited closes since the last successful open and
// decides whether another attempt is allowed. The delay is fixed.
type Reconnector struct {
	delay       time.Duration
	maxAttempts int

	mu      sync.Mutex
	attempt int
}

// NewReconnector returns a Reconnector. Zero values use the defaults.
func NewReconnector(delay time.Duration, maxAttempts int) *Reconnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	return &Reconnector{delay: delay, maxAttempts: maxAttempts}
}

// Next records an unsolicited close. It returns the delay before the next
// attempt and false once the ceiling is reached.
func (r *Reconnector) Next() (time.Duration, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	if r.attempt >= r.maxAttempts {
		return 0, r.attempt, false
	}
	return r.delay, r.attempt, true
}

// Attempts returns the unsolicited closes counted since the last Reset.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Reset is called when a connection opens.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}
