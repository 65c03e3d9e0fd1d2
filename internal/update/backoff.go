package update

import (
	"sync"
	"time"
)

// DefaultBackoffSteps is the adaptive check cadence after repeated "no update" results
var DefaultBackoffSteps = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// Backoff walks the check cadence one step per idle result and sticks at the last step
type Backoff struct {
	mutex sync.Mutex
	steps []time.Duration
	index int
}

// NewBackoff creates a backoff over steps, or the default cadence when steps is empty
func NewBackoff(steps ...time.Duration) *Backoff {
	if len(steps) == 0 {
		steps = DefaultBackoffSteps
	}
	return &Backoff{steps: append([]time.Duration{}, steps...)}
}

// Current returns the delay before the next check
func (backoff *Backoff) Current() time.Duration {
	backoff.mutex.Lock()
	defer backoff.mutex.Unlock()
	return backoff.steps[backoff.index]
}

// Next advances one step and returns the new delay
func (backoff *Backoff) Next() time.Duration {
	backoff.mutex.Lock()
	defer backoff.mutex.Unlock()
	if backoff.index < len(backoff.steps)-1 {
		backoff.index++
	}
	return backoff.steps[backoff.index]
}

// Reset returns to the first step
func (backoff *Backoff) Reset() {
	backoff.mutex.Lock()
	backoff.index = 0
	backoff.mutex.Unlock()
}
