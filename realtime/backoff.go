package realtime

import "time"

const (
	// backoffFloor is the delay before the first reconnect attempt.
	backoffFloor = time.Second
	// backoffCap bounds the delay; there is no jitter.
	backoffCap = 30 * time.Second
)

// NextBackoff returns the reconnect delay for the given 1-based attempt
// number: 1s, 2s, 4s, ... capped at 30s. It is a pure function so the
// schedule is exactly testable.
func NextBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return backoffFloor
	}
	d := backoffFloor
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
