package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_Schedule(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equalf(t, w, NextBackoff(i+1), "attempt %d", i+1)
	}
}

func TestNextBackoff_DegenerateAttempts(t *testing.T) {
	assert.Equal(t, time.Second, NextBackoff(0))
	assert.Equal(t, time.Second, NextBackoff(-3))
	assert.Equal(t, 30*time.Second, NextBackoff(1000))
}
