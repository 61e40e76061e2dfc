package connection

import (
	"math"
	"time"
)

const (
	DefaultReconnectBase   = 1000 * time.Millisecond
	DefaultReconnectCap    = 30000 * time.Millisecond
	DefaultReconnectFactor = 1.5
	DefaultMaxReconnects   = 15
	DefaultProbeInterval   = 5 * time.Second
)

// Backoff computes reconnect delays as min(base * factor^attempt, cap).
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultBackoff is 1s growing by 1.5x up to 30s, 15 attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        DefaultReconnectBase,
		Cap:         DefaultReconnectCap,
		Factor:      DefaultReconnectFactor,
		MaxAttempts: DefaultMaxReconnects,
	}
}

// Delay returns the wait before reconnect number attempt (zero based).
func (b Backoff) Delay(attempt int) time.Duration {
	ms := float64(b.Base/time.Millisecond) * math.Pow(b.Factor, float64(attempt))
	capMs := float64(b.Cap / time.Millisecond)
	if ms > capMs {
		ms = capMs
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Exhausted reports whether no reconnect may follow attempt.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
