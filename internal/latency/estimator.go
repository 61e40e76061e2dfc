package latency

import "sync"

const (
	// weight kept from the previous estimate on every new sample
	historyWeight = 0.8
	sampleWeight  = 1 - historyWeight
)

// Estimator smooths one-way network delay measured by ping/pong probes.
// All values are milliseconds.
type Estimator struct {
	mu       sync.RWMutex
	estimate float64
	samples  int
}

// New returns an estimator with no samples.
func New() *Estimator {
	return &Estimator{}
}

// OnProbeSent is called when a probe leaves. The clock value travels inside
// the probe itself so nothing is recorded here.
func (e *Estimator) OnProbeSent(clientTime float64) {}

// OnProbeEcho folds the round trip of an echoed probe into the estimate and
// returns the new estimate. Negative round trips are ignored.
func (e *Estimator) OnProbeEcho(echoedClock, now float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	rtt := now - echoedClock
	if rtt < 0 {
		return e.estimate
	}
	sample := rtt / 2

	if e.samples == 0 {
		e.estimate = sample
	} else {
		// explicit conversions keep the products rounded, so no FMA on arm64
		e.estimate = float64(e.estimate*historyWeight) + float64(sample*sampleWeight)
	}
	e.samples++

	return e.estimate
}

// Estimate returns the smoothed one-way delay in milliseconds.
func (e *Estimator) Estimate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.estimate
}

// Seconds returns the smoothed one-way delay in seconds.
func (e *Estimator) Seconds() float64 {
	return e.Estimate() / 1000
}

// Samples returns how many probes contributed to the estimate.
func (e *Estimator) Samples() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.samples
}
