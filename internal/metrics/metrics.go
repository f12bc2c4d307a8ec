// Package metrics defines a minimal pluggable metrics facade.
//
// The rest of the codebase depends only on this package; concrete emission
// (Datadog today) lives in subpackages and is selected at startup. The
// default backend is a nop, so instrumented code never has to check whether
// metrics are configured.
package metrics

import "sync"

// Labels are free-form metric dimensions (e.g. {"path": "/health"}).
type Labels map[string]string

// Backend is the sink interface implemented by concrete metric emitters.
type Backend interface {
	// IncCounter adds delta to a monotonically increasing counter.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a distribution (durations,
	// sizes, ...).
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits any buffered metrics. Backends that emit synchronously
	// may treat this as a no-op.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Call once at startup,
// before instrumented code runs.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush forwards to the installed backend.
func Flush() error {
	return current().Flush()
}
