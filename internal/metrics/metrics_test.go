package metrics

import "testing"

type captureBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	flushed    int
}

func (c *captureBackend) IncCounter(name string, delta float64, _ Labels) {
	c.counters[name] += delta
}

func (c *captureBackend) ObserveHistogram(name string, value float64, _ Labels) {
	c.histograms[name] = append(c.histograms[name], value)
}

func (c *captureBackend) Flush() error {
	c.flushed++
	return nil
}

func TestNopDefaultDoesNotPanic(t *testing.T) {
	IncCounter("anything", 1, nil)
	ObserveHistogram("anything", 0.5, Labels{"k": "v"})
	if err := Flush(); err != nil {
		t.Fatalf("nop flush: %v", err)
	}
}

func TestSetBackendRoutesCalls(t *testing.T) {
	c := &captureBackend{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
	}
	SetBackend(c)
	defer SetBackend(nopBackend{})

	IncCounter("http_requests_total", 1, Labels{"path": "/health"})
	IncCounter("http_requests_total", 2, nil)
	ObserveHistogram("http_request_duration_seconds", 0.25, nil)
	_ = Flush()

	if c.counters["http_requests_total"] != 3 {
		t.Fatalf("counter = %v, want 3", c.counters["http_requests_total"])
	}
	if len(c.histograms["http_request_duration_seconds"]) != 1 {
		t.Fatalf("histogram samples = %v", c.histograms)
	}
	if c.flushed != 1 {
		t.Fatalf("flushed = %d, want 1", c.flushed)
	}
}

func TestSetBackendIgnoresNil(t *testing.T) {
	SetBackend(nil)
	// The nop backend must still be in place.
	IncCounter("still-works", 1, nil)
}
