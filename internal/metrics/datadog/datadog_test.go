package datadog

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"buscador/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// newTestBackend wires a Backend with a fake submitter and a ticker so slow
// it never fires during a test.
func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()

	fake := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		newTicker:  time.NewTicker,
		submitter:  fake,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, fake
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestPathStatusKeyRoundTrip(t *testing.T) {
	t.Parallel()

	k := pathStatusKey(metrics.Labels{"path": "/api/establecimientos", "status": "200"})
	path, status := splitPathStatusKey(k)
	if path != "/api/establecimientos" || status != "200" {
		t.Fatalf("round trip = (%q, %q)", path, status)
	}

	// Missing labels collapse to "unknown" rather than empty tags.
	path, status = splitPathStatusKey(pathStatusKey(nil))
	if path != "unknown" || status != "unknown" {
		t.Fatalf("missing labels = (%q, %q), want unknown/unknown", path, status)
	}
}

func TestFlushSubmitsCountersAndPercentiles(t *testing.T) {
	b, fake := newTestBackend(t)

	b.IncCounter("http_requests_total", 1, metrics.Labels{"path": "/health", "status": "200"})
	b.IncCounter("http_requests_total", 2, metrics.Labels{"path": "/health", "status": "200"})
	b.IncCounter("load_records_total", 5, metrics.Labels{"kind": "inserted"})
	b.ObserveHistogram("http_request_duration_seconds", 0.1, metrics.Labels{"path": "/health", "status": "200"})
	b.ObserveHistogram("http_request_duration_seconds", 0.3, metrics.Labels{"path": "/health", "status": "200"})

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	payload, ok := fake.last()
	if !ok {
		t.Fatalf("no payload submitted")
	}

	byMetric := map[string]datadogV2.MetricSeries{}
	for _, s := range payload.Series {
		byMetric[s.Metric] = s
	}

	req, ok := byMetric["buscador.http.requests.total"]
	if !ok {
		t.Fatalf("missing request counter; got %v", keys(byMetric))
	}
	if got := *req.Points[0].Value; got != 3 {
		t.Fatalf("request counter = %v, want 3", got)
	}
	if !hasTag(req.Tags, "path:/health") || !hasTag(req.Tags, "status:200") || !hasTag(req.Tags, "job:test") {
		t.Fatalf("request counter tags = %v", req.Tags)
	}

	load, ok := byMetric["buscador.load.records.total"]
	if !ok || *load.Points[0].Value != 5 || !hasTag(load.Tags, "kind:inserted") {
		t.Fatalf("load counter wrong: %+v", load)
	}

	if _, ok := byMetric["buscador.http.request_duration_seconds.p50"]; !ok {
		t.Fatalf("missing duration percentiles; got %v", keys(byMetric))
	}
	maxSeries := byMetric["buscador.http.request_duration_seconds.max"]
	if *maxSeries.Points[0].Value != 0.3 {
		t.Fatalf("duration max = %v, want 0.3", *maxSeries.Points[0].Value)
	}
}

func TestFlushSkipsWhenEmpty(t *testing.T) {
	b, fake := newTestBackend(t)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := fake.last(); ok {
		t.Fatalf("expected no submission for empty buffers")
	}
}

func TestFlushResetsBuffers(t *testing.T) {
	b, fake := newTestBackend(t)

	b.IncCounter("http_requests_total", 1, metrics.Labels{"path": "/", "status": "200"})
	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	fake.mu.Lock()
	n := len(fake.payloads)
	fake.mu.Unlock()
	if n != 1 {
		t.Fatalf("submitted %d payloads, want 1 (buffers must reset)", n)
	}
	_ = b.Close()
}

func TestIgnoresUnknownMetricsAndNonPositiveDeltas(t *testing.T) {
	b, fake := newTestBackend(t)

	b.IncCounter("no_such_counter", 1, nil)
	b.IncCounter("http_requests_total", 0, metrics.Labels{"path": "/", "status": "200"})
	b.IncCounter("http_requests_total", -3, metrics.Labels{"path": "/", "status": "200"})
	b.ObserveHistogram("no_such_histogram", 0.5, nil)
	b.ObserveHistogram("http_request_duration_seconds", -1, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := fake.last(); ok {
		t.Fatalf("nothing valid was recorded; expected no submission")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 6},
		{0.9, 9},
		{1, 10},
	}
	for _, tc := range cases {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("p%v = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty samples = %v, want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod , service:api ,, ")
	want := []string{"env:prod", "service:api"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ParseTagsCSV = %v, want %v", got, want)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("ParseTagsCSV(\"\") = %v, want nil", got)
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func keys(m map[string]datadogV2.MetricSeries) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
