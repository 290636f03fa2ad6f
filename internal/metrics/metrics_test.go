package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestMetricsIncAndGet(t *testing.T) {
	m := New()

	if got := m.Get(EnvelopesRelayed); got != 0 {
		t.Fatalf("Get of untouched counter = %d, want 0", got)
	}

	m.Inc(EnvelopesRelayed)
	m.Inc(EnvelopesRelayed)
	m.Inc(AuthFailures)

	if got := m.Get(EnvelopesRelayed); got != 2 {
		t.Fatalf("Get(%s) = %d, want 2", EnvelopesRelayed, got)
	}
	if got := m.Get(AuthFailures); got != 1 {
		t.Fatalf("Get(%s) = %d, want 1", AuthFailures, got)
	}
}

func TestMetricsSnapshotIsCopy(t *testing.T) {
	m := New()
	m.Inc(RoomJoins)

	snap := m.Snapshot()
	snap[RoomJoins] = 100

	if got := m.Get(RoomJoins); got != 1 {
		t.Fatalf("Get after snapshot mutation = %d, want 1", got)
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(ConnectionsOpened)
			}
		}()
	}
	wg.Wait()

	if got := m.Get(ConnectionsOpened); got != 8000 {
		t.Fatalf("Get = %d, want 8000", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(EnvelopesRelayed)
	m.Inc(EnvelopesRelayed)
	m.Inc(DeliveriesDropped)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}

	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"# TYPE medconnect_signaling_events_total counter",
		`medconnect_signaling_events_total{event="envelopes_relayed"} 2`,
		`medconnect_signaling_events_total{event="deliveries_dropped_queue_full"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrometheusHandlerNilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
