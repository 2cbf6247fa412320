package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRegistry_SameSeriesReturnsSameCounter(t *testing.T) {
	r := NewCollector()
	a := r.Counter("x_total", "x", Labels("k", "v"))
	b := r.Counter("x_total", "x", Labels("k", "v"))
	a.Inc()
	b.Inc()
	if a != b || a.Value() != 2 {
		t.Fatalf("expected shared counter with value 2, got %d", a.Value())
	}
}

func TestLabels(t *testing.T) {
	got := Labels("action", "send", "outcome", "ok")
	if got != `action="send",outcome="ok"` {
		t.Fatalf("unexpected labels %s", got)
	}
}

func TestDispatch_SettledUpdatesSeries(t *testing.T) {
	r := NewCollector()
	d := NewDispatch(r)

	d.Started()
	d.Started()
	if d.Inflight.Value() != 2 {
		t.Fatalf("expected 2 in flight, got %d", d.Inflight.Value())
	}
	d.Settled("send", "ok", 300*time.Millisecond)
	d.Settled("scrape", "error", 3*time.Second)

	if d.Inflight.Value() != 0 {
		t.Fatalf("expected 0 in flight, got %d", d.Inflight.Value())
	}
	if d.Total("send", "ok").Value() != 1 || d.Total("scrape", "error").Value() != 1 {
		t.Fatal("outcome counters not incremented")
	}
}

func TestHandler_Exposition(t *testing.T) {
	r := NewCollector()
	d := NewDispatch(r)
	d.Started()
	d.Settled("upload_text", "ok", 200*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE ragdesk_dispatch_total counter",
		`ragdesk_dispatch_total{action="upload_text",outcome="ok"} 1`,
		"ragdesk_inflight_actions 0",
		`ragdesk_dispatch_latency_seconds_bucket{action="upload_text",le="0.5"} 1`,
		`ragdesk_dispatch_latency_seconds_bucket{action="upload_text",le="0.1"} 0`,
		`ragdesk_dispatch_latency_seconds_bucket{action="upload_text",le="+Inf"} 1`,
		`ragdesk_dispatch_latency_seconds_count{action="upload_text"} 1`,
		"ragdesk_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
}
