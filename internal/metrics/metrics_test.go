package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestGenerateDurationRecordsObservation(t *testing.T) {
	start := time.Now()
	time.Sleep(5 * time.Millisecond)
	ObserveGenerate(start, "files", "success")

	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "patchbay_generate_duration_ms" {
			continue
		}
		found = true
		if len(mf.Metric) == 0 {
			t.Fatalf("generate_duration_ms metric has no samples")
		}
		if got := mf.Metric[0].GetHistogram().GetSampleCount(); got == 0 {
			t.Fatalf("expected histogram sample count > 0, got %d", got)
		}
	}
	if !found {
		t.Fatalf("patchbay_generate_duration_ms not found")
	}
}

func TestObserveSavingsUpdatesRatio(t *testing.T) {
	ObserveSavings(1000, 100)

	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "patchbay_patch_size_ratio" {
			continue
		}
		ratio := mf.Metric[0].GetGauge().GetValue()
		if ratio <= 0 || ratio >= 1 {
			t.Errorf("expected ratio in (0, 1), got %f", ratio)
		}
		return
	}
	t.Fatal("patchbay_patch_size_ratio not found")
}

func TestObserveSavingsIgnoresInvalidInput(t *testing.T) {
	// Must not panic or poison the counters.
	ObserveSavings(0, 10)
	ObserveSavings(-5, 10)
	ObserveSavings(10, -1)
}

func TestObserveCacheLookup(t *testing.T) {
	ObserveCacheLookup(true)
	ObserveCacheLookup(false)

	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "patchbay_cache_lookup_total" {
			continue
		}
		if len(mf.Metric) < 2 {
			t.Errorf("expected hit and miss series, got %d", len(mf.Metric))
		}
		return
	}
	t.Fatal("patchbay_cache_lookup_total not found")
}

func TestMetricsEndpointExposesCoreMetrics(t *testing.T) {
	ObserveGenerate(time.Now(), "buffers", "success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		"patchbay_generate_total",
		"patchbay_generate_duration_ms",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics endpoint missing %s", want)
		}
	}
}
