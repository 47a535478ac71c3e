package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patchbay"

var (
	// Registry is a dedicated Prometheus registry for all patchbay metrics.
	Registry = prometheus.NewRegistry()

	// GenerateDuration measures time spent generating patches.
	GenerateDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_ms",
			Help:      "Duration of patch generation operations in milliseconds",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"source"}, // files | buffers
	)

	// GenerateTotal counts generation operations by source and outcome.
	GenerateTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_total",
			Help:      "Total number of patch generation operations",
		},
		[]string{"source", "outcome"},
	)

	// PatchSavedBytesTotal accumulates bytes saved versus shipping the new
	// payload whole.
	PatchSavedBytesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_saved_bytes_total",
			Help:      "Cumulative bytes saved by shipping patches instead of full payloads",
		},
	)

	// PatchSizeRatio tracks the running patch-to-new-payload ratio.
	PatchSizeRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patch_size_ratio",
			Help:      "Running ratio of patch bytes to new payload bytes (lower is better)",
		},
	)

	// CacheLookupTotal counts patch cache lookups by result.
	CacheLookupTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookup_total",
			Help:      "Patch cache lookups grouped by hit or miss",
		},
		[]string{"result"},
	)

	// WatchRegenerations counts patches regenerated by the watch loop.
	WatchRegenerations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_regenerations_total",
			Help:      "Patches regenerated because a watched input changed",
		},
	)

	// Up is a liveness gauge for the watch loop.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the watch loop is running and healthy",
		},
	)
)

var (
	totalNewBytes   atomic.Int64
	totalPatchBytes atomic.Int64
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
}

// ObserveGenerate records timing and counters for a generation operation.
func ObserveGenerate(start time.Time, source, outcome string) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	GenerateDuration.WithLabelValues(source).Observe(elapsed)
	GenerateTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSavings updates the saved-bytes counter and size ratio after a
// successful generation.
func ObserveSavings(newBytes, patchBytes int64) {
	if newBytes <= 0 || patchBytes < 0 {
		return
	}

	if saved := newBytes - patchBytes; saved > 0 {
		PatchSavedBytesTotal.Add(float64(saved))
	}

	totalNew := totalNewBytes.Add(newBytes)
	totalPatch := totalPatchBytes.Add(patchBytes)
	if totalNew > 0 {
		PatchSizeRatio.Set(float64(totalPatch) / float64(totalNew))
	}
}

// ObserveCacheLookup records a patch cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupTotal.WithLabelValues(result).Inc()
}

// ObserveWatchRegeneration counts one watch-triggered regeneration.
func ObserveWatchRegeneration() {
	WatchRegenerations.Inc()
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on the provided address.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
