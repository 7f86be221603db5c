package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges, and histograms for the
// multi-view compositor.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	framesComposedTotal    prometheus.Counter
	composeDuration        prometheus.Histogram
	regionCacheHitsTotal   prometheus.Counter
	regionCacheMissesTotal prometheus.Counter
	cameraUpdatesTotal     prometheus.Counter
	sensorUpdatesTotal     prometheus.Counter
	activeCameras          prometheus.Gauge
	inflightRequests       prometheus.Gauge
	errorsTotal            prometheus.Counter
}

// New creates and registers Prometheus metrics for the compositor.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_requests_total",
		Help: "Total number of HTTP requests received",
	})
	framesComposedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_frames_composed_total",
		Help: "Total number of frame generation ticks",
	})
	composeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "composer_compose_duration_seconds",
		Help:    "Wall time spent composing one tick's frames",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	regionCacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_region_cache_hits_total",
		Help: "Region bitmaps reused from the cross-frame cache",
	})
	regionCacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_region_cache_misses_total",
		Help: "Region bitmaps that had to be re-scaled",
	})
	cameraUpdatesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_camera_updates_total",
		Help: "Total number of camera image updates received",
	})
	sensorUpdatesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_sensor_updates_total",
		Help: "Total number of sensor data merges received",
	})
	activeCameras := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "composer_active_cameras",
		Help: "Number of cameras currently flagged active",
	})
	inflightRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "composer_inflight_requests",
		Help: "HTTP requests currently being served, including long-lived streams",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		framesComposedTotal,
		composeDuration,
		regionCacheHitsTotal,
		regionCacheMissesTotal,
		cameraUpdatesTotal,
		sensorUpdatesTotal,
		activeCameras,
		inflightRequests,
		errorsTotal,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		framesComposedTotal:    framesComposedTotal,
		composeDuration:        composeDuration,
		regionCacheHitsTotal:   regionCacheHitsTotal,
		regionCacheMissesTotal: regionCacheMissesTotal,
		cameraUpdatesTotal:     cameraUpdatesTotal,
		sensorUpdatesTotal:     sensorUpdatesTotal,
		activeCameras:          activeCameras,
		inflightRequests:       inflightRequests,
		errorsTotal:            errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncFramesComposed increments the frame generation tick counter.
func (m *Metrics) IncFramesComposed() {
	m.framesComposedTotal.Inc()
}

// ObserveComposeDuration records the wall time of one compose tick.
func (m *Metrics) ObserveComposeDuration(d time.Duration) {
	m.composeDuration.Observe(d.Seconds())
}

// IncRegionCacheHits increments the region cache hit counter.
func (m *Metrics) IncRegionCacheHits() {
	m.regionCacheHitsTotal.Inc()
}

// IncRegionCacheMisses increments the region cache miss counter.
func (m *Metrics) IncRegionCacheMisses() {
	m.regionCacheMissesTotal.Inc()
}

// IncCameraUpdates increments the camera update counter.
func (m *Metrics) IncCameraUpdates() {
	m.cameraUpdatesTotal.Inc()
}

// IncSensorUpdates increments the sensor merge counter.
func (m *Metrics) IncSensorUpdates() {
	m.sensorUpdatesTotal.Inc()
}

// SetActiveCameras sets the active cameras gauge.
func (m *Metrics) SetActiveCameras(n int) {
	m.activeCameras.Set(float64(n))
}

// IncInflight increments the in-flight requests gauge.
func (m *Metrics) IncInflight() {
	m.inflightRequests.Inc()
}

// DecInflight decrements the in-flight requests gauge.
func (m *Metrics) DecInflight() {
	m.inflightRequests.Dec()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active cameras).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
