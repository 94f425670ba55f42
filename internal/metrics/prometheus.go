package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// Namespace prefixes every metric name.
const Namespace = "uds_preflight_scan"

// Collector records scan outcomes.
type Collector interface {
	// ObserveImage records the outcome of one image scan.
	ObserveImage(res *types.ImageScanResult)
	// MetricsHandler serves the collector's registry.
	MetricsHandler() http.Handler
	// WriteToTextfile writes the registry in node-exporter textfile format.
	WriteToTextfile(path string) error
	// Gatherer exposes the underlying registry.
	Gatherer() prometheus.Gatherer
}

type prometheusCollector struct {
	registry      *prometheus.Registry
	imagesScanned *prometheus.CounterVec
	testCases     *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scanFailures  prometheus.Counter
}

type contextKey string

const collectorKey contextKey = "metrics"

// New creates a collector with its own registry, with every metric name prefixed by namespace.
func New(namespace string) Collector {
	c := &prometheusCollector{
		registry: prometheus.NewRegistry(),
		imagesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_scanned_total",
			Help:      "Images scanned, by verdict.",
		}, []string{"verdict"}),
		testCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_cases_total",
			Help:      "Test case results, by status.",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_scan_duration_seconds",
			Help:      "Time spent scanning a single image.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_failures_total",
			Help:      "Image scans that errored or exited non-zero.",
		}),
	}
	c.registry.MustRegister(c.imagesScanned, c.testCases, c.scanDuration, c.scanFailures)
	return c
}

// WithMetrics returns a new context carrying a collector for namespace.
func WithMetrics(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, collectorKey, New(namespace))
}

// FromContext returns the collector stored in ctx, or a new one for namespace.
func FromContext(ctx context.Context, namespace string) Collector {
	if c, ok := ctx.Value(collectorKey).(Collector); ok {
		return c
	}
	return New(namespace)
}

func (c *prometheusCollector) ObserveImage(res *types.ImageScanResult) {
	verdict := string(res.Verdict)
	if verdict == "" {
		verdict = "UNKNOWN"
	}
	c.imagesScanned.WithLabelValues(verdict).Inc()
	for _, row := range res.Rows {
		c.testCases.WithLabelValues(string(row.Status)).Inc()
	}
	c.scanDuration.Observe(res.Elapsed.Seconds())
	if res.Failed() {
		c.scanFailures.Inc()
	}
}

func (c *prometheusCollector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *prometheusCollector) Gatherer() prometheus.Gatherer {
	return c.registry
}

func (c *prometheusCollector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
