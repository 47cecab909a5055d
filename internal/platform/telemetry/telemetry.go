// Package telemetry provides scrape-cycle observability using only standard
// library constructs: counters, gauges, a duration histogram, and a
// Prometheus text exposition endpoint -- without importing a metrics SDK.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Metric names recorded by the scrape cycle.
const (
	MetricScrapeRuns       = "vaxwatch_scrape_runs_total"
	MetricScrapeFailures   = "vaxwatch_scrape_failures_total"
	MetricUnresolvedAppts  = "vaxwatch_appointments_unresolved_total"
	MetricOverlapAnomalies = "vaxwatch_overlap_anomalies_total"
	MetricAlertsSent       = "vaxwatch_alerts_sent_total"
	MetricLocations        = "vaxwatch_locations"
	MetricScrapeDuration   = "vaxwatch_scrape_duration_seconds"
)

var durationBoundaries = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type histogram struct {
	mu         sync.Mutex
	boundaries []float64
	counts     []int64
	sum        float64
	count      int64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, counts: make([]int64, len(boundaries)+1)}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := len(h.boundaries)
	for i, b := range h.boundaries {
		if v <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += v
	h.count++
}

// Provider holds the process-wide metric state.
type Provider struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
	duration *histogram
}

// NewProvider creates an empty metrics Provider.
func NewProvider() *Provider {
	return &Provider{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
		duration: newHistogram(durationBoundaries),
	}
}

// Count increments a counter by delta.
func (p *Provider) Count(name string, delta int64) {
	p.mu.Lock()
	p.counters[name] += delta
	p.mu.Unlock()
}

// SetGauge sets a gauge to val.
func (p *Provider) SetGauge(name string, val int64) {
	p.mu.Lock()
	p.gauges[name] = val
	p.mu.Unlock()
}

// Counter returns a counter's current value.
func (p *Provider) Counter(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[name]
}

// Gauge returns a gauge's current value.
func (p *Provider) Gauge(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gauges[name]
}

// ObserveScrapeDuration records one scrape cycle's wall time.
func (p *Provider) ObserveScrapeDuration(d time.Duration) {
	p.duration.Observe(d.Seconds())
}

// PrometheusHandler serves the metric state in Prometheus text exposition
// format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		p.mu.RLock()
		writeSorted(&b, "counter", p.counters)
		writeSorted(&b, "gauge", p.gauges)
		p.mu.RUnlock()

		p.duration.mu.Lock()
		fmt.Fprintf(&b, "# TYPE %s histogram\n", MetricScrapeDuration)
		cumulative := int64(0)
		for i, bound := range p.duration.boundaries {
			cumulative += p.duration.counts[i]
			fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", MetricScrapeDuration, formatBound(bound), cumulative)
		}
		cumulative += p.duration.counts[len(p.duration.boundaries)]
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", MetricScrapeDuration, cumulative)
		fmt.Fprintf(&b, "%s_sum %g\n", MetricScrapeDuration, p.duration.sum)
		fmt.Fprintf(&b, "%s_count %d\n", MetricScrapeDuration, p.duration.count)
		p.duration.mu.Unlock()

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
	}
}

func writeSorted(b *strings.Builder, typ string, metrics map[string]int64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "# TYPE %s %s\n%s %d\n", name, typ, name, metrics[name])
	}
}

func formatBound(b float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", b), "0"), ".")
}
