package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures events emitted while generating homing PLCs.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks run inline with generation and must be cheap.
type Collector interface {
	IncHotReload(file string)
	IncPlcGenerated(controller string)
	IncSnippet(name string)
	IncGenerationError(stage string)
	ObserveGeneration(d time.Duration)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string) {}
func (noopCollector) IncPlcGenerated(string) {}
func (noopCollector) IncSnippet(string) {}
func (noopCollector) IncGenerationError(string) {}
func (noopCollector) ObserveGeneration(time.Duration) {}

// PrometheusCollector exposes generation counters via Prometheus.
type PrometheusCollector struct {
	hotReloads *prometheus.CounterVec
	plcs       *prometheus.CounterVec
	snippets   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   prometheus.Histogram
	gatherer   prometheus.Gatherer
}

// NewPrometheusCollector registers the metrics with reg. Registering twice
// on the same registerer reuses the existing metrics.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	var err error
	if c.hotReloads, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "motorhome_config_hot_reload_total",
		Help: "Number of regenerations triggered per definition source file.",
	}, "file"); err != nil {
		return nil, err
	}
	if c.plcs, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "motorhome_plcs_generated_total",
		Help: "Number of homing PLC files written per controller type.",
	}, "controller"); err != nil {
		return nil, err
	}
	if c.snippets, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "motorhome_snippets_total",
		Help: "Number of snippets added to generated PLCs.",
	}, "snippet"); err != nil {
		return nil, err
	}
	if c.failures, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "motorhome_generation_errors_total",
		Help: "Number of failed generation steps.",
	}, "stage"); err != nil {
		return nil, err
	}

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "motorhome_generation_duration_seconds",
		Help:    "Time taken to generate all PLCs of a definition.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	if err := reg.Register(histogram); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, err
		}
		histogram = existing
	}
	c.duration = histogram
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("%s registered with a different type: %w", opts.Name, err)
		}
		return existing, nil
	}
	return counter, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// IncPlcGenerated counts a written PLC file.
func (p *PrometheusCollector) IncPlcGenerated(controller string) {
	if p == nil || p.plcs == nil {
		return
	}
	p.plcs.WithLabelValues(controller).Inc()
}

func (p *PrometheusCollector) IncSnippet(name string) {
	if p == nil || p.snippets == nil {
		return
	}
	p.snippets.WithLabelValues(name).Inc()
}

func (p *PrometheusCollector) IncGenerationError(stage string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.WithLabelValues(stage).Inc()
}

func (p *PrometheusCollector) ObserveGeneration(d time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.Observe(d.Seconds())
}

// WriteTextfile writes all gathered metrics to path in the text exposition
// format read by the node exporter textfile collector.
func (p *PrometheusCollector) WriteTextfile(path string) error {
	if p == nil {
		return errors.New("nil collector")
	}
	if err := prometheus.WriteToTextfile(path, p.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
