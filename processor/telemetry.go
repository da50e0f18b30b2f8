package processor

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/telemetry"
)

// newTelemetryCollector builds the collector selected by cfg. Prometheus
// collectors get their own registry so a textfile dump only holds the
// generator's metrics.
func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		return collector, nil
	case "noop":
		return telemetry.Noop(), nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

type textfileWriter interface {
	WriteTextfile(path string) error
}
