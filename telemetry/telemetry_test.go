package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncHotReload("homing.yaml")
	collector.IncPlcGenerated("GeoBrick")
	collector.ObserveGeneration(time.Second)
}

func TestPrometheusCollectorRegistersAndReusesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncHotReload("a.yaml")

	family := gatherFamily(t, reg, "motorhome_config_hot_reload_total")
	requireCounterValue(t, family, 1)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.hotReloads, again.hotReloads)

	again.IncHotReload("a.yaml")
	requireCounterValue(t, gatherFamily(t, reg, "motorhome_config_hot_reload_total"), 2)
}

func TestPrometheusCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncPlcGenerated("PMAC")
	collector.IncSnippet("home")
	collector.IncGenerationError("render")
	collector.ObserveGeneration(20 * time.Millisecond)

	requireCounterValue(t, gatherFamily(t, reg, "motorhome_plcs_generated_total"), 1)
	requireCounterValue(t, gatherFamily(t, reg, "motorhome_snippets_total"), 1)
	requireCounterValue(t, gatherFamily(t, reg, "motorhome_generation_errors_total"), 1)
	histogram := gatherFamily(t, reg, "motorhome_generation_duration_seconds")
	require.Equal(t, uint64(1), histogram.Metric[0].GetHistogram().GetSampleCount())
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	collector.IncPlcGenerated("GeoBrick")

	path := filepath.Join(t.TempDir(), "motorhome.prom")
	require.NoError(t, collector.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `motorhome_plcs_generated_total{controller="GeoBrick"} 1`))
}

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
