package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/motorhome/config"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := SetupWriter(config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Debug().Int("plc", 11).Msg("wrote plc")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "wrote plc", entry["message"])
	require.Equal(t, "motorhome", entry["app"])
	require.EqualValues(t, 11, entry["plc"])
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestSetupWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := SetupWriter(config.LoggingConfig{Level: "WARN", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	_, _, err := SetupWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)

	_, _, err = SetupWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)

	_, _, err = SetupWriter(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestLokiLabelsDefaultApp(t *testing.T) {
	labels := lokiLabels(map[string]string{"beamline": "i16"})
	require.Equal(t, model.LabelValue("motorhome"), labels["app"])
	require.Equal(t, model.LabelValue("i16"), labels["beamline"])

	labels = lokiLabels(map[string]string{"app": "homing"})
	require.Equal(t, model.LabelValue("homing"), labels["app"])
}
