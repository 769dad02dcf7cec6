package config

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader(t *testing.T) {
	doc := `
engine:
  compression: zstd
  extent_size_threshold_points: 1024
logging:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	ct, err := cfg.CompressionType()
	require.NoError(t, err)
	assert.Equal(t, core.CompressionZSTD, ct)
	assert.Equal(t, 1024, cfg.Engine.ExtentSizeThresholdPoints)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoadDefaultsApply(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("{}"))
	require.NoError(t, err)

	ct, err := cfg.CompressionType()
	require.NoError(t, err)
	assert.Equal(t, core.CompressionSnappy, ct)
	assert.Equal(t, 4096, cfg.Engine.ExtentSizeThresholdPoints)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("engine:\n  compression: brotli\n"))
	require.Error(t, err)

	_, err = LoadFromReader(strings.NewReader("logging:\n  level: loud\n"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("engine: ["))
	require.Error(t, err)
}
