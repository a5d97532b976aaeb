package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
operator:
  ntheta: 2
  nz: 32
  n: 40
  nscan: 9
  ndetx: 16
  ndety: 16
  nprb: 8
execution:
  numWorkers: 3
  memoryLimitMB: 64
simulation:
  scanStep: 4
output:
  verbose: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Operator.N)
	assert.Equal(t, 8, cfg.Operator.Nprb)
	assert.Equal(t, 3, cfg.Execution.NumWorkers)
	assert.Equal(t, 4, cfg.Simulation.ScanStep)
	assert.True(t, cfg.Output.Verbose)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultConfig().Simulation.ProbeSigma, cfg.Simulation.ProbeSigma)

	dev := cfg.DeviceConfig()
	assert.Equal(t, 3, dev.Workers)
	assert.Equal(t, int64(64<<20), dev.MemoryLimit)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  numWorkers: 0\n"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "numWorkers")
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
