package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 7
horizon: 500
log_level: debug
machines: 9
machine_types: 3
policy: cnp
metrics_port: 9090
failures:
  enabled: true
  preset: low
workload:
  arrival_rate: 0.25
  machine_types: 3
  min_operations: 2
  max_operations: 4
  min_duration: 1
  max_duration: 6
  due_date_slack: 2.0
taillard:
  file: bench.txt
  instance: ft06
`), 0o644))

	fc, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fc.Seed)
	assert.Equal(t, 500.0, fc.Horizon)
	assert.Equal(t, "debug", fc.LogLevel)
	assert.Equal(t, 9, fc.Machines)
	assert.Equal(t, "cnp", fc.Policy)
	assert.Equal(t, 9090, fc.MetricsPort)
	assert.True(t, fc.Failures.Enabled)
	assert.Equal(t, "low", fc.Failures.Preset)
	assert.Equal(t, 0.25, fc.Workload.ArrivalRate)
	assert.Equal(t, 2.0, fc.Workload.DueDateSlack)
	assert.Equal(t, "bench.txt", fc.Taillard.File)
	assert.Equal(t, "ft06", fc.Taillard.Instance)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: [not an int"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
