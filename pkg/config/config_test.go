package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sampleforge/mhrw/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultNumWorkers, cfg.Dispatcher.NumWorkers)
	assert.Equal(t, uint64(config.DefaultBaseSeed), cfg.Dispatcher.BaseSeed)
	assert.Equal(t, int64(config.DefaultNSweep), cfg.Walk.NSweep)
	assert.Equal(t, int64(config.DefaultNTherm), cfg.Walk.NTherm)
	assert.Equal(t, int64(config.DefaultNRun), cfg.Walk.NRun)
	assert.InDelta(t, config.DefaultInitialStepSize, cfg.Walk.InitialStepSize, 1e-9)
	assert.Equal(t, config.DefaultHistNumBins, cfg.Histogram.NumBins)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	configContent := `
dispatcher:
  num_workers: 16
  base_seed: 7

walk:
  n_sweep: 8
  n_therm: 500
  n_run: 5000

histogram:
  min: -10
  max: 10
  num_bins: 100
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-config-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 16, cfg.Dispatcher.NumWorkers)
	assert.Equal(t, uint64(7), cfg.Dispatcher.BaseSeed)
	assert.Equal(t, int64(8), cfg.Walk.NSweep)
	assert.Equal(t, int64(500), cfg.Walk.NTherm)
	assert.Equal(t, int64(5000), cfg.Walk.NRun)
	assert.Equal(t, 100, cfg.Histogram.NumBins)
	assert.InDelta(t, -10.0, cfg.Histogram.Min, 1e-9)
	assert.InDelta(t, 10.0, cfg.Histogram.Max, 1e-9)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MHRW_DISPATCHER_NUM_WORKERS", "9")
	t.Setenv("MHRW_WALK_N_SWEEP", "6")
	t.Setenv("MHRW_HISTOGRAM_NUM_BINS", "30")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Dispatcher.NumWorkers)
	assert.Equal(t, int64(6), cfg.Walk.NSweep)
	assert.Equal(t, 30, cfg.Histogram.NumBins)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestValidateConfig_RejectsInvalidFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "zero workers",
			content: "dispatcher:\n  num_workers: 0\n",
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "zero n_sweep",
			content: "walk:\n  n_sweep: 0\n",
			wantErr: config.ErrInvalidNSweep,
		},
		{
			name:    "non-positive step size",
			content: "walk:\n  initial_step_size: 0\n",
			wantErr: config.ErrInvalidStepSize,
		},
		{
			name:    "zero bins",
			content: "histogram:\n  num_bins: 0\n",
			wantErr: config.ErrInvalidBins,
		},
		{
			name:    "inverted range",
			content: "histogram:\n  min: 5\n  max: -5\n",
			wantErr: config.ErrInvalidRange,
		},
		{
			name:    "zero binning levels",
			content: "binning:\n  num_levels: 0\n",
			wantErr: config.ErrInvalidLevels,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := dir + "/mhrw.yaml"
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := config.LoadConfig(path)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTimeDurationParsing(t *testing.T) {
	t.Parallel()

	configContent := `
dispatcher:
  status_report_interval: "5s"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-duration-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 5*time.Second, cfg.Dispatcher.StatusReportInterval)
}
