package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViperWithDefaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(newViperWithDefaults())
	require.NoError(t, err)

	require.Equal(t, "https://ecorp.sos.ga.gov/BusinessSearch", cfg.Portal.SearchURL)
	require.Equal(t, "#txtControlNo", cfg.Search.InputSelector)
	require.Equal(t, "#btnSearch", cfg.Search.ButtonSelector)
	require.Equal(t, "table.gridstyle", cfg.Extract.OfficerGridSelector)
	require.Equal(t, 30*time.Second, cfg.Challenge.Timeout)
	require.Equal(t, time.Second, cfg.Challenge.PollInterval)
	require.Equal(t, 3, cfg.Run.MaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.Run.Budget)
	require.Equal(t, "local", cfg.Artifacts.Provider)
	require.Equal(t, "logs", cfg.Artifacts.Dir)
	require.True(t, cfg.Probe.Enabled)
	require.Empty(t, cfg.Metrics.ListenAddr)
	require.False(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
portal:
  search_url: https://portal.example.test/search
challenge:
  timeout: 45s
  poll_interval: 2s
run:
  max_attempts: 5
  output_dir: /tmp/out
artifacts:
  provider: noop
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	v := newViperWithDefaults()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "https://portal.example.test/search", cfg.Portal.SearchURL)
	require.Equal(t, 45*time.Second, cfg.Challenge.Timeout)
	require.Equal(t, 2*time.Second, cfg.Challenge.PollInterval)
	require.Equal(t, 5, cfg.Run.MaxAttempts)
	require.Equal(t, "/tmp/out", cfg.Run.OutputDir)
	require.Equal(t, "noop", cfg.Artifacts.Provider)
	require.True(t, cfg.Logging.Development)
	// Untouched keys keep their defaults.
	require.Equal(t, "#btnSearch", cfg.Search.ButtonSelector)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "empty search url",
			mutate:  func(v *viper.Viper) { v.Set("portal.search_url", "") },
			wantErr: "portal.search_url",
		},
		{
			name:    "zero challenge timeout",
			mutate:  func(v *viper.Viper) { v.Set("challenge.timeout", "0s") },
			wantErr: "challenge.timeout",
		},
		{
			name:    "poll interval at timeout",
			mutate:  func(v *viper.Viper) { v.Set("challenge.poll_interval", "30s") },
			wantErr: "challenge.poll_interval",
		},
		{
			name:    "zero attempts",
			mutate:  func(v *viper.Viper) { v.Set("run.max_attempts", 0) },
			wantErr: "run.max_attempts",
		},
		{
			name:    "budget below attempt timeout",
			mutate:  func(v *viper.Viper) { v.Set("run.budget", "1m") },
			wantErr: "run.budget",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(v *viper.Viper) { v.Set("artifacts.provider", "gcs") },
			wantErr: "artifacts.gcs.bucket",
		},
		{
			name:    "unknown provider",
			mutate:  func(v *viper.Viper) { v.Set("artifacts.provider", "s3") },
			wantErr: "artifacts.provider",
		},
		{
			name:    "probe enabled without timeout",
			mutate:  func(v *viper.Viper) { v.Set("probe.timeout", "0s") },
			wantErr: "probe.timeout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			v := newViperWithDefaults()
			tc.mutate(v)
			_, err := Load(v)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
