package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
worker:
  base_url: http://worker.internal:9000
  api_key: test-key
  signing_secret: test-secret
`

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http://worker.internal:9000", cfg.Worker.BaseURL)
	require.Equal(t, 5*time.Minute, cfg.Auth.FreshnessWindow)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, 10*time.Second, cfg.RateLimit.Interval)
	require.Equal(t, "memory", cfg.RateLimit.Driver)
	require.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, 4, cfg.Dispatch.Workers)
	require.Equal(t, "info", cfg.Observability.LogLevel)
	require.False(t, cfg.Observability.Tracing.Enabled)
	require.Equal(t, "otlp", cfg.Observability.Tracing.Exporter)
	require.Equal(t, 0.1, cfg.Observability.Tracing.SamplingRate)
}

func TestLoad_UnsupportedTracingExporter(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
observability:
  tracing:
    enabled: true
    exporter: zipkin
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported tracing exporter")
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RELAY_WORKER_KEY", "expanded-key")
	cfg, err := Load(writeConfig(t, `
worker:
  base_url: http://worker.internal:9000
  api_key: ${RELAY_WORKER_KEY}
  signing_secret: s
`))
	require.NoError(t, err)
	require.Equal(t, "expanded-key", cfg.Worker.APIKey)
}

func TestLoad_MissingWorkerSettings(t *testing.T) {
	_, err := Load(writeConfig(t, `
worker:
  base_url: http://worker.internal:9000
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestLoad_RedisDriverRequiresAddr(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
ratelimit:
  driver: redis
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis_addr")
}

func TestLoad_UnsupportedStoreDriver(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
store:
  driver: mysql
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported store driver")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_PostgresDriver(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
store:
  driver: postgres
  dsn_env: RELAY_DB_DSN
  max_open_conns: 25
`))
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, 25, cfg.Store.MaxOpenConns)
	require.Equal(t, 2, cfg.Store.MaxIdleConns)
}
