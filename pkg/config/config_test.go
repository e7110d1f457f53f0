package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "delayed.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.SleepDelay)
	assert.Equal(t, 4*time.Hour, cfg.MaxRunTime)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Nil(t, cfg.MinPriority)
	assert.Nil(t, cfg.MaxPriority)
	assert.Equal(t, 1, cfg.Processes)
	assert.Equal(t, ":8080", cfg.AdminAddr)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
	assert.Equal(t, 25, cfg.Pool.MaxOpenConns)
	assert.Equal(t, 10, cfg.Pool.MaxIdleConns)
}

func TestParse_FromEnvironment(t *testing.T) {
	t.Setenv("DELAYED_DATABASE_URL", "postgres://localhost/jobs")
	t.Setenv("DELAYED_WORKER_NAME", "box-1")
	t.Setenv("DELAYED_SLEEP_DELAY", "250ms")
	t.Setenv("DELAYED_MAX_ATTEMPTS", "25")
	t.Setenv("DELAYED_MIN_PRIORITY", "-3")
	t.Setenv("DELAYED_DESTROY_FAILED_JOBS", "true")
	t.Setenv("DELAYED_PROCESSES", "4")
	t.Setenv("DELAYED_LOG_LEVEL", "DEBUG")
	t.Setenv("DELAYED_DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DELAYED_DB_CONN_MAX_LIFETIME", "10m")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/jobs", cfg.DatabaseURL)
	assert.Equal(t, "box-1", cfg.WorkerName)
	assert.Equal(t, 250*time.Millisecond, cfg.SleepDelay)
	assert.Equal(t, 25, cfg.MaxAttempts)
	require.NotNil(t, cfg.MinPriority)
	assert.Equal(t, -3, *cfg.MinPriority)
	assert.Nil(t, cfg.MaxPriority)
	assert.True(t, cfg.DestroyFailedJobs)
	assert.Equal(t, 4, cfg.Processes)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	pool := cfg.Pool.Storage()
	assert.Equal(t, 4, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, pool.ConnMaxLifetime)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"DELAYED_SLEEP_DELAY":       "soon",
		"DELAYED_PROCESSES":         "0",
		"DELAYED_LOG_FORMAT":        "xml",
		"DELAYED_LOG_LEVEL":         "loud",
		"DELAYED_MAX_RUN_TIME":      "-1s",
		"DELAYED_DB_MAX_IDLE_CONNS": "100",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestParse_BadValueWrapsParsingError(t *testing.T) {
	t.Setenv("DELAYED_MAX_ATTEMPTS", "many")
	_, err := Parse()
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DELAYED_WORKER_NAME=from-file\nDELAYED_ADMIN_ADDR=:9090\n"), 0o600))
	t.Setenv("DELAYED_ADMIN_ADDR", ":7070")
	t.Cleanup(func() { _ = os.Unsetenv("DELAYED_WORKER_NAME") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.WorkerName)
	assert.Equal(t, ":7070", cfg.AdminAddr, "the environment wins over .env")
}
