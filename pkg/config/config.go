// Package config loads the delayed binary's settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jdziat/delayed/pkg/storage"
)

var (
	// ErrParsingConfig wraps every environment parsing failure.
	ErrParsingConfig = errors.New("delayed: failed to parse config")
	// ErrInvalidConfig is returned when parsed values are out of range.
	ErrInvalidConfig = errors.New("delayed: invalid config")
)

// Config holds everything the delayed command needs.
type Config struct {
	// DatabaseURL is a postgres:// URL or a SQLite file path.
	DatabaseURL string `env:"DELAYED_DATABASE_URL" envDefault:"delayed.db"`

	WorkerName        string        `env:"DELAYED_WORKER_NAME"`
	SleepDelay        time.Duration `env:"DELAYED_SLEEP_DELAY" envDefault:"5s"`
	MaxRunTime        time.Duration `env:"DELAYED_MAX_RUN_TIME" envDefault:"4h"`
	MaxAttempts       int           `env:"DELAYED_MAX_ATTEMPTS" envDefault:"0"`
	MinPriority       *int          `env:"DELAYED_MIN_PRIORITY"`
	MaxPriority       *int          `env:"DELAYED_MAX_PRIORITY"`
	DestroyFailedJobs bool          `env:"DELAYED_DESTROY_FAILED_JOBS" envDefault:"false"`
	Processes         int           `env:"DELAYED_PROCESSES" envDefault:"1"`

	AdminAddr string `env:"DELAYED_ADMIN_ADDR" envDefault:":8080"`

	LogLevel  string `env:"DELAYED_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DELAYED_LOG_FORMAT" envDefault:"console"`

	Pool PoolConfig `envPrefix:"DELAYED_DB_"`
}

// PoolConfig mirrors storage.PoolConfig with environment tags.
type PoolConfig struct {
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"1m"`
}

// Storage converts the pool settings for storage.NewGormStorageWithPool.
func (p PoolConfig) Storage() storage.PoolConfig {
	return storage.PoolConfig{
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: p.ConnMaxLifetime,
		ConnMaxIdleTime: p.ConnMaxIdleTime,
	}
}

// Load reads .env files (if any) and then the process environment.
func Load(files ...string) (Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load(files...)
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges the environment parser cannot express.
func (c Config) Validate() error {
	switch {
	case c.SleepDelay <= 0:
		return fmt.Errorf("%w: DELAYED_SLEEP_DELAY must be positive", ErrInvalidConfig)
	case c.MaxRunTime <= 0:
		return fmt.Errorf("%w: DELAYED_MAX_RUN_TIME must be positive", ErrInvalidConfig)
	case c.Processes < 1:
		return fmt.Errorf("%w: DELAYED_PROCESSES must be at least 1", ErrInvalidConfig)
	case c.LogFormat != "console" && c.LogFormat != "json":
		return fmt.Errorf("%w: DELAYED_LOG_FORMAT must be console or json", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: DELAYED_LOG_LEVEL: %v", ErrInvalidConfig, err)
	}
	if err := c.Pool.Storage().Validate(); err != nil {
		return fmt.Errorf("%w: DELAYED_DB_*: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
