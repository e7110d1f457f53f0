// Package cli builds the delayed command line.
//
// Applications embed it in their own main package so the worker processes
// know their payload types:
//
//	func main() {
//		err := cli.Execute(cli.WithRegistration(func(q *queue.Queue) error {
//			return q.Register("SendInvoice", func() core.Payload { return &SendInvoice{} })
//		}))
//		if err != nil {
//			os.Exit(1)
//		}
//	}
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jdziat/delayed/pkg/config"
	"github.com/jdziat/delayed/pkg/queue"
	"github.com/jdziat/delayed/pkg/storage"
)

type app struct {
	settings settings

	databaseURL string
	logLevel    string

	cfg    config.Config
	logger zerolog.Logger
}

// Execute runs the command line until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute(opts ...Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(opts...).ExecuteContext(ctx)
}

// NewRootCmd creates the root command.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt.apply(&a.settings)
	}

	rootCmd := &cobra.Command{
		Use:               "delayed",
		Short:             "Run and inspect database-backed delayed jobs",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().StringVar(&a.databaseURL, "database-url", "", "postgres:// URL or SQLite path (env DELAYED_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (env DELAYED_LOG_LEVEL)")

	rootCmd.AddCommand(
		newWorkCommand(a),
		newMigrateCommand(a),
		newStatsCommand(a),
		newFailedCommand(a),
		newRetryCommand(a),
		newClearLocksCommand(a),
		newServeCommand(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.databaseURL != "" {
		cfg.DatabaseURL = a.databaseURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg)
	log.Logger = a.logger
	return nil
}

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.Level()).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

func (a *app) openStore(pool storage.PoolConfig) (*storage.GormStorage, error) {
	db, err := storage.Open(a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("delayed: open database: %w", err)
	}
	return storage.NewGormStorageWithPool(db, pool)
}

func (a *app) closeStore(store *storage.GormStorage) {
	sqlDB, err := store.DB().DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close database")
	}
}

func (a *app) newQueue(store *storage.GormStorage) (*queue.Queue, error) {
	opts := append([]queue.QueueOption{queue.WithLogger(a.logger)}, a.settings.queueOpts...)
	q := queue.New(store, opts...)
	for _, register := range a.settings.register {
		if err := register(q); err != nil {
			return nil, fmt.Errorf("delayed: register payloads: %w", err)
		}
	}
	return q, nil
}
