package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/delayed/pkg/config"
	"github.com/jdziat/delayed/pkg/security"
	"github.com/jdziat/delayed/pkg/storage"
	"github.com/jdziat/delayed/pkg/worker"
)

// ErrNoPayloadTypes is returned by work when the binary registers no payloads.
var ErrNoPayloadTypes = errors.New("delayed: no payload types registered; build a binary with cli.WithRegistration to run jobs")

// childStopGrace is how long a worker process gets to finish after SIGTERM.
const childStopGrace = 30 * time.Second

type workFlags struct {
	processes      int
	name           string
	sleepDelay     time.Duration
	maxRunTime     time.Duration
	maxAttempts    int
	minPriority    int
	maxPriority    int
	destroyFailed  bool
	exitOnComplete bool
}

func newWorkCommand(a *app) *cobra.Command {
	f := &workFlags{}
	cmd := &cobra.Command{
		Use:   "work",
		Args:  cobra.NoArgs,
		Short: "Run job workers",
		Long: `Run job workers until interrupted.

With --processes N greater than one, the command starts N worker processes
and waits for them. Every flag falls back to its DELAYED_* variable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.work(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.processes, "processes", "n", 1, "number of worker processes (env DELAYED_PROCESSES)")
	flags.StringVar(&f.name, "name", "", "worker name written to locked_by (env DELAYED_WORKER_NAME)")
	flags.DurationVar(&f.sleepDelay, "sleep-delay", worker.DefaultSleepDelay, "idle poll interval (env DELAYED_SLEEP_DELAY)")
	flags.DurationVar(&f.maxRunTime, "max-run-time", worker.DefaultMaxRunTime, "how long a job lock stays valid (env DELAYED_MAX_RUN_TIME)")
	flags.IntVar(&f.maxAttempts, "max-attempts", 0, "attempts before a job fails, 0 for unlimited (env DELAYED_MAX_ATTEMPTS)")
	flags.IntVar(&f.minPriority, "min-priority", 0, "only run jobs with priority >= this (env DELAYED_MIN_PRIORITY)")
	flags.IntVar(&f.maxPriority, "max-priority", 0, "only run jobs with priority <= this (env DELAYED_MAX_PRIORITY)")
	flags.BoolVar(&f.destroyFailed, "destroy-failed-jobs", false, "delete jobs that fail permanently (env DELAYED_DESTROY_FAILED_JOBS)")
	flags.BoolVar(&f.exitOnComplete, "exit-on-complete", false, "exit once no job is due")
	return cmd
}

// merge lays the flags the user actually set over the environment config.
func (f *workFlags) merge(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("processes") {
		cfg.Processes = f.processes
	}
	if flags.Changed("name") {
		cfg.WorkerName = f.name
	}
	if flags.Changed("sleep-delay") {
		cfg.SleepDelay = f.sleepDelay
	}
	if flags.Changed("max-run-time") {
		cfg.MaxRunTime = f.maxRunTime
	}
	if flags.Changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if flags.Changed("min-priority") {
		cfg.MinPriority = &f.minPriority
	}
	if flags.Changed("max-priority") {
		cfg.MaxPriority = &f.maxPriority
	}
	if flags.Changed("destroy-failed-jobs") {
		cfg.DestroyFailedJobs = f.destroyFailed
	}
	return cfg
}

func (a *app) work(cmd *cobra.Command, f *workFlags) error {
	ctx := cmd.Context()
	if len(a.settings.register) == 0 && len(a.settings.queueOpts) == 0 {
		return ErrNoPayloadTypes
	}
	cfg := f.merge(cmd, a.cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Processes > security.MaxProcesses {
		return fmt.Errorf("delayed: --processes is limited to %d", security.MaxProcesses)
	}

	store, err := a.openStore(storage.WorkerPoolConfig())
	if err != nil {
		return err
	}
	defer a.closeStore(store)

	if cfg.Processes > 1 {
		p := &pool{
			size:    cfg.Processes,
			hooks:   store,
			command: childCommand(cfg, f.exitOnComplete, cmd),
			logger:  a.logger,
		}
		return p.run(ctx)
	}

	q, err := a.newQueue(store)
	if err != nil {
		return err
	}
	w := worker.NewWorker(q, a.workerOptions(cfg)...)

	if f.exitOnComplete {
		return drain(ctx, w)
	}
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) workerOptions(cfg config.Config) []worker.WorkerOption {
	opts := []worker.WorkerOption{
		worker.SleepDelay(cfg.SleepDelay),
		worker.MaxRunTime(cfg.MaxRunTime),
		worker.MaxAttempts(cfg.MaxAttempts),
		worker.DestroyFailedJobs(cfg.DestroyFailedJobs),
		worker.WithLogger(a.logger),
	}
	if cfg.WorkerName != "" {
		opts = append(opts, worker.Name(cfg.WorkerName))
	}
	if cfg.MinPriority != nil {
		opts = append(opts, worker.MinPriority(*cfg.MinPriority))
	}
	if cfg.MaxPriority != nil {
		opts = append(opts, worker.MaxPriority(*cfg.MaxPriority))
	}
	return append(opts, a.settings.workerOpts...)
}

// drain works off batches until nothing is due, then exits.
func drain(ctx context.Context, w *worker.Worker) error {
	for ctx.Err() == nil {
		success, failure, err := w.WorkOff(ctx, worker.BatchSize)
		if err != nil {
			return err
		}
		if success+failure == 0 {
			return nil
		}
	}
	return nil
}

// childCommand re-runs this binary as a single worker process. Settings
// reach the child through its environment; a named pool gives each child
// the suffix ".<index>".
func childCommand(cfg config.Config, exitOnComplete bool, parent *cobra.Command) func(context.Context, int) *exec.Cmd {
	return func(ctx context.Context, index int) *exec.Cmd {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		args := []string{"work"}
		if exitOnComplete {
			args = append(args, "--exit-on-complete")
		}

		c := exec.CommandContext(ctx, exe, args...)
		c.Env = append(os.Environ(), childEnv(cfg, index)...)
		c.Stdout = parent.OutOrStdout()
		c.Stderr = parent.ErrOrStderr()
		c.Cancel = func() error { return c.Process.Signal(syscall.SIGTERM) }
		c.WaitDelay = childStopGrace
		return c
	}
}

func childEnv(cfg config.Config, index int) []string {
	env := []string{
		"DELAYED_PROCESSES=1",
		"DELAYED_DATABASE_URL=" + cfg.DatabaseURL,
		"DELAYED_SLEEP_DELAY=" + cfg.SleepDelay.String(),
		"DELAYED_MAX_RUN_TIME=" + cfg.MaxRunTime.String(),
		"DELAYED_MAX_ATTEMPTS=" + strconv.Itoa(cfg.MaxAttempts),
		"DELAYED_DESTROY_FAILED_JOBS=" + strconv.FormatBool(cfg.DestroyFailedJobs),
		"DELAYED_LOG_LEVEL=" + cfg.LogLevel,
		"DELAYED_LOG_FORMAT=" + cfg.LogFormat,
	}
	if cfg.WorkerName != "" {
		env = append(env, fmt.Sprintf("DELAYED_WORKER_NAME=%s.%d", cfg.WorkerName, index))
	}
	if cfg.MinPriority != nil {
		env = append(env, "DELAYED_MIN_PRIORITY="+strconv.Itoa(*cfg.MinPriority))
	}
	if cfg.MaxPriority != nil {
		env = append(env, "DELAYED_MAX_PRIORITY="+strconv.Itoa(*cfg.MaxPriority))
	}
	return env
}
