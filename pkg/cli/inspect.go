package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/delayed/pkg/codec"
	"github.com/jdziat/delayed/pkg/storage"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Args:  cobra.NoArgs,
		Short: "Create or update the delayed_jobs table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(storage.WorkerPoolConfig())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delayed_jobs is up to date")
			return nil
		},
	}
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Args:  cobra.NoArgs,
		Short: "Count pending, locked and failed jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(storage.WorkerPoolConfig())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "pending\t%d\n", stats.Pending)
			fmt.Fprintf(tw, "locked\t%d\n", stats.Locked)
			fmt.Fprintf(tw, "failed\t%d\n", stats.Failed)
			return tw.Flush()
		},
	}
}

func newFailedCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Args:  cobra.NoArgs,
		Short: "List permanently failed jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(storage.WorkerPoolConfig())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			jobs, err := store.FailedJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tATTEMPTS\tFAILED AT\tLAST ERROR")
			for _, j := range jobs {
				var failedAt, lastErr string
				if j.FailedAt != nil {
					failedAt = j.FailedAt.Format(time.RFC3339)
				}
				if j.LastError != nil {
					lastErr = firstLine(*j.LastError)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", j.ID, codec.TypeName(j.Handler), j.Attempts, failedAt, lastErr)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")
	return cmd
}

func newRetryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry JOB_ID...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Queue failed jobs to run again now",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(storage.WorkerPoolConfig())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			for _, id := range args {
				if err := store.Retry(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "retrying %s\n", id)
			}
			return nil
		},
	}
}

func newClearLocksCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-locks WORKER_NAME",
		Args:  cobra.ExactArgs(1),
		Short: "Release every lock held by a worker that died",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(storage.WorkerPoolConfig())
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			n, err := store.ClearLocks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d locks\n", n)
			return nil
		},
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	const width = 80
	if len(line) > width {
		return line[:width] + "..."
	}
	return line
}
