package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// QueueOptions holds flags for the queue subcommands.
type QueueOptions struct {
	*RootOptions
	Dapp  string
	Limit int
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the pending task queue",
		Long: `Inspect and drain the pending task queue.

Accepted commits enqueue their side effects durably: block uploads,
update messages, and anchor requests survive restarts and stay queued
until delivered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRunCommand(rootOpts))

	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "ls",
		Short:         "List pending tasks in enqueue order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum tasks to list")

	return cmd
}

func newQueueRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute pending tasks against the network",
		Long: `Execute pending tasks against the network, oldest first.

Each task completes only after its delivery succeeds; a failed task is
reported and stays queued for the next run. Blocks and update messages
go to the Kubo node, anchor requests to the gateway.

Examples:
  tideline queue run --gateway http://localhost:8787
  tideline queue run --dapp 6a2f1c04-... --limit 50`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRun(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum tasks to execute")
	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "dapp whose registered gateway receives anchor requests")

	return cmd
}

// QueueTask is one pending task in CLI output.
type QueueTask struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueueListResult is the queue ls JSON payload.
type QueueListResult struct {
	Pending []QueueTask `json:"pending"`
	Total   int         `json:"total"`
}

func runQueueList(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	tasks, err := dbs.queue.Pending(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "list pending tasks", err)
	}
	total, err := dbs.queue.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "count pending tasks", err)
	}

	result := QueueListResult{Pending: make([]QueueTask, 0, len(tasks)), Total: total}
	for _, t := range tasks {
		result.Pending = append(result.Pending, QueueTask{
			ID:        t.ID,
			Kind:      string(t.Kind),
			CreatedAt: t.CreatedAt,
		})
	}

	if opts.Format == "json" {
		return outputJSON(cmd, result)
	}

	w := cmd.OutOrStdout()
	if total == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return nil
	}
	for _, t := range result.Pending {
		fmt.Fprintf(w, "%-16s %s  %s\n", t.Kind, t.ID, t.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d shown, %d pending\n", len(result.Pending), total)
	return nil
}

// QueueRunResult is the queue run JSON payload.
type QueueRunResult struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func runQueueRun(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	endpoint := opts.Config.GatewayURL
	if opts.Dapp != "" {
		endpoint, err = dbs.gatewayEndpoint(ctx, opts.Config, opts.Dapp)
		if err != nil {
			return err
		}
	}
	eng, err := newEngine(opts.Config, dbs, endpoint, slog.Default())
	if err != nil {
		return err
	}

	completed, failed, err := eng.runner.Run(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "drain queue", err)
	}

	if opts.Format == "json" {
		if err := outputJSON(cmd, QueueRunResult{Completed: completed, Failed: failed}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%d completed, %d failed\n", completed, failed)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed and stay queued", failed))
	}
	return nil
}
