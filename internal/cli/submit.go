package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/codec"
	"github.com/roach88/tideline/internal/stream"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Dapp   string
	Commit string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <stream-id>",
		Short: "Accept a signed commit onto a stream",
		Long: `Accept a signed commit onto a stream for a dapp.

The commit is the JSON envelope as signed: payload, protected header,
and signature. It is canonicalized, addressed, verified against the
stream's current tip, and on acceptance the updated record persists and
the side effects (block upload, update message, anchor request) join
the task queue. Run "tideline queue run" to publish them.

Submitting the current tip again is a no-op and reports the current
state.

Examples:
  tideline submit k2t6wz4ylx5q0dyk5g1t... --dapp 6a2f1c04-... --commit ./commit.json
  cat commit.json | tideline submit k2t6wz4ylx5q0dyk5g1t... --dapp 6a2f1c04-... --commit -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "dapp the stream belongs to (required)")
	_ = cmd.MarkFlagRequired("dapp")
	cmd.Flags().StringVar(&opts.Commit, "commit", "", "commit envelope file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("commit")

	return cmd
}

func runSubmit(opts *SubmitOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := parseStreamID(arg)
	if err != nil {
		return err
	}
	dappID, err := parseDappID(opts.Dapp)
	if err != nil {
		return err
	}

	raw, err := readCommit(cmd, opts.Commit)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("read commit %q", opts.Commit), err)
	}
	commitCID, canonical, err := codec.SumJSON(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "address commit", err)
	}
	commit, err := stream.DecodeCommit(commitCID, canonical)
	if err != nil {
		return domainError(err)
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	endpoint, err := dbs.gatewayEndpoint(ctx, opts.Config, opts.Dapp)
	if err != nil {
		return err
	}
	eng, err := newEngine(opts.Config, dbs, endpoint, slog.Default())
	if err != nil {
		return err
	}

	state, err := eng.acceptor.Accept(ctx, dappID, id, commit)
	if err != nil {
		return domainError(err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, state)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s\n", commitCID)
	return outputStateText(cmd, state)
}

// readCommit reads the envelope bytes from a file, or stdin for "-".
func readCommit(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
