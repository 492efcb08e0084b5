package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/stream"
)

// StateOptions holds flags for the state and chain commands.
type StateOptions struct {
	*RootOptions
	Dapp string
	Tip  string
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state <stream-id>",
		Short: "Derive the verified state of a stream",
		Long: `Derive the verified state of a stream at its current tip.

The commit set is fetched from the gateway, ordered by prev links,
verified, and folded from genesis to tip. Nothing is trusted from the
network: a chain that does not verify fails with the offending commit.

The gateway is taken from --gateway, the config file, or the endpoint
registered for --dapp.

Examples:
  tideline state k2t6wz4ylx5q0dyk5g1t... --gateway http://localhost:8787
  tideline state k2t6wz4ylx5q0dyk5g1t... --tip bafyreib3mg4yqzkxequ...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "dapp whose registered gateway to use")
	cmd.Flags().StringVar(&opts.Tip, "tip", "", "derive state at this commit instead of the latest")

	return cmd
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chain <stream-id>",
		Short: "Show the verified commit log of a stream",
		Long: `Show the verified commit log of a stream, genesis first.

Each entry is one accepted commit: its CID and whether it is the
genesis, a signed data commit, or an anchor.

Examples:
  tideline chain k2t6wz4ylx5q0dyk5g1t... --gateway http://localhost:8787`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "dapp whose registered gateway to use")

	return cmd
}

// loadOneState resolves the gateway, wires the engine, and derives one state.
func loadOneState(ctx context.Context, opts *StateOptions, arg string) (*stream.State, error) {
	id, err := parseStreamID(arg)
	if err != nil {
		return nil, err
	}
	var tip *cid.Cid
	if opts.Tip != "" {
		c, err := cid.Decode(opts.Tip)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid tip %q", opts.Tip), err)
		}
		tip = &c
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return nil, err
	}
	defer dbs.Close()

	endpoint := opts.Config.GatewayURL
	if opts.Dapp != "" {
		endpoint, err = dbs.gatewayEndpoint(ctx, opts.Config, opts.Dapp)
		if err != nil {
			return nil, err
		}
	}
	eng, err := newEngine(opts.Config, dbs, endpoint, slog.Default())
	if err != nil {
		return nil, err
	}

	state, err := eng.loader.LoadState(ctx, id, tip)
	if err != nil {
		return nil, domainError(err)
	}
	return state, nil
}

func runState(opts *StateOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	state, err := loadOneState(ctx, opts, arg)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return outputJSON(cmd, state)
	}
	return outputStateText(cmd, state)
}

func runChain(opts *StateOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	state, err := loadOneState(ctx, opts, arg)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return outputJSON(cmd, chainOf(state))
	}
	return outputChainText(cmd, state)
}

// ChainEntry is one commit of a stream's log in CLI output.
type ChainEntry struct {
	CID  string `json:"cid"`
	Kind string `json:"kind"`
}

// ChainResult is the chain command's JSON payload.
type ChainResult struct {
	StreamID string       `json:"streamId"`
	Tip      string       `json:"tip"`
	Log      []ChainEntry `json:"log"`
}

func chainOf(state *stream.State) ChainResult {
	log := make([]ChainEntry, 0, len(state.Log))
	for _, entry := range state.Log {
		log = append(log, ChainEntry{CID: entry.CID.String(), Kind: string(entry.Kind)})
	}
	return ChainResult{StreamID: state.ID.String(), Tip: state.Tip.String(), Log: log}
}

// outputJSON wraps a payload in the standard response envelope.
func outputJSON(cmd *cobra.Command, data interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputStateText(cmd *cobra.Command, state *stream.State) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Stream: %s\n", state.ID)
	fmt.Fprintf(w, "Type:   %s\n", state.ID.Type)
	fmt.Fprintf(w, "Tip:    %s\n", state.Tip)
	if state.Model != nil {
		fmt.Fprintf(w, "Model:  %s\n", state.Model)
	}
	if len(state.Controllers) > 0 {
		fmt.Fprintf(w, "Controllers: %s\n", strings.Join(state.Controllers, ", "))
	}
	fmt.Fprintf(w, "Commits: %d\n", len(state.Log))

	content := []byte("null")
	if len(state.Content) > 0 {
		content = state.Content
	}
	fmt.Fprintf(w, "Content: %s\n", content)
	return nil
}

func outputChainText(cmd *cobra.Command, state *stream.State) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Stream: %s\n", state.ID)
	for i, entry := range state.Log {
		fmt.Fprintf(w, "  [%d] %-7s %s\n", i, entry.Kind, entry.CID)
	}
	fmt.Fprintf(w, "Tip: %s\n", state.Tip)
	return nil
}
