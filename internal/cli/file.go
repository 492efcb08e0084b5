package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/file"
	"github.com/roach88/tideline/internal/stream"
)

// FileOptions holds flags for the file command.
type FileOptions struct {
	*RootOptions
	Dapp string
}

// NewFileCommand creates the file command.
func NewFileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "file <stream-id>",
		Short: "Resolve a stream into a file view",
		Long: `Resolve one stream into a file view for a dapp.

The stream's model decides the shape: an index stream is joined with the
content it points at, a content stream is joined in reverse with the
index record that points at it, and folders resolve on their own. The
model must belong to the dapp.

Examples:
  tideline file k2t6wz4ylx5q0dyk5g1t... --dapp 6a2f1c04-1e2b-4f7a-9c3d-8e5b0a7d4f61`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "dapp the stream belongs to (required)")
	_ = cmd.MarkFlagRequired("dapp")

	return cmd
}

func runFile(opts *FileOptions, arg string, cmd *cobra.Command) error {
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

	f, err := eng.files.ResolveOne(ctx, dappID, id)
	if err != nil {
		return domainError(err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, f)
	}
	return outputFileText(cmd, f, opts.Verbose)
}

// FilesOptions holds flags for the files command.
type FilesOptions struct {
	*RootOptions
	Model   string
	Account string
	Signals []string
}

// NewFilesCommand creates the files command.
func NewFilesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Resolve every stream of a model into file views",
		Long: `Resolve every stream of a model into file views.

A broken item degrades to a view carrying its status instead of failing
the whole set. Folder sets can be narrowed to folders declaring every
--signal; --account narrows any set to one controller.

The gateway is taken from --gateway, the config file, or the endpoint
registered for the model's dapp.

Examples:
  tideline files --model k2t6wz4ylx5q0dyk5g1t...
  tideline files --model k2t6wz4ylx5q0dyk5g1t... --account did:key:z6Mk...
  tideline files --model k2t6wz4ylx5q0dyk5g1t... --signal '{"type":"shared"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFiles(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "model whose streams to resolve (required)")
	_ = cmd.MarkFlagRequired("model")
	cmd.Flags().StringVar(&opts.Account, "account", "", "only streams controlled by this account")
	cmd.Flags().StringArrayVar(&opts.Signals, "signal", nil, "required folder signal, JSON or bare string (repeatable)")

	return cmd
}

func runFiles(opts *FilesOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	modelID, err := stream.ParseID(opts.Model)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid model id %q", opts.Model), err)
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	endpoint := opts.Config.GatewayURL
	if endpoint == "" {
		info, err := dbs.registry.Model(ctx, modelID)
		if err != nil {
			return domainError(err)
		}
		endpoint = info.Endpoint
	}
	eng, err := newEngine(opts.Config, dbs, endpoint, slog.Default())
	if err != nil {
		return err
	}

	var account *string
	if opts.Account != "" {
		account = &opts.Account
	}
	filters := file.Filters{Signals: parseSignals(opts.Signals)}

	files, err := eng.files.ResolveMany(ctx, account, modelID, filters)
	if err != nil {
		return domainError(err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, files)
	}
	return outputFilesText(cmd, files, opts.Verbose)
}

// parseSignals converts --signal values: valid JSON passes through, anything
// else is treated as a JSON string.
func parseSignals(args []string) []file.Signal {
	if len(args) == 0 {
		return nil
	}
	signals := make([]file.Signal, 0, len(args))
	for _, arg := range args {
		raw := []byte(arg)
		if !json.Valid(raw) {
			raw, _ = json.Marshal(arg)
		}
		signals = append(signals, file.Signal(raw))
	}
	return signals
}

func outputFileText(cmd *cobra.Command, f *file.File, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Status: %s\n", f.Status)
	if f.StatusMessage != "" {
		fmt.Fprintf(w, "Reason: %s\n", f.StatusMessage)
	}
	if f.FileID != nil {
		fmt.Fprintf(w, "File:    %s\n", f.FileID)
	}
	if f.FileModelID != nil {
		fmt.Fprintf(w, "Model:   %s\n", f.FileModelID)
	}
	if f.ContentID != nil {
		fmt.Fprintf(w, "Content: %s\n", *f.ContentID)
	}
	if verbose {
		if len(f.File) > 0 {
			fmt.Fprintf(w, "File record:    %s\n", f.File)
		}
		if len(f.Content) > 0 {
			fmt.Fprintf(w, "Content record: %s\n", f.Content)
		}
	}
	return nil
}

func outputFilesText(cmd *cobra.Command, files []*file.File, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(files) == 0 {
		fmt.Fprintln(w, "(no files)")
		return nil
	}
	for i, f := range files {
		ref := "-"
		switch {
		case f.FileID != nil:
			ref = f.FileID.String()
		case f.ContentID != nil:
			ref = *f.ContentID
		}
		fmt.Fprintf(w, "[%d] %-14s %s\n", i, f.Status, ref)
		if f.StatusMessage != "" {
			fmt.Fprintf(w, "     %s\n", f.StatusMessage)
		}
		if verbose && len(f.Content) > 0 {
			fmt.Fprintf(w, "     content: %s\n", f.Content)
		}
	}
	fmt.Fprintf(w, "%d file(s)\n", len(files))
	return nil
}
