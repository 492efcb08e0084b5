package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/stream"
)

// RootOptions holds global flags for all commands, plus the resolved config.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string
	KuboURL    string
	GatewayURL string
	CacheSize  int

	// Config is the effective configuration after PersistentPreRunE merges
	// the config file with flag overrides.
	Config Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tideline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tideline",
		Short: "Tideline - client engine for content-addressed event streams",
		Long:  "Resolve, verify, and extend signed commit chains on a content-addressed network.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			// Flags override the file only when set on the command line.
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = opts.DataDir
			}
			if cmd.Flags().Changed("kubo") {
				cfg.KuboURL = opts.KuboURL
			}
			if cmd.Flags().Changed("gateway") {
				cfg.GatewayURL = opts.GatewayURL
			}
			if cmd.Flags().Changed("cache-size") {
				cfg.CacheSize = opts.CacheSize
			}
			opts.Config = cfg

			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default ~/.tideline)")
	cmd.PersistentFlags().StringVar(&opts.KuboURL, "kubo", "", "Kubo RPC endpoint")
	cmd.PersistentFlags().StringVar(&opts.GatewayURL, "gateway", "", "gateway endpoint (overrides registered dapp endpoints)")
	cmd.PersistentFlags().IntVar(&opts.CacheSize, "cache-size", 0, "block cache capacity in entries")

	// Add subcommands
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewChainCommand(opts))
	cmd.AddCommand(NewFileCommand(opts))
	cmd.AddCommand(NewFilesCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// parseStreamID parses a positional stream ID argument.
func parseStreamID(arg string) (stream.ID, error) {
	id, err := stream.ParseID(arg)
	if err != nil {
		return stream.ID{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid stream id %q", arg), err)
	}
	return id, nil
}

// parseDappID parses a --dapp flag value.
func parseDappID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.UUID{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid dapp id %q", arg), err)
	}
	return id, nil
}
