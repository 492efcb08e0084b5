package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/registry"
	"github.com/roach88/tideline/internal/stream"
)

// RegistryOptions holds flags for the registry subcommands.
type RegistryOptions struct {
	*RootOptions
	Dapp     string
	Name     string
	Endpoint string
}

// NewRegistryCommand creates the registry command group.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage known dapps and their models",
		Long: `Manage known dapps and their models.

The registry maps model streams to the dapps that own them. Acceptance
and file resolution consult it: a commit declaring an unregistered
model is rejected, and file shapes dispatch on the model's registered
name (indexFile, actionFile, indexFolder, contentFolder, or a plain
content model).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRegistryAddDappCommand(rootOpts))
	cmd.AddCommand(newRegistryAddModelCommand(rootOpts))
	cmd.AddCommand(newRegistryListCommand(rootOpts))

	return cmd
}

func newRegistryAddDappCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add-dapp <dapp-id>",
		Short: "Register a dapp, or update its name and endpoint",
		Long: `Register a dapp, or update its name and endpoint.

Examples:
  tideline registry add-dapp 6a2f1c04-1e2b-4f7a-9c3d-8e5b0a7d4f61 \
    --name notes --endpoint http://localhost:8787`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryAddDapp(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "gateway endpoint serving this dapp's streams")

	return cmd
}

func newRegistryAddModelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add-model <model-id>",
		Short: "Register a model under a dapp",
		Long: `Register a model under a dapp.

The name is the dapp-scoped role of the model. The names indexFile,
actionFile, indexFolder, and contentFolder select the file shapes;
any other name marks a plain content model.

Examples:
  tideline registry add-model k2t6wz4ylx5q0dyk5g1t... \
    --dapp 6a2f1c04-1e2b-4f7a-9c3d-8e5b0a7d4f61 --name indexFile`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryAddModel(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "owning dapp (required)")
	_ = cmd.MarkFlagRequired("dapp")
	cmd.Flags().StringVar(&opts.Name, "name", "", "dapp-scoped model name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRegistryListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "ls",
		Short:         "List registered models",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "only models of this dapp")

	return cmd
}

func runRegistryAddDapp(opts *RegistryOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := parseDappID(arg)
	if err != nil {
		return err
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	dapp := registry.Dapp{ID: id, Name: opts.Name, Endpoint: opts.Endpoint}
	if err := dbs.registry.PutDapp(ctx, dapp); err != nil {
		return WrapExitError(ExitCommandError, "register dapp", err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, dapp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered dapp %s\n", id)
	return nil
}

func runRegistryAddModel(opts *RegistryOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	modelID, err := stream.ParseID(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid model id %q", arg), err)
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

	info := registry.ModelInfo{ID: modelID, Name: opts.Name, DappID: dappID}
	if err := dbs.registry.PutModel(ctx, info); err != nil {
		return WrapExitError(ExitCommandError, "register model", err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered model %s as %q\n", modelID, opts.Name)
	return nil
}

// ModelView is one registered model in CLI output.
type ModelView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DappID   string `json:"dappId"`
	Endpoint string `json:"endpoint,omitempty"`
}

func runRegistryList(opts *RegistryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var dappID *uuid.UUID
	if opts.Dapp != "" {
		id, err := parseDappID(opts.Dapp)
		if err != nil {
			return err
		}
		dappID = &id
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	models, err := dbs.registry.Models(ctx, dappID)
	if err != nil {
		return WrapExitError(ExitCommandError, "list models", err)
	}

	views := make([]ModelView, 0, len(models))
	for _, m := range models {
		views = append(views, ModelView{
			ID:       m.ID.String(),
			Name:     m.Name,
			DappID:   m.DappID.String(),
			Endpoint: m.Endpoint,
		})
	}

	if opts.Format == "json" {
		return outputJSON(cmd, views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "(no models)")
		return nil
	}
	for _, view := range views {
		fmt.Fprintf(w, "%s\n", view.ID)
		fmt.Fprintf(w, "  name: %s\n", view.Name)
		fmt.Fprintf(w, "  dapp: %s\n", view.DappID)
		if view.Endpoint != "" {
			fmt.Fprintf(w, "  endpoint: %s\n", view.Endpoint)
		}
	}
	fmt.Fprintf(w, "%d model(s)\n", len(views))
	return nil
}
