package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tideline/internal/stream"
)

// RecordsOptions holds flags for the records command.
type RecordsOptions struct {
	*RootOptions
	Dapp  string
	Model string
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List locally accepted stream records",
		Long: `List locally accepted stream records.

A record is the durable result of acceptance: the stream's tip, model,
controlling account, and content as last accepted. Records never leave
this machine; they are what "submit" wrote.

Exactly one of --dapp or --model selects the set.

Examples:
  tideline records --dapp 6a2f1c04-1e2b-4f7a-9c3d-8e5b0a7d4f61
  tideline records --model k2t6wz4ylx5q0dyk5g1t...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dapp, "dapp", "", "list records of this dapp")
	cmd.Flags().StringVar(&opts.Model, "model", "", "list records declaring this model")
	cmd.MarkFlagsOneRequired("dapp", "model")
	cmd.MarkFlagsMutuallyExclusive("dapp", "model")

	return cmd
}

// RecordView is one stream record in CLI output.
type RecordView struct {
	StreamID  string          `json:"streamId"`
	DappID    string          `json:"dappId"`
	Model     string          `json:"model,omitempty"`
	Account   string          `json:"account,omitempty"`
	Tip       string          `json:"tip"`
	Content   json.RawMessage `json:"content,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func runRecords(opts *RecordsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbs, err := openDatabases(opts.Config)
	if err != nil {
		return err
	}
	defer dbs.Close()

	var records []*stream.Record
	switch {
	case opts.Dapp != "":
		dappID, err := parseDappID(opts.Dapp)
		if err != nil {
			return err
		}
		records, err = dbs.store.List(ctx, dappID)
		if err != nil {
			return WrapExitError(ExitCommandError, "list records", err)
		}
	default:
		modelID, err := stream.ParseID(opts.Model)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid model id %q", opts.Model), err)
		}
		records, err = dbs.store.ListByModel(ctx, modelID)
		if err != nil {
			return WrapExitError(ExitCommandError, "list records", err)
		}
	}

	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		view := RecordView{
			StreamID:  rec.StreamID.String(),
			DappID:    rec.DappID.String(),
			Account:   rec.Account,
			Tip:       rec.Tip.String(),
			Content:   rec.Content,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.Model != nil {
			view.Model = rec.Model.String()
		}
		views = append(views, view)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "(no records)")
		return nil
	}
	for _, view := range views {
		fmt.Fprintf(w, "%s\n", view.StreamID)
		fmt.Fprintf(w, "  tip:     %s\n", view.Tip)
		if view.Model != "" {
			fmt.Fprintf(w, "  model:   %s\n", view.Model)
		}
		if view.Account != "" {
			fmt.Fprintf(w, "  account: %s\n", view.Account)
		}
		fmt.Fprintf(w, "  updated: %s\n", view.UpdatedAt.Format(time.RFC3339))
		if opts.Verbose && len(view.Content) > 0 {
			fmt.Fprintf(w, "  content: %s\n", view.Content)
		}
	}
	fmt.Fprintf(w, "%d record(s)\n", len(views))
	return nil
}
