package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/patient-ledger/ledger"
)

func newBulkEditCommand(opts *RootOptions) *cobra.Command {
	var (
		pairs  []string
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "bulk-edit",
		Short: "Re-price every record in one or more price groups",
		Long: `Refresh the mirror, group records by price and send one update per record
of every group whose new price is a positive number different from the old
one. Other edits are skipped silently.

Edits come from repeated --set OLD=NEW flags and/or a YAML file mapping old
prices to new ones:

  100000: 120000
  70000: 80000

Updates are sent one at a time. A failed update does not stop the rest;
the failures are listed and the command exits non-zero.`,
		Example: `  ledgerctl bulk-edit --set 100000=120000
  ledgerctl bulk-edit --file prices.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			edits, err := collectEdits(pairs, file)
			if err != nil {
				return err
			}

			if _, err := a.session.Refresh(ctx); err != nil {
				return err
			}
			grouping, err := a.session.OpenBulkEdit()
			if err != nil {
				return err
			}

			if dryRun {
				plan, err := a.session.PlanBulkEdit(grouping, edits)
				if err != nil {
					return err
				}
				return a.print(a.money.PlanMarkdown(plan))
			}

			out, err := a.session.Dispatch(ctx, ledger.ApplyBulkEdit{Grouping: grouping, Edits: edits})
			if out.Batch != nil {
				if perr := a.print(a.money.BatchMarkdown(*out.Batch)); perr != nil {
					return errors.Join(err, perr)
				}
			}
			if out.Refreshed {
				if perr := a.print(a.money.GroupsMarkdown(a.session.Mirror().Grouping())); perr != nil {
					return errors.Join(err, perr)
				}
			}
			a.printSummary(out)
			return err
		}),
	}

	cmd.Flags().StringArrayVar(&pairs, "set", nil, "OLD=NEW price edit (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file of OLD: NEW price edits")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the updates without sending them")
	return cmd
}

// collectEdits merges --set pairs over the optional YAML file.
func collectEdits(pairs []string, file string) (ledger.Edits, error) {
	edits := ledger.Edits{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		fromFile, err := ledger.ParseEditsYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for k, v := range fromFile {
			edits[k] = v
		}
	}
	fromFlags, err := ledger.ParseEditPairs(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFlags {
		edits[k] = v
	}
	if len(edits) == 0 {
		return nil, errors.New("no edits: pass --set OLD=NEW or --file")
	}
	return edits, nil
}
