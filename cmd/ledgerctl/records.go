package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/patient-ledger/ledger"
	"github.com/warp/patient-ledger/store/sqlite"
)

// =============================================================================
// READ COMMANDS
// =============================================================================

func newListCommand(opts *RootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Refresh and show every record",
		Long: `Refresh the local mirror from the remote and print it in remote order
with the record count and subtotal.

When the remote is unreachable, the last saved snapshot is shown instead and
marked as an offline copy. --offline skips the remote entirely.`,
		Args: cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			if offline {
				if a.snapshots == nil {
					return errors.New("--offline needs a snapshot database (--snapshot-db)")
				}
				saved, err := a.snapshots.Latest(ctx)
				if errors.Is(err, sqlite.ErrNoSnapshot) {
					return errors.New("no saved snapshot yet; run list while online first")
				}
				if err != nil {
					return err
				}
				saved.Stale = true
				return a.print(a.money.Markdown(saved))
			}

			snap, err := a.refreshOrLastKnown(ctx)
			if err != nil {
				return err
			}
			return a.print(a.money.Markdown(snap))
		}),
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "show the last saved snapshot without contacting the remote")
	return cmd
}

func newGroupsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "Refresh and show records grouped by price",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			if _, err := a.session.Refresh(ctx); err != nil {
				return err
			}
			return a.print(a.money.GroupsMarkdown(a.session.Mirror().Grouping()))
		}),
	}
}

// =============================================================================
// SINGLE RECORD COMMANDS
// =============================================================================

func newAddCommand(opts *RootOptions) *cobra.Command {
	var price string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a record",
		Long: `Create a record with the given name. Without --price the remote assigns
its default price.`,
		Args: cobra.ExactArgs(1),
		RunE: runE(opts, func(ctx context.Context, a *app, args []string) error {
			draft := ledger.RecordDraft{Name: args[0]}
			if strings.TrimSpace(draft.Name) == "" {
				return errors.New("name must not be blank")
			}
			if price != "" {
				p, err := parseAmount(price)
				if err != nil {
					return err
				}
				draft.Price = &p
			}

			out, err := a.session.Dispatch(ctx, ledger.CreateRecord{Draft: draft})
			if out.Record != nil {
				fmt.Fprintf(a.out, "Created %s %q at %s\n", out.Record.ID, out.Record.Name, a.money.Format(out.Record.Price))
			}
			a.printSummary(out)
			return err
		}),
	}

	cmd.Flags().StringVar(&price, "price", "", "price (defaults to the remote's rule)")
	return cmd
}

func newEditCommand(opts *RootOptions) *cobra.Command {
	var name, price string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a record's name and/or price",
		Long: `Change a record's name and/or price. Without --price the record keeps
its current price.`,
		Args: cobra.ExactArgs(1),
		RunE: runE(opts, func(ctx context.Context, a *app, args []string) error {
			var patch ledger.RecordPatch
			if name != "" {
				patch.Name = &name
			}
			if price != "" {
				p, err := parseAmount(price)
				if err != nil {
					return err
				}
				patch.Price = &p
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change: pass --name and/or --price")
			}
			id := ledger.RecordID(args[0])

			// The remote resets the price of an update that omits it.
			if patch.Price == nil {
				if _, err := a.session.Refresh(ctx); err != nil {
					return err
				}
				if current, ok := a.session.Snapshot().Find(id); ok {
					patch.Price = &current.Price
				}
			}

			out, err := a.session.Dispatch(ctx, ledger.UpdateRecord{ID: id, Patch: patch})
			if out.Record != nil {
				fmt.Fprintf(a.out, "Updated %s %q at %s\n", out.Record.ID, out.Record.Name, a.money.Format(out.Record.Price))
			}
			a.printSummary(out)
			return err
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&price, "price", "", "new price")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: runE(opts, func(ctx context.Context, a *app, args []string) error {
			out, err := a.session.Dispatch(ctx, ledger.DeleteRecord{ID: ledger.RecordID(args[0])})
			if err == nil {
				fmt.Fprintf(a.out, "Deleted %s\n", args[0])
			}
			a.printSummary(out)
			return err
		}),
	}
}

func newClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			if !yes {
				return errors.New("refusing to delete every record without --yes")
			}
			out, err := a.session.Dispatch(ctx, ledger.ClearAll{})
			if err == nil {
				fmt.Fprintln(a.out, "Cleared")
			}
			a.printSummary(out)
			return err
		}),
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every record")
	return cmd
}

// =============================================================================
// FILE INGESTION
// =============================================================================

func newUploadCommand(opts *RootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents; the remote creates one record per document",
		Long: `Upload .doc, .docx or .pdf files in one request. The remote names each new
record after its file and assigns the default price. Other files are
ignored by the remote.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runE(opts, func(ctx context.Context, a *app, args []string) error {
			uploads := make([]ledger.Upload, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}
				uploads = append(uploads, ledger.Upload{Name: filepath.Base(path), Size: info.Size(), Body: f})
			}

			var progress ledger.ProgressFunc
			shown := -1
			if !quiet {
				progress = func(pct int) {
					shown = pct
					fmt.Fprintf(a.errOut, "\rUploading... %3d%%", pct)
					if pct == 100 {
						fmt.Fprintln(a.errOut)
					}
				}
			}

			out, err := a.session.Dispatch(ctx, ledger.IngestFiles{Files: uploads, Progress: progress})
			if shown >= 0 && shown < 100 {
				fmt.Fprintln(a.errOut)
			}
			if err == nil && out.Refreshed {
				fmt.Fprintf(a.out, "Uploaded %d file(s)\n", len(uploads))
			}
			a.printSummary(out)
			return err
		}),
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	return cmd
}

// parseAmount accepts a non-negative decimal price.
func parseAmount(s string) (ledger.Price, error) {
	p, err := ledger.ParsePrice(s)
	if err != nil {
		return ledger.Price{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if p.IsNegative() {
		return ledger.Price{}, fmt.Errorf("invalid price %q: must not be negative", s)
	}
	return p, nil
}
