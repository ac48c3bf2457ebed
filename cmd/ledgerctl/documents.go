package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/warp/patient-ledger/ledger"
)

func newInvoiceCommand(opts *RootOptions) *cobra.Command {
	var format, number string

	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Generate an invoice for the current list",
		Long: `Ask the remote to render the current list as an invoice and save it as
Factura_<number>.<pdf|docx> in the output directory. Without --number a
FAC-<year><4 digits> number is generated.`,
		Args: cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			f, err := ledger.ParseInvoiceFormat(format)
			if err != nil {
				return err
			}
			if _, err := a.session.Refresh(ctx); err != nil {
				return err
			}

			inv, err := a.session.GenerateInvoice(ctx, ledger.InvoiceRequest{Format: f, Number: number})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(a.cfg.OutputDir, inv.Request.FileName())
			if err := os.WriteFile(path, inv.Body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Invoice %s saved to %s\n", inv.Request.Number, path)
			return nil
		}),
	}

	cmd.Flags().StringVar(&format, "format", "pdf", "document format (pdf|word)")
	cmd.Flags().StringVar(&number, "number", "", "invoice number (generated when empty)")
	return cmd
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Refresh and export the list as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: runE(opts, func(ctx context.Context, a *app, args []string) error {
			snap, err := a.refreshOrLastKnown(ctx)
			if err != nil {
				return err
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := a.money.WriteXLSX(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %d record(s) to %s\n", snap.Count(), args[0])
			return nil
		}),
	}
}
