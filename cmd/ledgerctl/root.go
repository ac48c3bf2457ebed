package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/patient-ledger/api"
	"github.com/warp/patient-ledger/config"
	"github.com/warp/patient-ledger/ledger"
	"github.com/warp/patient-ledger/logging"
	"github.com/warp/patient-ledger/report"
	"github.com/warp/patient-ledger/store/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Raw        bool   // print markdown as is
	Style      string // glamour style
}

// NewRootCommand creates the ledgerctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Manage the remote patient billing list",
		Long: `ledgerctl mirrors the remote list of billable patient records, shows it
grouped by price, and applies single or bulk changes. Every change is
followed by a full refresh so what you see is always what the server holds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags. Empty values fall through to env, config file and defaults.
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (yaml)")
	pf.BoolVar(&opts.Raw, "raw", false, "print plain markdown instead of rendering it")
	pf.StringVar(&opts.Style, "style", "notty", "markdown style (notty|dark|light|ascii)")
	pf.String("base-url", "", "remote API root (LEDGER_BASE_URL)")
	pf.Duration("timeout", 0, "per-request timeout (LEDGER_TIMEOUT)")
	pf.String("log-level", "", "log level (LEDGER_LOG_LEVEL)")
	pf.String("log-format", "", "log format console|json (LEDGER_LOG_FORMAT)")
	pf.String("snapshot-db", "", "snapshot database file (LEDGER_SNAPSHOT_DB)")
	pf.String("currency", "", "currency code for prices (LEDGER_CURRENCY)")
	pf.String("output-dir", "", "directory for invoices (LEDGER_OUTPUT_DIR)")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newGroupsCommand(opts))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newEditCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newBulkEditCommand(opts))
	cmd.AddCommand(newInvoiceCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is everything a command needs, built once per invocation.
type app struct {
	opts      *RootOptions
	cfg       *config.Config
	log       zerolog.Logger
	session   *ledger.Session
	snapshots *sqlite.Store
	money     *report.Formatter
	out       io.Writer
	errOut    io.Writer
}

// runE wraps a command body with app construction and teardown.
func runE(opts *RootOptions, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

func newApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.LoadWithFlags(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	money, err := report.NewFormatter(cfg.Currency)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.BaseURL,
		api.WithTimeout(cfg.Timeout),
		api.WithClientLogger(log.With().Str("component", "client").Logger()),
	)
	if err != nil {
		return nil, err
	}

	a := &app{
		opts:    opts,
		cfg:     cfg,
		log:     log,
		session: ledger.NewSession(client, ledger.WithLogger(log)),
		money:   money,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}

	if cfg.SnapshotsEnabled() {
		store, err := sqlite.New(cfg.SnapshotDB)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		a.snapshots = store
		a.session.Mirror().OnRefresh(a.saveSnapshot)
	}
	return a, nil
}

func (a *app) close() {
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close snapshot store")
		}
	}
}

// saveSnapshot persists every refreshed mirror state. A failure here never
// fails the command that triggered the refresh.
func (a *app) saveSnapshot(snap ledger.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := a.snapshots.Save(ctx, snap)
	if err != nil {
		a.log.Warn().Err(err).Msg("save snapshot")
		return
	}
	a.log.Debug().Str("snapshot", id).Uint64("generation", snap.Generation).Msg("snapshot saved")
	if a.cfg.SnapshotKeep > 0 {
		if _, err := a.snapshots.Prune(ctx, a.cfg.SnapshotKeep); err != nil {
			a.log.Warn().Err(err).Msg("prune snapshots")
		}
	}
}

// refreshOrLastKnown refreshes the mirror. When the remote cannot be
// reached and a saved snapshot exists, the mirror is seeded with it and
// reported as stale instead of failing.
func (a *app) refreshOrLastKnown(ctx context.Context) (ledger.Snapshot, error) {
	_, err := a.session.Refresh(ctx)
	if err == nil {
		return a.session.Snapshot(), nil
	}
	if a.snapshots == nil || !errors.Is(err, ledger.ErrTransport) {
		return ledger.Snapshot{}, err
	}
	saved, lerr := a.snapshots.Latest(ctx)
	if lerr != nil {
		return ledger.Snapshot{}, err
	}
	a.log.Warn().Err(err).Msg("remote unreachable, showing last saved snapshot")
	a.session.Mirror().Seed(saved)
	return a.session.Snapshot(), nil
}

// print writes markdown, rendered unless --raw.
func (a *app) print(md string) error {
	if !a.opts.Raw {
		rendered, err := report.Render(md, a.opts.Style)
		if err != nil {
			return err
		}
		md = rendered
	}
	_, err := io.WriteString(a.out, md)
	return err
}

// printSummary reports the mirror state after a mutation.
func (a *app) printSummary(out ledger.Outcome) {
	if !out.Refreshed {
		fmt.Fprintln(a.out, "Warning: the list could not be refreshed; run `ledgerctl list` to retry.")
		return
	}
	fmt.Fprintf(a.out, "%d record(s), subtotal %s\n", out.Summary.Count, a.money.Format(out.Summary.Subtotal))
}
