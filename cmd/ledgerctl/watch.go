package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/patient-ledger/ledger"
)

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh periodically and print a line per change",
		Long: `Refresh the mirror immediately and then on every interval until
interrupted. A line is printed whenever the record count or subtotal changes.
Refresh failures are logged and the previous state is kept.`,
		Args: cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			every := interval
			if every <= 0 {
				every = a.cfg.WatchInterval
			}

			var last *ledger.Summary
			a.session.Mirror().OnRefresh(func(s ledger.Snapshot) {
				cur := ledger.Summary{Count: s.Count(), Subtotal: s.Subtotal, Generation: s.Generation}
				if last != nil && last.Count == cur.Count && last.Subtotal.Equal(cur.Subtotal) {
					return
				}
				last = &cur
				fmt.Fprintf(a.out, "%s  %d record(s), subtotal %s\n",
					time.Now().Format(time.TimeOnly), cur.Count, a.money.Format(cur.Subtotal))
			})

			sched := ledger.NewRefreshScheduler(a.session.Mirror(), every, ledger.WithLogger(a.log))
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh period (LEDGER_WATCH_INTERVAL)")
	return cmd
}

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(ctx context.Context, a *app, _ []string) error {
			if a.snapshots == nil {
				return fmt.Errorf("snapshots are disabled (no --snapshot-db)")
			}
			infos, err := a.snapshots.History(ctx, limit)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				return a.print("No snapshots saved.\n")
			}
			md := "| Observed | Generation | Records | Subtotal |\n|---|---:|---:|---:|\n"
			for _, info := range infos {
				md += fmt.Sprintf("| %s | %d | %d | %s |\n",
					info.ObservedAt.Local().Format(time.DateTime), info.Generation, info.Count, a.money.Format(info.Subtotal))
			}
			return a.print(md)
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots to show")
	return cmd
}
