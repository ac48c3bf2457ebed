/*
main.go - ledgerctl entry point

PURPOSE:
  Command-line client for the remote patient billing list. Keeps a local
  mirror that is refreshed after every change, groups records by price,
  applies bulk re-pricing and saves each observed state to SQLite.

COMMANDS:
  list [--offline]      Show the list (falls back to the last snapshot)
  groups                Show price groups
  add / edit / delete   Single record changes
  clear --yes           Delete every record
  upload FILE...        Create records from documents
  bulk-edit             Re-price whole groups
  invoice               Save an invoice document
  export FILE.xlsx      Spreadsheet export
  watch                 Periodic refresh
  history               Saved snapshots

CONFIGURATION:
  Flags, LEDGER_* environment variables or --config FILE. See package config.

SEE ALSO:
  - ledger/session.go: Command dispatch and refresh orchestration
  - api/client.go: HTTP client
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
