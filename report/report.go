/*
report.go - Human-facing views of the mirror

PURPOSE:
  Turns mirror snapshots, price groupings, bulk edit plans and batch results
  into markdown tables for the terminal. Prices are formatted through
  go-money for the configured currency. Nothing here talks to the remote.

OUTPUTS:
  Markdown(snapshot)        numbered record list with count and subtotal
  GroupsMarkdown(grouping)  one row per price group
  PlanMarkdown(plan)        the updates a bulk edit would send
  BatchMarkdown(result)     what a bulk edit actually did
  Render(md)                glamour rendering for a terminal

SEE ALSO:
  - xlsx.go: Spreadsheet export
  - cmd/ledgerctl: Prints these
*/
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/warp/patient-ledger/ledger"
)

// =============================================================================
// MONEY FORMATTING
// =============================================================================

// Formatter renders prices in one currency.
type Formatter struct {
	cur *money.Currency
}

// NewFormatter returns a formatter for an ISO 4217 currency code.
func NewFormatter(code string) (*Formatter, error) {
	cur := money.GetCurrency(strings.ToUpper(strings.TrimSpace(code)))
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return &Formatter{cur: cur}, nil
}

// Code is the ISO currency code.
func (f *Formatter) Code() string { return f.cur.Code }

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Format renders p with the currency's grapheme, separators and fraction
// digits. Amounts finer than the currency's minor unit are rounded. Amounts
// too large for go-money's int64 minor units are printed as a plain decimal
// followed by the currency code.
func (f *Formatter) Format(p ledger.Price) string {
	minor := p.Decimal.Shift(int32(f.cur.Fraction)).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return p.Decimal.StringFixed(int32(f.cur.Fraction)) + " " + f.cur.Code
	}
	return f.cur.Formatter().Format(minor.IntPart())
}

// =============================================================================
// MARKDOWN
// =============================================================================

// Markdown renders a snapshot as a numbered table followed by its totals.
func (f *Formatter) Markdown(snap ledger.Snapshot) string {
	var b strings.Builder
	if snap.Stale {
		fmt.Fprintf(&b, "_Offline copy observed %s, not confirmed by the remote._\n\n",
			snap.ObservedAt.UTC().Format(time.RFC3339))
	}
	if len(snap.Records) == 0 {
		b.WriteString("No records.\n")
		return b.String()
	}

	b.WriteString("| # | ID | Name | Price |\n")
	b.WriteString("|---:|---|---|---:|\n")
	for i, r := range snap.Records {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, cell(r.ID.String()), cell(r.Name), f.Format(r.Price))
	}
	fmt.Fprintf(&b, "\n**Records:** %d  \n**Subtotal:** %s\n", snap.Count(), f.Format(snap.Subtotal))
	return b.String()
}

// GroupsMarkdown renders one row per price group, in grouping order.
func (f *Formatter) GroupsMarkdown(g ledger.Grouping) string {
	if g.IsEmpty() {
		return "No records.\n"
	}
	var b strings.Builder
	b.WriteString("| Price | Records | IDs |\n")
	b.WriteString("|---:|---:|---|\n")
	for _, group := range g.Groups() {
		ids := make([]string, len(group.Records))
		for i, r := range group.Records {
			ids[i] = r.ID.String()
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", f.Format(group.Price), group.Count(), cell(strings.Join(ids, ", ")))
	}
	return b.String()
}

// PlanMarkdown lists the updates a bulk edit would send.
func (f *Formatter) PlanMarkdown(plan []ledger.Mutation) string {
	if len(plan) == 0 {
		return "Nothing to update.\n"
	}
	var b strings.Builder
	b.WriteString("| # | Record | New price |\n")
	b.WriteString("|---:|---|---:|\n")
	for i, m := range plan {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", i+1, cell(m.RecordID.String()), f.Format(m.Price))
	}
	fmt.Fprintf(&b, "\n%d update(s).\n", len(plan))
	return b.String()
}

// BatchMarkdown summarizes an executed bulk edit and lists its failures.
func (f *Formatter) BatchMarkdown(res ledger.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch `%s`: %d of %d update(s) applied.\n", res.BatchID, res.Succeeded(), res.Attempted)
	if !res.Failed() {
		return b.String()
	}
	b.WriteString("\n| # | Record | Price | Error |\n")
	b.WriteString("|---:|---|---:|---|\n")
	for _, fail := range res.Failures {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
			fail.Index+1, cell(fail.Mutation.RecordID.String()), f.Format(fail.Mutation.Price), cell(fail.Err.Error()))
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// =============================================================================
// TERMINAL RENDERING
// =============================================================================

// Render formats markdown for a terminal. style is a glamour standard style
// name ("dark", "light", "notty", ...); "" picks "notty".
func Render(md, style string) (string, error) {
	if style == "" {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(md)
}
