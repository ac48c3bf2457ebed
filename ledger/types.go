/*
Package ledger provides the client-side core for a remote list of billable records.

PURPOSE:
  The remote API owns the records. This package keeps a local mirror of the
  last observed record set, derives a price-grouping view over it, plans the
  per-record updates needed to realize a group-level price edit, and applies
  them against the remote one at a time.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One billable line item (id, name, price)
  - Price: A non-negative amount in a single currency unit
  - Mutation: A planned price change for one record
  - RecordDraft / RecordPatch: Payloads for single-record create/update

DESIGN PRINCIPLES:
  1. Server truth: The client never assigns ids and never patches the mirror
  2. Precision: Prices use decimal.Decimal, never float64
  3. Type Safety: RecordID is opaque and compared as a string

USAGE:
  price := ledger.NewPrice(100000)
  draft := ledger.RecordDraft{Name: "Ana Perez", Price: &price}

SEE ALSO:
  - mirror.go: Local mirror cache
  - grouping.go: Price grouping view
  - planner.go: Bulk reconciliation planner
  - executor.go: Sequential mutation executor
  - session.go: Refresh orchestrator
*/
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD ID - Opaque identifier assigned by the remote
// =============================================================================

// RecordID identifies a record. The remote may send it as a JSON number or
// string; either way it is kept verbatim.
type RecordID string

func (id RecordID) String() string { return string(id) }

// MarshalJSON emits canonical integers ("42", not "042" or "+42") as JSON
// numbers, which is how the remote assigns ids. Everything else is a string.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("record id: empty value")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("record id: %w", err)
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// =============================================================================
// PRICE - Non-negative amount, single currency unit
// =============================================================================

// Price wraps decimal.Decimal. On the wire it is a bare JSON number.
type Price struct {
	decimal.Decimal
}

var ZeroPrice = Price{decimal.Zero}

func NewPrice(value int64) Price { return Price{decimal.NewFromInt(value)} }

func NewPriceFromDecimal(d decimal.Decimal) Price { return Price{d} }

// MaxPriceExponent bounds the decimal exponent of parsed prices. "1e900000000"
// is a valid decimal whose canonical key would take most of a gigabyte.
const MaxPriceExponent = 64

// ParsePrice parses operator or wire input. Surrounding whitespace is ignored.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return ZeroPrice, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if err := checkExponent(d); err != nil {
		return ZeroPrice, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return Price{d}, nil
}

func checkExponent(d decimal.Decimal) error {
	if exp := d.Exponent(); exp > MaxPriceExponent || exp < -MaxPriceExponent {
		return fmt.Errorf("exponent %d out of range", exp)
	}
	return nil
}

// MustParsePrice panics on invalid input. Tests and literals only.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Key is the canonical form of the price, used to key price groups.
// Equal prices always produce equal keys ("100", "100.0" and "1e2" all yield "100").
func (p Price) Key() string { return p.Decimal.String() }

func (p Price) Equal(o Price) bool       { return p.Decimal.Equal(o.Decimal) }
func (p Price) Add(o Price) Price        { return Price{p.Decimal.Add(o.Decimal)} }
func (p Price) IsPositive() bool         { return p.Decimal.IsPositive() }
func (p Price) IsNegative() bool         { return p.Decimal.IsNegative() }
func (p Price) GreaterThan(o Price) bool { return p.Decimal.GreaterThan(o.Decimal) }

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if err := p.Decimal.UnmarshalJSON(data); err != nil {
		return err
	}
	return checkExponent(p.Decimal)
}

// Sum adds up the prices of the given records.
func Sum(records []Record) Price {
	total := ZeroPrice
	for _, r := range records {
		total = total.Add(r.Price)
	}
	return total
}

// =============================================================================
// RECORD - One billable line item
// =============================================================================

type Record struct {
	ID    RecordID `json:"id"`
	Name  string   `json:"name"`
	Price Price    `json:"price"`
}

// RecordDraft is the payload to create a record. A nil Price lets the remote
// apply its default pricing.
type RecordDraft struct {
	Name  string `json:"name"`
	Price *Price `json:"price,omitempty"`
}

// RecordPatch is a partial update. Nil fields are left untouched.
type RecordPatch struct {
	Name  *string `json:"name,omitempty"`
	Price *Price  `json:"price,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p RecordPatch) IsEmpty() bool { return p.Name == nil && p.Price == nil }

// =============================================================================
// MUTATION - One planned price change
// =============================================================================

// Mutation is produced by Plan and consumed once by Executor.ApplyAll.
type Mutation struct {
	RecordID RecordID
	Price    Price
}

func (m Mutation) String() string {
	return fmt.Sprintf("%s -> %s", m.RecordID, m.Price.Key())
}

// Patch converts the mutation to the partial update sent to the remote.
func (m Mutation) Patch() RecordPatch {
	price := m.Price
	return RecordPatch{Price: &price}
}
