/*
planner.go - Bulk reconciliation planner

PURPOSE:
  Turns operator intent ("every record priced at X becomes Y") into the
  concrete list of per-record updates.

RULES:
  For each group, in grouping order, whose edit parses to a new price that is
  strictly positive and differs from the group price, emit one Mutation per
  member record, in mirror order.

  Anything else is skipped silently: blank input, non-numeric input, zero or
  negative prices, a price equal to the current one, and keys that match no
  group. Skipping means "leave unchanged" and is never a validation error.

EXAMPLE:
  mirror: [{1, 100}, {2, 100}, {3, 200}]
  edits:  {"100": "150"}
  plan:   [{1, 150}, {2, 150}]

SEE ALSO:
  - grouping.go: Input grouping
  - executor.go: Consumes the plan
*/
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Edits maps a group key (canonical old price) to the raw new price entered
// by the operator. Unedited groups are absent.
type Edits map[string]string

// Set records an edit for the given old price.
func (e Edits) Set(old Price, newPrice string) { e[old.Key()] = newPrice }

// add is Set for parsed input, where two spellings of one price ("100" and
// "100.0") would otherwise overwrite each other.
func (e Edits) add(old Price, newPrice string) error {
	if _, dup := e[old.Key()]; dup {
		return fmt.Errorf("duplicate edit for price %s", old.Key())
	}
	e.Set(old, newPrice)
	return nil
}

// Plan computes the mutations that realize edits over grouping.
func Plan(grouping Grouping, edits Edits) []Mutation {
	var ops []Mutation
	for _, group := range grouping.groups {
		raw, ok := edits[group.Key()]
		if !ok {
			continue
		}
		newPrice, ok := acceptedPrice(raw, group.Price)
		if !ok {
			continue
		}
		for _, r := range group.Records {
			ops = append(ops, Mutation{RecordID: r.ID, Price: newPrice})
		}
	}
	return ops
}

// acceptedPrice applies the edit policy: > 0 and different from old.
func acceptedPrice(raw string, old Price) (Price, bool) {
	if strings.TrimSpace(raw) == "" {
		return ZeroPrice, false
	}
	p, err := ParsePrice(raw)
	if err != nil || !p.IsPositive() || p.Equal(old) {
		return ZeroPrice, false
	}
	return p, true
}

// =============================================================================
// EDIT PARSING - CLI pairs and YAML documents
// =============================================================================

// ParseEditPairs reads "old=new" pairs. Old prices are canonicalized so that
// "100.00=150" targets the "100" group; two pairs for the same group are an
// error. New prices are kept raw: invalid ones
// are skipped later by Plan, not rejected here.
func ParseEditPairs(pairs []string) (Edits, error) {
	edits := make(Edits, len(pairs))
	for _, pair := range pairs {
		old, newPrice, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid edit %q: expected old=new", pair)
		}
		oldPrice, err := ParsePrice(old)
		if err != nil {
			return nil, fmt.Errorf("invalid edit %q: %w", pair, err)
		}
		if err := edits.add(oldPrice, strings.TrimSpace(newPrice)); err != nil {
			return nil, err
		}
	}
	return edits, nil
}

// ParseEditsYAML reads a mapping of old price to new price:
//
//	100000: 120000
//	"70000": 75000
func ParseEditsYAML(data []byte) (Edits, error) {
	var raw map[string]yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode edits: %w", err)
	}
	edits := make(Edits, len(raw))
	for old, node := range raw {
		oldPrice, err := ParsePrice(old)
		if err != nil {
			return nil, fmt.Errorf("invalid edit key: %w", err)
		}
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("invalid edit for %s: expected a scalar", old)
		}
		if err := edits.add(oldPrice, node.Value); err != nil {
			return nil, err
		}
	}
	return edits, nil
}
