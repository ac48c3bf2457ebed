package ledger

// =============================================================================
// PRICE GROUPING VIEW - Partition of the mirror by current price
// =============================================================================

// PriceGroup is every record currently holding one price, in mirror order.
type PriceGroup struct {
	Price   Price
	Records []Record
}

// Key is the canonical price key of the group.
func (g PriceGroup) Key() string { return g.Price.Key() }

// Count is the group cardinality.
func (g PriceGroup) Count() int { return len(g.Records) }

// Grouping is an ordered partition of a mirror snapshot. Groups are ordered
// by first occurrence of their price in the source sequence.
//
// A Grouping is tied to the mirror generation it was derived from; after a
// refresh it must be recomputed (see Session.OpenBulkEdit).
type Grouping struct {
	groups     []PriceGroup
	index      map[string]int
	generation uint64
}

// GroupByPrice partitions records by price. An empty input yields an empty
// grouping.
func GroupByPrice(records []Record) Grouping {
	g := Grouping{index: make(map[string]int)}
	for _, r := range records {
		key := r.Price.Key()
		i, ok := g.index[key]
		if !ok {
			i = len(g.groups)
			g.index[key] = i
			g.groups = append(g.groups, PriceGroup{Price: r.Price})
		}
		g.groups[i].Records = append(g.groups[i].Records, r)
	}
	return g
}

// Groups returns the groups in first-occurrence order.
func (g Grouping) Groups() []PriceGroup {
	out := make([]PriceGroup, len(g.groups))
	copy(out, g.groups)
	return out
}

// Lookup returns the group for a canonical price key.
func (g Grouping) Lookup(key string) (PriceGroup, bool) {
	i, ok := g.index[key]
	if !ok {
		return PriceGroup{}, false
	}
	return g.groups[i], true
}

// Len is the number of distinct prices.
func (g Grouping) Len() int { return len(g.groups) }

// IsEmpty reports whether the grouping has no groups.
func (g Grouping) IsEmpty() bool { return len(g.groups) == 0 }

// Size is the total number of records across all groups.
func (g Grouping) Size() int {
	n := 0
	for _, grp := range g.groups {
		n += grp.Count()
	}
	return n
}

// Generation is the mirror generation this grouping was derived from.
// Zero means it was built from a bare record slice.
func (g Grouping) Generation() uint64 { return g.generation }
