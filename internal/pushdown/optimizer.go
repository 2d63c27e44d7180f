package pushdown

import (
	"go.uber.org/zap"

	"github.com/lychee-technology/weave"
)

// Destination says where a planned predicate lands in the synthesized
// statement.
type Destination int

const (
	// DestWhere leaves the predicate in the outer WHERE clause.
	DestWhere Destination = iota
	// DestJoinOn moves it into a specific join's ON clause.
	DestJoinOn
	// DestOverlay injects it into both branches of a table's overlay
	// definition.
	DestOverlay
)

// Placement is the planning result for one predicate. Duplicates
// produced by the equality-transfer rule are independent placements;
// removing the original never removes the duplicate.
type Placement struct {
	Predicate   weave.Predicate
	Destination Destination
	// JoinIndex identifies the target ON segment for DestJoinOn.
	JoinIndex int
	// SourceIndex is the index of the originating predicate in the
	// request, shared by rule-3 duplicates of that predicate.
	SourceIndex int
	Duplicated  bool
}

// Input bundles everything placement needs besides the predicates.
type Input struct {
	Graph Graph
	// OverlayTables are the tables compiled as workspace overlays, the
	// only legal DestOverlay targets.
	OverlayTables map[string]bool
	// Bookkeeping reports whether a column is an overlay bookkeeping
	// column (primary key or status flag) for the given table. Those
	// columns are never pushed into an overlay: filtering the anti-join
	// key or the status flag inside the branches changes which rows are
	// shadowed or survive, which silently corrupts the merge.
	Bookkeeping func(table, column string) bool
}

// Plan places every predicate per the pushdown rules, in rule order;
// later rules only see predicates not already placed. Planning never
// fails: anything unclassifiable stays in the outer WHERE unchanged.
func Plan(preds []weave.Predicate, in Input) []Placement {
	placements := make([]Placement, 0, len(preds))

	for i, p := range preds {
		// Rule 1: a predicate referencing only the inner side of an
		// outer join moves into that join's ON clause.
		if j, ok := innerSideJoin(p, in.Graph); ok {
			placements = append(placements, Placement{
				Predicate:   p,
				Destination: DestJoinOn,
				JoinIndex:   j,
				SourceIndex: i,
			})
			continue
		}

		// Rule 2: inner-join / non-outer-side predicates may stay in
		// WHERE; staying is always semantics-preserving, so we stay.

		// Rule 3: transfer constant predicates across join equalities. A
		// duplicate landing on an outer join's optional side obeys rule 1
		// like any other predicate, or it would turn the join inner.
		for _, dup := range duplicates(p, i, in.Graph) {
			warnOnConflict(dup.Predicate, preds)
			if j, ok := innerSideJoin(dup.Predicate, in.Graph); ok {
				dup.Destination = DestJoinOn
				dup.JoinIndex = j
				placements = append(placements, dup)
				continue
			}
			placements = append(placements, place(dup, in))
		}

		// Rule 4 / default placement.
		placements = append(placements, place(Placement{Predicate: p, SourceIndex: i}, in))
	}
	return placements
}

// place applies the overlay routing rule to a predicate that was not
// already moved into an ON clause.
func place(pl Placement, in Input) Placement {
	p := pl.Predicate
	if !in.OverlayTables[p.Table] {
		pl.Destination = DestWhere
		return pl
	}
	switch p.Kind {
	case weave.PredicateEquality, weave.PredicateIn, weave.PredicateRange:
		if in.Bookkeeping != nil && in.Bookkeeping(p.Table, p.Column) {
			pl.Destination = DestWhere
			return pl
		}
		pl.Destination = DestOverlay
		return pl
	default:
		// Pattern predicates are never pushed into an overlay.
		pl.Destination = DestWhere
		return pl
	}
}

// innerSideJoin finds a join whose optional (null-producing) side is the
// predicate's table: the joined table of a LEFT OUTER join, or the
// preserved-side counterpart for RIGHT OUTER.
func innerSideJoin(p weave.Predicate, g Graph) (int, bool) {
	for _, j := range g.Joins {
		switch j.Kind {
		case JoinLeftOuter:
			if p.Table == j.Table {
				return j.Index, true
			}
		case JoinRightOuter:
			for _, e := range j.Edges {
				other := otherSide(e, j.Table)
				if other != "" && p.Table == other {
					return j.Index, true
				}
			}
		}
	}
	return 0, false
}

func otherSide(e EquiEdge, table string) string {
	if e.LeftTable == table {
		return e.RightTable
	}
	if e.RightTable == table {
		return e.LeftTable
	}
	return ""
}

// duplicates applies the equality-transfer rule: a constant predicate on
// one side of a join equality is copied to the corresponding column of
// the other side. Multi-value constants rewrite to IN-lists; duplicates
// are never themselves re-duplicated.
func duplicates(p weave.Predicate, srcIndex int, g Graph) []Placement {
	if p.Kind != weave.PredicateEquality && p.Kind != weave.PredicateIn {
		return nil
	}

	var out []Placement
	seen := map[string]bool{}
	for _, j := range g.Joins {
		for _, e := range j.Edges {
			var table, column string
			switch {
			case e.LeftTable == p.Table && e.LeftColumn == p.Column:
				table, column = e.RightTable, e.RightColumn
			case e.RightTable == p.Table && e.RightColumn == p.Column:
				table, column = e.LeftTable, e.LeftColumn
			default:
				continue
			}
			key := table + "." + column
			if seen[key] || (table == p.Table && column == p.Column) {
				continue
			}
			seen[key] = true

			kind := weave.PredicateEquality
			if len(p.Values) > 1 {
				kind = weave.PredicateIn
			}
			out = append(out, Placement{
				Predicate: weave.Predicate{
					Table:  table,
					Column: column,
					Kind:   kind,
					Values: p.Values,
					Defer:  p.Defer,
				},
				SourceIndex: srcIndex,
				Duplicated:  true,
			})
		}
	}
	return out
}

// warnOnConflict flags a duplicate landing on a column that already
// carries an incompatible constant. Both predicates stay in place and
// the engine's contradiction yields an empty result, but that outcome
// is logged instead of silently assumed correct.
func warnOnConflict(dup weave.Predicate, originals []weave.Predicate) {
	for _, o := range originals {
		if o.Table != dup.Table || o.Column != dup.Column {
			continue
		}
		if o.Kind != weave.PredicateEquality && o.Kind != weave.PredicateIn {
			continue
		}
		if !valuesOverlap(o.Values, dup.Values) {
			zap.S().Warnw("transferred predicate contradicts existing constant",
				"table", dup.Table,
				"column", dup.Column,
				"existing", o.Values,
				"transferred", dup.Values)
		}
	}
}

func valuesOverlap(a, b []weave.Value) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
