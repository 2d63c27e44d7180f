package pushdown

import (
	"regexp"
	"strings"
)

// JoinKind classifies a join edge for placement rule purposes.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeftOuter
	JoinRightOuter
)

// EquiEdge is one recognized equality conjunct of a join condition.
type EquiEdge struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

// Join is one join of the statement's join graph.
type Join struct {
	// Index identifies the join's ON segment for the synthesizer.
	Index int
	Kind  JoinKind
	// Table is the joined (right-hand) table name.
	Table string
	// Alias is the identifier predicates must use when injected into
	// this join's ON clause. Empty means Table.
	Alias string
	Edges []EquiEdge
}

// Graph is the join graph one statement exposes to planning. It is
// derived conservatively: only plain `A.X = B.Y` conjuncts contribute
// edges, and anything unrecognized simply contributes nothing, because
// pushdown is strictly an optimization.
type Graph struct {
	Joins []Join
}

var equiCondPattern = regexp.MustCompile(`^\s*\(?\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*\)?\s*$`)

// ParseEquiConds extracts simple equality edges from ON-clause text.
// The text is split on top-level AND; conjuncts that are not a bare
// qualified-column equality are skipped.
func ParseEquiConds(onText string) []EquiEdge {
	text := strings.Join(strings.Fields(onText), " ")
	text = trimOuterParens(text)

	var edges []EquiEdge
	for _, part := range splitTopLevelAnd(text) {
		m := equiCondPattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		edges = append(edges, EquiEdge{
			LeftTable:   m[1],
			LeftColumn:  m[2],
			RightTable:  m[3],
			RightColumn: m[4],
		})
	}
	return edges
}

func trimOuterParens(s string) string {
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		depth := 0
		balanced := true
		for i := 0; i < len(s)-1; i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					balanced = false
				}
			}
		}
		if !balanced {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func splitTopLevelAnd(s string) []string {
	var parts []string
	depth := 0
	last := 0
	upper := strings.ToUpper(s)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && i+5 <= len(s) && upper[i:i+5] == " AND " {
			parts = append(parts, s[last:i])
			last = i + 5
			i += 4
		}
	}
	parts = append(parts, s[last:])
	return parts
}
