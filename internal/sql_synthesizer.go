package internal

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/weave"
)

// deletedStatusFlag marks write-schema rows staged for deletion. A row
// carrying it removes the entity from the logical view entirely; there
// is no base fallback.
const deletedStatusFlag = "D"

func qualifiedTable(d weave.Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// renderPredicate renders one structured predicate against a qualifier
// (table alias). Deferred values emit bind-slot markers.
func renderPredicate(qualifier string, p weave.Predicate, predIndex int, d weave.Dialect, params *paramCollector) string {
	col := qualifier + "." + p.Column

	renderVal := func(i int) string {
		if p.Defer {
			ref := slotRef{Source: slotPredicate, Name: p.Table + "." + p.Column, PredIndex: predIndex, ValueIndex: i}
			return params.add(ref, p.Values[i])
		}
		return d.RenderValue(p.Values[i])
	}
	renderList := func() string {
		parts := make([]string, len(p.Values))
		for i := range p.Values {
			parts[i] = renderVal(i)
		}
		return strings.Join(parts, ",")
	}

	switch p.Kind {
	case weave.PredicateEquality:
		if len(p.Values) == 1 {
			return col + " = " + renderVal(0)
		}
		return col + " IN (" + renderList() + ")"
	case weave.PredicateIn:
		return col + " IN (" + renderList() + ")"
	case weave.PredicateRange:
		op := p.Op
		if op == "" {
			op = "="
		}
		return col + " " + op + " " + renderVal(0)
	default:
		return col + " LIKE " + renderVal(0)
	}
}

// renderOverlayBody renders the union-with-anti-join merge for one
// workspace overlay. Both branches project the same column list in the
// same order and receive every pushed predicate identically.
func renderOverlayBody(o *EntityOverlay, d weave.Dialect, params *paramCollector) string {
	cols := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		cols[i] = "S." + c
	}
	colList := strings.Join(cols, ", ")

	anti := make([]string, len(o.KeyColumns))
	for i, k := range o.KeyColumns {
		anti[i] = "N." + k + " = S." + k
	}

	var pushed []string
	renderPushed := func() string {
		pushed = pushed[:0]
		for i, p := range o.Pushed {
			pushed = append(pushed, " AND "+renderPredicate("S", p, o.PushedIndex[i], d, params))
		}
		return strings.Join(pushed, "")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(colList)
	b.WriteString(" FROM ")
	b.WriteString(qualifiedTable(d, o.BaseSchema, o.Table))
	b.WriteString(" S WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(qualifiedTable(d, o.WriteSchema, o.Table))
	b.WriteString(" N WHERE ")
	b.WriteString(strings.Join(anti, " AND "))
	b.WriteString(")")
	b.WriteString(renderPushed())

	if d.SupportsUnionAll {
		b.WriteString(" UNION ALL ")
	} else {
		// The anti-join branch excludes every key present in WRITE, so
		// the branches are disjoint and plain UNION yields the same set.
		b.WriteString(" UNION ")
	}

	b.WriteString("SELECT ")
	b.WriteString(colList)
	b.WriteString(" FROM ")
	b.WriteString(qualifiedTable(d, o.WriteSchema, o.Table))
	b.WriteString(" S WHERE S.")
	b.WriteString(o.StatusColumn)
	b.WriteString(" <> '")
	b.WriteString(deletedStatusFlag)
	b.WriteString("'")
	b.WriteString(renderPushed())

	return b.String()
}

func cteNameFor(table string) string {
	return "CM_" + table
}

type synthesisInput struct {
	dialect    weave.Dialect
	scan       *scannedStatement
	overlays   map[string]*EntityOverlay
	onClause   map[int][]renderedPredicate // join index -> predicates
	whereTail  []renderedPredicate
	readSchema string
	params     *paramCollector
}

type renderedPredicate struct {
	pred  weave.Predicate
	index int
}

// synthesize assembles the final statement text: overlay substitution
// for table references, ON-clause and WHERE predicate injection, and a
// CTE preamble when the dialect prefers materialized overlays.
func synthesize(in synthesisInput) string {
	d := in.dialect
	scan := in.scan
	useCTE := d.PreferCTE && d.SupportsCTE && hasMergedOverlay(in.overlays, scan)

	inserts := make(map[int][]string)
	var edits []edit

	for _, ref := range scan.refs {
		if ref.schema != "" {
			// Explicitly qualified references asked for a raw schema;
			// the rewrite leaves them alone.
			continue
		}
		o, ok := in.overlays[ref.name]
		if !ok {
			if in.readSchema != "" {
				edits = append(edits, edit{ref.start, ref.end, qualifiedTable(d, in.readSchema, ref.name)})
			}
			continue
		}
		if o.Identity {
			if o.Schema != "" {
				text := qualifiedTable(d, o.Schema, ref.name)
				if ref.alias == "" {
					text += " " + ref.name
				}
				edits = append(edits, edit{ref.start, ref.end, text})
			}
			continue
		}
		var text string
		if useCTE {
			text = cteNameFor(ref.name)
		} else {
			text = "(" + renderOverlayBody(o, d, in.params) + ")"
		}
		if ref.alias == "" {
			text += " " + ref.name
		}
		edits = append(edits, edit{ref.start, ref.end, text})
	}

	whereTail := in.whereTail
	joinIdxs := make([]int, 0, len(in.onClause))
	for joinIdx := range in.onClause {
		joinIdxs = append(joinIdxs, joinIdx)
	}
	sort.Ints(joinIdxs)
	for _, joinIdx := range joinIdxs {
		preds := in.onClause[joinIdx]
		if joinIdx < 0 || joinIdx >= len(scan.joins) || scan.joins[joinIdx].onEnd < 0 {
			// No ON segment to extend (USING joins); the predicate
			// stays in the outer WHERE unmoved.
			whereTail = append(whereTail, preds...)
			continue
		}
		seg := scan.joins[joinIdx]
		// The planned table is not always the joined table; a RIGHT
		// OUTER placement targets the preserved-side counterpart.
		var b strings.Builder
		for _, rp := range preds {
			b.WriteString(" AND ")
			b.WriteString(renderPredicate(scan.aliasFor(rp.pred.Table), rp.pred, rp.index, d, in.params))
		}
		inserts[seg.onEnd] = append(inserts[seg.onEnd], b.String())
	}

	if len(whereTail) > 0 {
		var parts []string
		for _, rp := range whereTail {
			qualifier := scan.aliasFor(rp.pred.Table)
			parts = append(parts, renderPredicate(qualifier, rp.pred, rp.index, d, in.params))
		}
		if scan.whereStart >= 0 {
			inserts[scan.whereEnd] = append(inserts[scan.whereEnd], " AND "+strings.Join(parts, " AND "))
		} else {
			inserts[scan.whereInsertPos] = append(inserts[scan.whereInsertPos], "WHERE "+strings.Join(parts, " AND "))
		}
	}

	for pos, texts := range inserts {
		text := strings.Join(texts, "")
		text = padInsert(scan.sql, pos, text)
		edits = append(edits, edit{pos, pos, text})
	}

	body := applyEdits(scan.sql, edits)

	if useCTE {
		var tables []string
		for name, o := range in.overlays {
			if !o.Identity && referencedUnqualified(scan, name) {
				tables = append(tables, name)
			}
		}
		sort.Strings(tables)
		if len(tables) > 0 {
			var pre strings.Builder
			pre.WriteString("WITH ")
			for i, t := range tables {
				if i > 0 {
					pre.WriteString(", ")
				}
				pre.WriteString(cteNameFor(t))
				pre.WriteString(" AS (")
				pre.WriteString(renderOverlayBody(in.overlays[t], d, in.params))
				pre.WriteString(")")
			}
			pre.WriteString(" ")
			body = pre.String() + body
		}
	}

	return body
}

func hasMergedOverlay(overlays map[string]*EntityOverlay, scan *scannedStatement) bool {
	for name, o := range overlays {
		if !o.Identity && referencedUnqualified(scan, name) {
			return true
		}
	}
	return false
}

func referencedUnqualified(scan *scannedStatement, table string) bool {
	for _, ref := range scan.refs {
		if ref.schema == "" && ref.name == table {
			return true
		}
	}
	return false
}

// padInsert keeps inserted text from fusing with adjacent tokens.
func padInsert(sql string, pos int, text string) string {
	if pos > 0 && !isSpaceByte(sql[pos-1]) && !strings.HasPrefix(text, " ") {
		text = " " + text
	}
	if pos < len(sql) && !isSpaceByte(sql[pos]) && !strings.HasSuffix(text, " ") {
		text += " "
	}
	return text
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// logOverlaySummary emits one line per merged overlay for diagnostics.
func logOverlaySummary(requestID string, overlays map[string]*EntityOverlay) {
	for _, o := range overlays {
		if o.Identity {
			continue
		}
		zap.S().Debugw("overlay merged",
			"requestId", requestID,
			"table", o.Table,
			"base", o.BaseSchema,
			"write", o.WriteSchema,
			"pushed", len(o.Pushed))
	}
}
