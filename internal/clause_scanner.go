package internal

import (
	"sort"
	"strings"
)

// The synthesizer needs to know where table references, join ON
// segments, and the outer WHERE clause sit inside resolved fragment
// text. That takes a depth-0 keyword scan of our own output, not a SQL
// parser: anything behind parentheses stays opaque, exactly as the
// template contract promises.

type tokKind int

const (
	tokIdent tokKind = iota
	tokPunct
	tokLiteral
	tokMarker
)

type sqlToken struct {
	kind  tokKind
	text  string
	upper string
	start int
	end   int
	depth int
}

func lexSQL(s string) []sqlToken {
	var toks []sqlToken
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '\'':
			start := i
			i++
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, sqlToken{kind: tokLiteral, text: s[start:i], start: start, end: i, depth: depth})
		case c == '"':
			start := i
			i++
			for i < len(s) && s[i] != '"' {
				i++
			}
			if i < len(s) {
				i++
			}
			toks = append(toks, sqlToken{kind: tokIdent, text: s[start:i], upper: s[start:i], start: start, end: i, depth: depth})
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
		case s[i] == slotMarkerOpen[0]:
			start := i
			for i < len(s) && s[i] != slotMarkerClose[0] {
				i++
			}
			if i < len(s) {
				i++
			}
			toks = append(toks, sqlToken{kind: tokMarker, text: s[start:i], start: start, end: i, depth: depth})
		case isIdentByte(c):
			start := i
			for i < len(s) && isIdentByte(s[i]) {
				i++
			}
			text := s[start:i]
			toks = append(toks, sqlToken{kind: tokIdent, text: text, upper: strings.ToUpper(text), start: start, end: i, depth: depth})
		default:
			d := depth
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				d = depth
			}
			toks = append(toks, sqlToken{kind: tokPunct, text: string(c), upper: string(c), start: i, end: i + 1, depth: d})
			i++
		}
	}
	return toks
}

type joinKindWord int

const (
	joinWordInner joinKindWord = iota
	joinWordLeft
	joinWordRight
)

// tableRef is one depth-0 table reference in table position.
type tableRef struct {
	start, end int // span of the (possibly qualified) table name
	schema     string
	name       string
	alias      string
	joinIndex  int // join owning this reference, -1 for plain FROM refs
}

// joinSeg is one depth-0 JOIN with the span of its ON expression.
type joinSeg struct {
	kind           joinKindWord
	table          string
	alias          string
	onStart, onEnd int
}

type scannedStatement struct {
	sql            string
	refs           []tableRef
	joins          []joinSeg
	whereStart     int // span of the last depth-0 WHERE expression, -1 if none
	whereEnd       int
	whereInsertPos int // where " WHERE ..." goes if the statement has none
}

// aliasFor returns the identifier the outer query uses for a table.
func (st *scannedStatement) aliasFor(table string) string {
	for _, ref := range st.refs {
		if ref.name == table {
			if ref.alias != "" {
				return ref.alias
			}
			return ref.name
		}
	}
	return table
}

var clauseBoundaries = map[string]bool{
	"GROUP": true, "ORDER": true, "HAVING": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "FETCH": true, "LIMIT": true,
	"OFFSET": true,
}

var aliasStopWords = map[string]bool{
	"LEFT": true, "RIGHT": true, "FULL": true, "INNER": true,
	"CROSS": true, "OUTER": true, "JOIN": true, "ON": true,
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "AS": true,
	"FETCH": true, "LIMIT": true, "OFFSET": true, "USING": true,
}

// scanStatement locates table references, join ON segments and the outer
// WHERE of resolved SQL text. With set operations present, WHERE
// injection targets the final member; table references are collected
// across all of them.
func scanStatement(sql string) *scannedStatement {
	st := &scannedStatement{sql: sql, whereStart: -1, whereEnd: -1, whereInsertPos: -1}
	toks := lexSQL(sql)

	const (
		secNone = iota
		secFrom
		secWhere
		secOther
	)
	section := secNone
	expectTable := false
	pending := joinWordInner
	curJoin := -1
	onOpen := false
	boundarySet := false

	closeOn := func(pos int) {
		if onOpen {
			st.joins[curJoin].onEnd = pos
			onOpen = false
			curJoin = -1
		}
	}

	i := 0
	for i < len(toks) {
		t := toks[i]
		if t.depth > 0 {
			i++
			continue
		}

		if t.kind == tokPunct {
			if t.text == "," && section == secFrom && !onOpen {
				expectTable = true
			}
			if t.text == "(" && expectTable {
				// Derived table: opaque nesting, no reference recorded.
				expectTable = false
			}
			i++
			continue
		}

		if t.kind != tokIdent {
			i++
			continue
		}

		switch t.upper {
		case "SELECT":
			section = secNone
			i++
		case "FROM":
			closeOn(t.start)
			section = secFrom
			expectTable = true
			pending = joinWordInner
			i++
		case "LEFT":
			closeOn(t.start)
			pending = joinWordLeft
			i++
		case "RIGHT":
			closeOn(t.start)
			pending = joinWordRight
			i++
		case "FULL", "INNER", "CROSS":
			closeOn(t.start)
			i++
		case "OUTER":
			i++
		case "JOIN":
			closeOn(t.start)
			st.joins = append(st.joins, joinSeg{kind: pending, onStart: -1, onEnd: -1})
			curJoin = len(st.joins) - 1
			pending = joinWordInner
			expectTable = true
			i++
		case "ON":
			if curJoin >= 0 {
				onOpen = true
				st.joins[curJoin].onStart = t.end
			}
			i++
		case "WHERE":
			closeOn(t.start)
			section = secWhere
			st.whereStart = t.end
			st.whereEnd = -1
			i++
		default:
			if clauseBoundaries[t.upper] && section != secNone {
				closeOn(t.start)
				if st.whereStart >= 0 && st.whereEnd < 0 {
					st.whereEnd = t.start
				}
				if !boundarySet {
					st.whereInsertPos = t.start
					boundarySet = true
				}
				if t.upper == "UNION" || t.upper == "INTERSECT" || t.upper == "EXCEPT" {
					// A fresh statement follows; its clauses win.
					st.whereStart, st.whereEnd = -1, -1
					st.whereInsertPos = -1
					boundarySet = false
				}
				section = secOther
				i++
				continue
			}

			if expectTable && section == secFrom {
				ref := tableRef{start: t.start, joinIndex: -1}
				parts := []string{t.text}
				end := t.end
				j := i + 1
				for j+1 < len(toks) && toks[j].kind == tokPunct && toks[j].text == "." && toks[j+1].kind == tokIdent {
					parts = append(parts, toks[j+1].text)
					end = toks[j+1].end
					j += 2
				}
				ref.end = end
				ref.name = parts[len(parts)-1]
				if len(parts) > 1 {
					ref.schema = strings.Join(parts[:len(parts)-1], ".")
				}
				// Optional alias, with or without AS.
				if j < len(toks) && toks[j].kind == tokIdent && toks[j].upper == "AS" {
					j++
				}
				if j < len(toks) && toks[j].kind == tokIdent && !aliasStopWords[toks[j].upper] && !clauseBoundaries[toks[j].upper] && toks[j].depth == 0 {
					ref.alias = toks[j].text
					j++
				}
				if curJoin >= 0 && st.joins[curJoin].table == "" {
					ref.joinIndex = curJoin
					st.joins[curJoin].table = ref.name
					st.joins[curJoin].alias = ref.alias
				}
				st.refs = append(st.refs, ref)
				expectTable = false
				i = j
				continue
			}
			i++
		}
	}

	end := len(strings.TrimRight(sql, " \t\r\n;"))
	closeOn(end)
	if st.whereStart >= 0 && st.whereEnd < 0 {
		st.whereEnd = end
	}
	if st.whereInsertPos < 0 {
		st.whereInsertPos = end
	}
	return st
}

// edit is a span replacement applied to the scanned text.
type edit struct {
	start, end int
	text       string
}

// applyEdits rewrites sql with non-overlapping span edits.
func applyEdits(sql string, edits []edit) string {
	if len(edits) == 0 {
		return sql
	}
	sorted := append([]edit(nil), edits...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].start < sorted[b].start })

	var out strings.Builder
	pos := 0
	for _, e := range sorted {
		if e.start < pos {
			continue
		}
		out.WriteString(sql[pos:e.start])
		out.WriteString(e.text)
		pos = e.end
	}
	out.WriteString(sql[pos:])
	return out.String()
}
