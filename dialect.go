package weave

import (
	"strconv"
	"strings"
)

// IdentifierQuoting selects how generated identifiers are quoted.
// Identifiers copied verbatim from template text are never re-quoted.
type IdentifierQuoting string

const (
	QuoteNone     IdentifierQuoting = "none"
	QuoteDouble   IdentifierQuoting = "double"
	QuoteBacktick IdentifierQuoting = "backtick"
)

// PlaceholderStyle selects the bind-slot syntax for deferred values.
type PlaceholderStyle string

const (
	PlaceholderQuestion PlaceholderStyle = "question"
	PlaceholderDollar   PlaceholderStyle = "dollar"
)

// Dialect is a capability descriptor for one SQL target. Rendering
// differences are flag dispatch on this struct, not per-dialect
// synthesizer implementations.
type Dialect struct {
	Name string `json:"name"`
	// SupportsCTE permits WITH preambles at all.
	SupportsCTE bool `json:"supportsCTE"`
	// PreferCTE hoists overlay definitions into a WITH preamble instead
	// of inlining them as nested subqueries. Semantically identical;
	// chosen for targets whose optimizer handles materialized
	// intermediates better.
	PreferCTE bool `json:"preferCTE"`
	// SupportsUnionAll keeps duplicate rows across union branches. The
	// overlay branches are disjoint by construction, so targets without
	// it degrade to plain UNION with identical results.
	SupportsUnionAll bool              `json:"supportsUnionAll"`
	Quoting          IdentifierQuoting `json:"quoting"`
	Placeholders     PlaceholderStyle  `json:"placeholders"`
}

// DialectDB2 targets DB2-style engines.
func DialectDB2() Dialect {
	return Dialect{
		Name:             "db2",
		SupportsCTE:      true,
		SupportsUnionAll: true,
		Quoting:          QuoteNone,
		Placeholders:     PlaceholderQuestion,
	}
}

// DialectPostgres targets PostgreSQL-compatible engines.
func DialectPostgres() Dialect {
	return Dialect{
		Name:             "postgres",
		SupportsCTE:      true,
		PreferCTE:        true,
		SupportsUnionAll: true,
		Quoting:          QuoteNone,
		Placeholders:     PlaceholderDollar,
	}
}

// DialectGeneric targets any ANSI-ish engine, SQLite included.
func DialectGeneric() Dialect {
	return Dialect{
		Name:             "generic",
		SupportsCTE:      true,
		SupportsUnionAll: true,
		Quoting:          QuoteNone,
		Placeholders:     PlaceholderQuestion,
	}
}

// QuoteIdent quotes a generated identifier per the dialect preference.
func (d Dialect) QuoteIdent(name string) string {
	switch d.Quoting {
	case QuoteDouble:
		return `"` + name + `"`
	case QuoteBacktick:
		return "`" + name + "`"
	default:
		return name
	}
}

// Placeholder renders the n-th (1-based) bind slot.
func (d Dialect) Placeholder(n int) string {
	if d.Placeholders == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// RenderValue renders a literal for inline substitution.
func (d Dialect) RenderValue(v Value) string {
	switch v.Kind {
	case ValueKindString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case ValueKindInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueKindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValueKindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "NULL"
	}
}

// RenderValueList renders a comma-joined literal list, as used for IN
// lists and list-valued tags.
func (d Dialect) RenderValueList(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = d.RenderValue(v)
	}
	return strings.Join(parts, ",")
}
