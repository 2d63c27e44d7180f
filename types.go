package weave

import (
	"context"
	"strconv"
)

// ExecutionContext selects which physical schemas a compilation binds to.
type ExecutionContext string

const (
	// ExecutionRuntime binds every schema role to the single runtime schema.
	ExecutionRuntime ExecutionContext = "RUNTIME"
	// ExecutionWorkspace binds BASE/WRITE/READ to the configured
	// content-management schemas and turns on overlay merging.
	ExecutionWorkspace ExecutionContext = "WORKSPACE"
)

// SchemaRole is a logical schema slot referenced by a template.
type SchemaRole string

const (
	SchemaRoleBase  SchemaRole = "BASE"
	SchemaRoleWrite SchemaRole = "WRITE"
	SchemaRoleRead  SchemaRole = "READ"
)

// ValueKind discriminates the literal union carried by Value.
type ValueKind string

const (
	ValueKindString ValueKind = "string"
	ValueKindInt    ValueKind = "int"
	ValueKindFloat  ValueKind = "float"
	ValueKindBool   ValueKind = "bool"
	ValueKindNull   ValueKind = "null"
)

// Value is a typed SQL literal. Rendering (quoting, escaping) is owned by
// the Dialect so the same Value compiles correctly for every target.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Str   string    `json:"str,omitempty"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
}

func StringValue(s string) Value  { return Value{Kind: ValueKindString, Str: s} }
func IntValue(i int64) Value      { return Value{Kind: ValueKindInt, Int: i} }
func FloatValue(f float64) Value  { return Value{Kind: ValueKindFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Kind: ValueKindBool, Bool: b} }
func NullValue() Value            { return Value{Kind: ValueKindNull} }

// Native returns the Go value carried by the literal, for handing to a
// database driver as a bind argument.
func (v Value) Native() any {
	switch v.Kind {
	case ValueKindString:
		return v.Str
	case ValueKindInt:
		return v.Int
	case ValueKindFloat:
		return v.Float
	case ValueKindBool:
		return v.Bool
	default:
		return nil
	}
}

// String renders the value without dialect quoting, for diagnostics only.
func (v Value) String() string {
	switch v.Kind {
	case ValueKindString:
		return v.Str
	case ValueKindInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueKindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValueKindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "NULL"
	}
}

// Binding supplies the value(s) for one Parameter or Control tag.
// When Defer is set the tag renders as bind placeholder(s) and the values
// are reported through CompiledStatement.Parameters instead of being
// inlined as literals.
type Binding struct {
	Values []Value `json:"values"`
	Defer  bool    `json:"defer,omitempty"`
}

// BindValues builds an inline-literal binding.
func BindValues(values ...Value) Binding {
	return Binding{Values: values}
}

// BindDeferred builds a binding rendered as placeholder slots.
func BindDeferred(values ...Value) Binding {
	return Binding{Values: values, Defer: true}
}

// BindingContext carries everything a single compilation resolves tags
// against. Parameters come from the end caller; Controls come from the
// calling environment (configuration), which is why a missing Control is
// reported as a configuration fault rather than a caller error.
type BindingContext struct {
	Parameters map[string]Binding `json:"parameters,omitempty"`
	Controls   map[string]Binding `json:"controls,omitempty"`
}

// PredicateKind classifies a structured pushable predicate.
type PredicateKind string

const (
	PredicateEquality PredicateKind = "equality"
	PredicateIn       PredicateKind = "in"
	PredicateRange    PredicateKind = "range"
	PredicatePattern  PredicateKind = "pattern"
)

// Predicate is a caller-supplied filter in structured form, eligible for
// pushdown planning. Free-form predicate text inside a template's own
// WHERE clause is opaque to the compiler and is never moved.
type Predicate struct {
	Table  string        `json:"table"`
	Column string        `json:"column"`
	Kind   PredicateKind `json:"kind"`
	// Op holds the comparison operator for range predicates (">", ">=",
	// "<", "<="). Equality, IN and pattern predicates ignore it.
	Op     string  `json:"op,omitempty"`
	Values []Value `json:"values"`
	Defer  bool    `json:"defer,omitempty"`
}

// BoundParameter is one remaining bind slot of a compiled statement, in
// statement order.
type BoundParameter struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// CompiledStatement is the synthesizer output: final SQL text plus the
// ordered bind slots left for the execution layer.
type CompiledStatement struct {
	SQL        string           `json:"sql"`
	Parameters []BoundParameter `json:"parameters,omitempty"`
}

// Args returns the bind arguments in statement order, ready for a driver.
func (s *CompiledStatement) Args() []any {
	if len(s.Parameters) == 0 {
		return nil
	}
	args := make([]any, len(s.Parameters))
	for i, p := range s.Parameters {
		args[i] = p.Value.Native()
	}
	return args
}

// CompileRequest is the input to a single compilation.
type CompileRequest struct {
	TemplateName string           `json:"templateName"`
	Context      ExecutionContext `json:"context"`
	Binding      BindingContext   `json:"binding"`
	Dialect      Dialect          `json:"dialect"`
	Predicates   []Predicate      `json:"predicates,omitempty"`
	// RequestID correlates log lines for one compilation. Generated when
	// empty.
	RequestID string `json:"requestId,omitempty"`
}

// Compiler turns a named template plus a binding context into an
// executable SQL statement. Implementations are safe for concurrent use;
// all shared state is immutable after construction.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (*CompiledStatement, error)
}

// ColumnSet describes the physical column layout of one table in one
// schema, as reported by the external catalog collaborator.
type ColumnSet struct {
	// Columns in declaration order. Order is preserved verbatim so the
	// SELECT list and every overlay branch sharing the alias agree.
	Columns []string `json:"columns"`
	// KeyColumns form the primary key used by the overlay anti-join.
	KeyColumns []string `json:"keyColumns"`
	// StatusColumn is the content-status flag column consulted by the
	// overlay survivor branch. Empty for tables without staging.
	StatusColumn string `json:"statusColumn,omitempty"`
}

// ColumnCatalog is the external table/column metadata collaborator.
// Lookups must be pure and stable for the lifetime of a compiler.
type ColumnCatalog interface {
	// ColumnSet reports the layout of schema.table, or ok=false when the
	// table does not exist in that schema.
	ColumnSet(schema, table string) (ColumnSet, bool)
}

// TemplateInfo is the read-only public view of one loaded template.
type TemplateInfo struct {
	Name                string `json:"name"`
	BaseTable           string `json:"baseTable"`
	HasWorkspaceVariant bool   `json:"hasWorkspaceVariant"`
}

// LoadReport summarizes a registry load. Parse failures are isolated per
// template: a bad template never blocks the rest of the document.
type LoadReport struct {
	Loaded []string         `json:"loaded"`
	Failed map[string]error `json:"-"`
}

// Ok reports whether every template in the document loaded.
func (r *LoadReport) Ok() bool {
	return len(r.Failed) == 0
}
