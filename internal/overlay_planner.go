package internal

import (
	"sort"

	"github.com/lychee-technology/weave"
)

// EntityOverlay is the derived merge plan for one table under an
// execution context: base rows not superseded, plus surviving write
// rows, presented as a single logical relation. Under runtime context
// the overlay degenerates to the identity relation.
type EntityOverlay struct {
	Table    string
	Identity bool
	// Schema qualifies the identity relation (runtime schema). Empty
	// means an unqualified reference.
	Schema string

	BaseSchema  string
	WriteSchema string
	// Columns in base-catalog declaration order; both branches project
	// this exact list so column order never drifts across the union.
	Columns      []string
	KeyColumns   []string
	StatusColumn string
	// Pushed predicates are injected into both branches identically.
	// Injecting into only one branch would silently reintroduce rows the
	// optimizer believes were filtered.
	Pushed []weave.Predicate
	// PushedIndex maps each pushed predicate back to its position in the
	// request, for bind-slot bookkeeping.
	PushedIndex []int
}

// Bookkeeping reports whether column is one of the overlay's own
// bookkeeping columns (anti-join key or status flag).
func (o *EntityOverlay) Bookkeeping(column string) bool {
	if column == o.StatusColumn {
		return true
	}
	for _, k := range o.KeyColumns {
		if k == column {
			return true
		}
	}
	return false
}

// planOverlay builds the overlay plan for one table. Runtime context
// yields the identity relation; workspace context builds the anti-join
// merge, validating that base and write declare the same column set
// first, so drift fails here instead of at the database.
func planOverlay(tmplName, table string, execCtx weave.ExecutionContext, bindings weave.SchemaBindings, catalog weave.ColumnCatalog) (*EntityOverlay, error) {
	if execCtx == weave.ExecutionRuntime {
		return &EntityOverlay{Table: table, Identity: true, Schema: bindings.Runtime}, nil
	}

	baseSchema, err := bindings.For(weave.SchemaRoleBase, execCtx)
	if err != nil {
		return nil, err
	}
	writeSchema, err := bindings.For(weave.SchemaRoleWrite, execCtx)
	if err != nil {
		return nil, err
	}

	baseCS, ok := catalog.ColumnSet(baseSchema, table)
	if !ok || len(baseCS.Columns) == 0 {
		return nil, weave.NewUnknownColumnSetError(tmplName, table).
			WithDetail("schema", baseSchema)
	}
	writeCS, ok := catalog.ColumnSet(writeSchema, table)
	if !ok {
		return nil, weave.NewSchemaMismatchError(tmplName, table).
			WithDetail("reason", "table missing from write schema").
			WithDetail("writeSchema", writeSchema)
	}
	if !sameColumnSet(baseCS.Columns, writeCS.Columns) {
		return nil, weave.NewSchemaMismatchError(tmplName, table).
			WithDetail("baseColumns", baseCS.Columns).
			WithDetail("writeColumns", writeCS.Columns)
	}
	if len(baseCS.KeyColumns) == 0 {
		return nil, weave.NewSchemaMismatchError(tmplName, table).
			WithDetail("reason", "no key columns declared for overlay anti-join")
	}
	if writeCS.StatusColumn == "" {
		return nil, weave.NewSchemaMismatchError(tmplName, table).
			WithDetail("reason", "write schema declares no status column")
	}

	return &EntityOverlay{
		Table:        table,
		BaseSchema:   baseSchema,
		WriteSchema:  writeSchema,
		Columns:      baseCS.Columns,
		KeyColumns:   baseCS.KeyColumns,
		StatusColumn: writeCS.StatusColumn,
	}, nil
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
