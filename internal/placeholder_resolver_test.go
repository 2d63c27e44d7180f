package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/weave"
)

// mapCatalog is the test double every compiler-facing test shares.
type mapCatalog map[string]map[string]weave.ColumnSet

func (c mapCatalog) ColumnSet(schema, table string) (weave.ColumnSet, bool) {
	tables, ok := c[schema]
	if !ok {
		return weave.ColumnSet{}, false
	}
	cs, ok := tables[table]
	return cs, ok
}

func testCatalog() mapCatalog {
	catentry := weave.ColumnSet{
		Columns:      []string{"CATENTRY_ID", "PARTNUMBER", "LANGUAGE_ID"},
		KeyColumns:   []string{"CATENTRY_ID"},
		StatusColumn: "CONTENT_STATUS",
	}
	attrvalue := weave.ColumnSet{
		Columns:      []string{"ATTRVALUE_ID", "CATENTRY_ID", "LANGUAGE_ID", "STRINGVALUE"},
		KeyColumns:   []string{"ATTRVALUE_ID"},
		StatusColumn: "CONTENT_STATUS",
	}
	return mapCatalog{
		"DB2INST1": {"CATENTRY": catentry, "ATTRVALUE": attrvalue},
		"WCW101":   {"CATENTRY": catentry, "ATTRVALUE": attrvalue},
	}
}

func workspaceBindings() weave.SchemaBindings {
	return weave.SchemaBindings{Runtime: "PROD", Base: "DB2INST1", Write: "WCW101"}
}

func mustParse(t *testing.T, doc string) *Template {
	t.Helper()
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	require.Len(t, blocks, 1)
	tmpl, err := parseTemplate(blocks[0])
	require.NoError(t, err)
	return tmpl
}

func TestResolveInlineParameter(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = CATENTRY  sql = { WHERE ID = ?Id? } }`)
	r := &resolver{
		tmpl:    tmpl,
		execCtx: weave.ExecutionRuntime,
		binding: weave.BindingContext{
			Parameters: map[string]weave.Binding{"Id": weave.BindValues(weave.IntValue(10683))},
		},
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	sql, err := r.resolveVariant(tmpl.Runtime)
	require.NoError(t, err)
	assert.Equal(t, "WHERE ID = 10683", sql)
}

func TestResolveInlineMultiValue(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { IN ($CONTROL:LANGUAGES$) } }`)
	r := &resolver{
		tmpl:    tmpl,
		execCtx: weave.ExecutionRuntime,
		binding: weave.BindingContext{
			Controls: map[string]weave.Binding{
				"LANGUAGES": weave.BindValues(weave.IntValue(-1), weave.IntValue(-2), weave.IntValue(-3)),
			},
		},
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	sql, err := r.resolveVariant(tmpl.Runtime)
	require.NoError(t, err)
	assert.Equal(t, "IN (-1,-2,-3)", sql)
}

func TestResolveMissingParameterIsCallerError(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { WHERE ID = ?Id? } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionRuntime,
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	_, err := r.resolveVariant(tmpl.Runtime)
	require.Error(t, err)
	assert.True(t, weave.IsMissingBindingError(err))
	assert.True(t, weave.IsCallerError(err))
	assert.Contains(t, err.Error(), "?Id?")
}

func TestResolveMissingControlIsConfigurationError(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { IN ($CONTROL:LANGUAGES$) } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionRuntime,
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	_, err := r.resolveVariant(tmpl.Runtime)
	require.Error(t, err)
	assert.True(t, weave.IsMissingBindingError(err))
	assert.True(t, weave.IsConfigurationError(err))
	assert.False(t, weave.IsCallerError(err))
}

func TestResolveEmptyBindingIsMissing(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { WHERE ID = ?Id? } }`)
	r := &resolver{
		tmpl:    tmpl,
		execCtx: weave.ExecutionRuntime,
		binding: weave.BindingContext{
			Parameters: map[string]weave.Binding{"Id": {}},
		},
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	_, err := r.resolveVariant(tmpl.Runtime)
	require.Error(t, err)
	assert.True(t, weave.IsMissingBindingError(err))
}

func TestResolveColumnSetExpansion(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = CATENTRY  sql = { SELECT $COLS:CATENTRY$ FROM CATENTRY } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionWorkspace,
		bindings: workspaceBindings(),
		catalog:  testCatalog(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	sql, err := r.resolveVariant(tmpl.Runtime)
	require.NoError(t, err)
	assert.Equal(t, "SELECT CATENTRY.CATENTRY_ID, CATENTRY.PARTNUMBER, CATENTRY.LANGUAGE_ID FROM CATENTRY", sql)
}

func TestResolveUnknownColumnSet(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { SELECT $COLS:NOPE$ FROM NOPE } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionWorkspace,
		bindings: workspaceBindings(),
		catalog:  testCatalog(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	_, err := r.resolveVariant(tmpl.Runtime)
	require.Error(t, err)
	var werr *weave.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, weave.ErrCodeUnknownColumnSet, werr.Code)
}

func TestResolveSchemaRoleTags(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { FROM $CM:BASE$.X, $CM:WRITE$.X, $CM:READ$.X } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionWorkspace,
		bindings: workspaceBindings(),
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	sql, err := r.resolveVariant(tmpl.Runtime)
	require.NoError(t, err)
	// READ falls back to BASE when unset.
	assert.Equal(t, "FROM DB2INST1.X, WCW101.X, DB2INST1.X", sql)
}

func TestResolveSchemaRoleUnboundWorkspace(t *testing.T) {
	tmpl := mustParse(t, `template T { base_table = X  sql = { FROM $CM:WRITE$.X } }`)
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  weave.ExecutionWorkspace,
		bindings: weave.SchemaBindings{Runtime: "PROD", Base: "DB2INST1"},
		dialect:  weave.DialectDB2(),
		params:   &paramCollector{},
	}
	_, err := r.resolveVariant(tmpl.Runtime)
	require.Error(t, err)
	assert.True(t, weave.IsConfigurationError(err))

	var werr *weave.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "T", werr.Template)
}

func TestFinalizeOrdersSlotsTextually(t *testing.T) {
	c := &paramCollector{}
	first := c.add(slotRef{Source: slotParameter, Name: "A"}, weave.IntValue(1))
	second := c.add(slotRef{Source: slotPredicate, Name: "T.C", PredIndex: 0}, weave.IntValue(2))

	// The predicate slot is spliced ahead of the parameter slot.
	sql, params, order := c.finalize("X = "+second+" AND Y = "+first, weave.DialectPostgres())
	assert.Equal(t, "X = $1 AND Y = $2", sql)
	require.Len(t, params, 2)
	assert.Equal(t, "T.C", params[0].Name)
	assert.Equal(t, int64(2), params[0].Value.Int)
	assert.Equal(t, "A", params[1].Name)
	require.Len(t, order, 2)
	assert.Equal(t, slotPredicate, order[0].Source)
}

func TestFinalizeQuestionStyle(t *testing.T) {
	c := &paramCollector{}
	m := c.add(slotRef{Source: slotParameter, Name: "A"}, weave.StringValue("x"))
	sql, params, _ := c.finalize("C = "+m+" OR D = "+m, weave.DialectDB2())
	assert.Equal(t, "C = ? OR D = ?", sql)
	// A marker referenced twice binds its value twice.
	require.Len(t, params, 2)
	assert.False(t, strings.Contains(sql, slotMarkerOpen))
}
