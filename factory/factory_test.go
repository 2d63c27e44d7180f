package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/weave"
)

type staticCatalog struct{}

func (staticCatalog) ColumnSet(schema, table string) (weave.ColumnSet, bool) {
	if table != "CATENTRY" {
		return weave.ColumnSet{}, false
	}
	return weave.ColumnSet{
		Columns:      []string{"CATENTRY_ID", "PARTNUMBER"},
		KeyColumns:   []string{"CATENTRY_ID"},
		StatusColumn: "CONTENT_STATUS",
	}, true
}

func TestNewCompilerWithConfig(t *testing.T) {
	config := weave.DefaultConfig()
	config.Bindings = weave.SchemaBindings{Runtime: "PROD", Base: "DB2INST1", Write: "WCW101"}

	docs := map[string]string{
		"good.tmpl": `template Find { base_table = CATENTRY  sql = { SELECT CATENTRY.CATENTRY_ID FROM CATENTRY WHERE CATENTRY.CATENTRY_ID = ?Id? } }`,
		"bad.tmpl":  `template Broken { sql = { SELECT 1 FROM X } }`,
	}

	compiler, report, err := NewCompilerWithConfig(config, docs, staticCatalog{})
	require.NoError(t, err)
	require.NotNil(t, compiler)

	assert.False(t, report.Ok())
	assert.Equal(t, []string{"Find"}, report.Loaded)
	assert.Contains(t, report.Failed, "Broken")

	stmt, err := compiler.Compile(context.Background(), weave.CompileRequest{
		TemplateName: "Find",
		Context:      weave.ExecutionRuntime,
		Dialect:      weave.DialectDB2(),
		Binding: weave.BindingContext{
			Parameters: map[string]weave.Binding{"Id": weave.BindValues(weave.IntValue(10683))},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "PROD.CATENTRY")
}

func TestNewCompilerWithConfigNilArguments(t *testing.T) {
	_, _, err := NewCompilerWithConfig(nil, nil, staticCatalog{})
	assert.Error(t, err)

	_, _, err = NewCompilerWithConfig(weave.DefaultConfig(), nil, nil)
	assert.Error(t, err)
}
