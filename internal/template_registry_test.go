package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/weave"
)

func TestRegistryLoadsGoodAndReportsBad(t *testing.T) {
	docs := map[string]string{
		"catalog.tmpl": catalogSearchDoc,
		"broken.tmpl": `
template Broken {
	sql = { SELECT 1 FROM X }
}

template OrderItems {
	base_table = ORDERITEMS
	sql = { SELECT OI.ORDERITEMS_ID FROM ORDERITEMS OI }
}
`,
	}

	r := NewRegistry(docs)
	report := r.Report()

	assert.Equal(t, []string{"CatalogSearch", "OrderItems"}, r.Names())
	assert.False(t, report.Ok())
	require.Contains(t, report.Failed, "Broken")
	assert.True(t, weave.IsMalformedTemplateError(report.Failed["Broken"]))

	_, ok := r.Lookup("CatalogSearch")
	assert.True(t, ok)
	_, ok = r.Lookup("Broken")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	docs := map[string]string{
		"a.tmpl": `template Dup { base_table = X  sql = { SELECT 1 FROM X } }`,
		"b.tmpl": `template Dup { base_table = Y  sql = { SELECT 2 FROM Y } }`,
	}

	r := NewRegistry(docs)
	report := r.Report()

	// Documents load in sorted order, so a.tmpl wins.
	tmpl, ok := r.Lookup("Dup")
	require.True(t, ok)
	assert.Equal(t, "X", tmpl.BaseTable)

	require.Contains(t, report.Failed, "Dup")
	assert.Contains(t, report.Failed["Dup"].Error(), "duplicate template name")
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry(nil)
	assert.Empty(t, r.Names())
	assert.True(t, r.Report().Ok())
}
