package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/weave"
)

const catalogSearchDoc = `
# Catalog lookup by identifier.
template CatalogSearch {
	base_table = CATENTRY

	sql = {
		SELECT CE.CATENTRY_ID, CE.PARTNUMBER
		FROM CATENTRY CE
		WHERE CE.CATENTRY_ID = ?Id?
	}

	cm sql = {
		SELECT CE.CATENTRY_ID, CE.PARTNUMBER
		FROM CATENTRY CE
		WHERE CE.CATENTRY_ID = ?Id?
		  AND CE.LANGUAGE_ID IN ($CONTROL:LANGUAGES$)
	}
}
`

func TestParseTemplateBothVariants(t *testing.T) {
	blocks, errs := splitBlocks(catalogSearchDoc)
	require.Empty(t, errs)
	require.Len(t, blocks, 1)

	tmpl, err := parseTemplate(blocks[0])
	require.NoError(t, err)

	assert.Equal(t, "CatalogSearch", tmpl.Name)
	assert.Equal(t, "CATENTRY", tmpl.BaseTable)
	require.NotNil(t, tmpl.Runtime)
	require.NotNil(t, tmpl.Workspace)

	info := tmpl.Info()
	assert.True(t, info.HasWorkspaceVariant)

	var tags []Tag
	for _, n := range tmpl.Workspace.Nodes {
		if n.Kind == NodeTag {
			tags = append(tags, n.Tag)
		}
	}
	require.Len(t, tags, 2)
	assert.Equal(t, Tag{Kind: TagParameter, Name: "Id"}, tags[0])
	assert.Equal(t, Tag{Kind: TagControl, Name: "LANGUAGES"}, tags[1])
}

func TestParseTemplateWorkspaceFallback(t *testing.T) {
	doc := `
template RuntimeOnly {
	base_table = ORDERS
	sql = { SELECT * FROM ORDERS }
}
`
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	tmpl, err := parseTemplate(blocks[0])
	require.NoError(t, err)

	assert.Nil(t, tmpl.Workspace)
	assert.Same(t, tmpl.Runtime, tmpl.VariantFor(weave.ExecutionWorkspace))
}

func TestParseTemplateMissingBaseTable(t *testing.T) {
	doc := `
template NoBase {
	sql = { SELECT 1 FROM DUAL }
}
`
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	_, err := parseTemplate(blocks[0])
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
	assert.Contains(t, err.Error(), "base_table")
}

func TestParseTemplateMissingRuntimeVariant(t *testing.T) {
	doc := `
template OnlyWorkspace {
	base_table = CATENTRY
	cm sql = { SELECT 1 FROM CATENTRY }
}
`
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	_, err := parseTemplate(blocks[0])
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
}

func TestParseTemplateDuplicateVariant(t *testing.T) {
	doc := `
template Dup {
	base_table = CATENTRY
	sql = { SELECT 1 FROM CATENTRY }
	sql = { SELECT 2 FROM CATENTRY }
}
`
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	_, err := parseTemplate(blocks[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate variant")
}

func TestParseTemplateMisspelledSectionMarker(t *testing.T) {
	doc := `
template Typo {
	base_table = CATENTRY
	sql = { SELECT 1 FROM CATENTRY }
	cmfoo sql = { SELECT 2 FROM CATENTRY }
}
`
	blocks, errs := splitBlocks(doc)
	require.Empty(t, errs)
	_, err := parseTemplate(blocks[0])
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
	assert.Contains(t, err.Error(), "unknown section marker")
	assert.Contains(t, err.Error(), "cmfoo")
}

func TestSplitBlocksIsolatesMalformedNeighbors(t *testing.T) {
	doc := `
templte Broken {
	base_table = X
}

template Good {
	base_table = Y
	sql = { SELECT 1 FROM Y }
}
`
	blocks, errs := splitBlocks(doc)
	require.Len(t, errs, 3) // "templte", "base_table", "}" lines all rejected
	require.Len(t, blocks, 1)
	assert.Equal(t, "Good", blocks[0].name)
}

func TestSplitBlocksUnterminated(t *testing.T) {
	doc := `template Unclosed { base_table = X`
	blocks, errs := splitBlocks(doc)
	assert.Empty(t, blocks)
	require.Len(t, errs, 1)
	assert.True(t, weave.IsMalformedTemplateError(errs[0]))
}

func TestScanFragmentsBareQuestionMark(t *testing.T) {
	nodes, err := scanFragments("T", "SELECT 'a?' FROM X WHERE C = ? AND D = ?Name?")
	require.NoError(t, err)

	var tags []Tag
	text := ""
	for _, n := range nodes {
		if n.Kind == NodeTag {
			tags = append(tags, n.Tag)
		} else {
			text += n.Text
		}
	}
	// The '?' inside the literal and the lone positional '?' stay text.
	require.Len(t, tags, 1)
	assert.Equal(t, "Name", tags[0].Name)
	assert.Contains(t, text, "'a?'")
	assert.Contains(t, text, "= ? AND")
}

func TestScanFragmentsUnterminatedParameter(t *testing.T) {
	_, err := scanFragments("T", "WHERE C = ?Name AND D = 1")
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
}

func TestScanFragmentsUnterminatedDollarTag(t *testing.T) {
	_, err := scanFragments("T", "SELECT $COLS:CE\nFROM CATENTRY CE")
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
}

func TestScanFragmentsSchemaRoleTags(t *testing.T) {
	nodes, err := scanFragments("T", "SELECT 1 FROM $CM:BASE$.CATENTRY, $CM:WRITE$.CATENTRY, $CM:READ$.ATTR")
	require.NoError(t, err)

	var roles []weave.SchemaRole
	for _, n := range nodes {
		if n.Kind == NodeTag {
			require.Equal(t, TagSchemaRole, n.Tag.Kind)
			roles = append(roles, n.Tag.Role)
		}
	}
	assert.Equal(t, []weave.SchemaRole{weave.SchemaRoleBase, weave.SchemaRoleWrite, weave.SchemaRoleRead}, roles)
}

func TestScanFragmentsUnknownTagKind(t *testing.T) {
	_, err := scanFragments("T", "SELECT $BOGUS:X$ FROM Y")
	require.Error(t, err)
	assert.True(t, weave.IsMalformedTemplateError(err))
}
