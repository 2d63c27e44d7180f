package internal

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/weave"
)

// TagKind discriminates the four tag kinds of the template grammar.
type TagKind int

const (
	TagParameter TagKind = iota
	TagControl
	TagColumnSet
	TagSchemaRole
)

func (k TagKind) String() string {
	switch k {
	case TagParameter:
		return "parameter"
	case TagControl:
		return "control"
	case TagColumnSet:
		return "column-set"
	default:
		return "schema-role"
	}
}

// Tag is one placeholder occurrence inside a fragment.
type Tag struct {
	Kind TagKind
	Name string
	Role weave.SchemaRole // only for TagSchemaRole
}

// Display renders the tag in source syntax for error messages.
func (t Tag) Display() string {
	switch t.Kind {
	case TagParameter:
		return "?" + t.Name + "?"
	case TagControl:
		return "$CONTROL:" + t.Name + "$"
	case TagColumnSet:
		return "$COLS:" + t.Name + "$"
	default:
		return "$CM:" + string(t.Role) + "$"
	}
}

// NodeKind tells literal SQL text apart from tag occurrences.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeTag
)

// Node is one ordered piece of a variant body. Text between tags is
// preserved verbatim; structure inside it (subqueries, CTEs) is opaque
// at this layer.
type Node struct {
	Kind NodeKind
	Text string
	Tag  Tag
}

// Variant is one parsed sql block.
type Variant struct {
	Context weave.ExecutionContext
	Nodes   []Node
}

// Template is one parsed template block. Immutable after parse.
type Template struct {
	Name      string
	BaseTable string
	Runtime   *Variant
	Workspace *Variant
}

// VariantFor selects the body for an execution context. A workspace
// request without a workspace variant falls back to the runtime body
// unconditionally.
func (t *Template) VariantFor(execCtx weave.ExecutionContext) *Variant {
	if execCtx == weave.ExecutionWorkspace && t.Workspace != nil {
		return t.Workspace
	}
	return t.Runtime
}

// Info exposes the public read-only view.
func (t *Template) Info() weave.TemplateInfo {
	return weave.TemplateInfo{
		Name:                t.Name,
		BaseTable:           t.BaseTable,
		HasWorkspaceVariant: t.Workspace != nil,
	}
}

type rawBlock struct {
	name string
	body string
	line int
}

// splitBlocks cuts a document into per-template raw blocks so one
// malformed block cannot take down its neighbors. Only brace balancing
// happens here; block contents are parsed independently afterwards.
func splitBlocks(doc string) ([]rawBlock, []error) {
	var blocks []rawBlock
	var errs []error

	line := 1
	i := 0
	for i < len(doc) {
		c := doc[i]
		if c == '\n' {
			line++
			i++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			i++
			continue
		}
		if c == '#' {
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
			continue
		}

		rest := doc[i:]
		if !strings.HasPrefix(rest, "template") {
			word := firstWord(rest)
			errs = append(errs, weave.NewMalformedTemplateError("", fmt.Sprintf("unknown section marker %q", word)).WithDetail("line", line))
			// Skip the offending line and keep scanning.
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
			continue
		}

		i += len("template")
		for i < len(doc) && (doc[i] == ' ' || doc[i] == '\t') {
			i++
		}
		nameStart := i
		for i < len(doc) && isIdentByte(doc[i]) {
			i++
		}
		name := doc[nameStart:i]
		startLine := line
		if name == "" {
			errs = append(errs, weave.NewMalformedTemplateError("", "template block without a name").WithDetail("line", line))
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
			continue
		}

		for i < len(doc) && (doc[i] == ' ' || doc[i] == '\t') {
			i++
		}
		if i >= len(doc) || doc[i] != '{' {
			errs = append(errs, weave.NewMalformedTemplateError(name, "expected '{' after template name").WithDetail("line", line))
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
			continue
		}

		i++ // consume '{'
		depth := 1
		bodyStart := i
		for i < len(doc) && depth > 0 {
			switch doc[i] {
			case '{':
				depth++
			case '}':
				depth--
			case '\n':
				line++
			}
			i++
		}
		if depth != 0 {
			errs = append(errs, weave.NewMalformedTemplateError(name, "unterminated template block").WithDetail("line", startLine))
			break
		}
		blocks = append(blocks, rawBlock{name: name, body: doc[bodyStart : i-1], line: startLine})
	}
	return blocks, errs
}

// parseTemplate parses one raw block body into a Template.
func parseTemplate(b rawBlock) (*Template, error) {
	tmpl := &Template{Name: b.name}

	body := b.body
	i := 0
	for i < len(body) {
		c := body[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			i++
			continue
		}
		if c == '#' {
			for i < len(body) && body[i] != '\n' {
				i++
			}
			continue
		}

		rest := body[i:]
		switch {
		case hasKeyword(rest, "base_table"):
			i += len("base_table")
			value, next, err := parseAssignment(body, i, b.name, "base_table")
			if err != nil {
				return nil, err
			}
			if tmpl.BaseTable != "" {
				return nil, weave.NewMalformedTemplateError(b.name, "duplicate base_table declaration")
			}
			tmpl.BaseTable = value
			i = next

		case hasKeyword(rest, "cm"):
			i += len("cm")
			sqlText, next, err := parseSQLBlock(body, i, b.name)
			if err != nil {
				return nil, err
			}
			if tmpl.Workspace != nil {
				return nil, weave.NewMalformedTemplateError(b.name, "duplicate variant for workspace context")
			}
			nodes, err := scanFragments(b.name, sqlText)
			if err != nil {
				return nil, err
			}
			tmpl.Workspace = &Variant{Context: weave.ExecutionWorkspace, Nodes: nodes}
			i = next

		case hasKeyword(rest, "sql"):
			sqlText, next, err := parseSQLBlock(body, i, b.name)
			if err != nil {
				return nil, err
			}
			if tmpl.Runtime != nil {
				return nil, weave.NewMalformedTemplateError(b.name, "duplicate variant for runtime context")
			}
			nodes, err := scanFragments(b.name, sqlText)
			if err != nil {
				return nil, err
			}
			tmpl.Runtime = &Variant{Context: weave.ExecutionRuntime, Nodes: nodes}
			i = next

		default:
			return nil, weave.NewMalformedTemplateError(b.name, fmt.Sprintf("unknown section marker %q", firstWord(rest)))
		}
	}

	if tmpl.BaseTable == "" {
		return nil, weave.NewMalformedTemplateError(b.name, "missing required base_table declaration")
	}
	if tmpl.Runtime == nil {
		return nil, weave.NewMalformedTemplateError(b.name, "missing required runtime sql block")
	}
	return tmpl, nil
}

// parseAssignment reads "= VALUE" after a directive keyword.
func parseAssignment(body string, i int, tmplName, directive string) (string, int, error) {
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	if i >= len(body) || body[i] != '=' {
		return "", 0, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("expected '=' after %s", directive))
	}
	i++
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	start := i
	for i < len(body) && isIdentByte(body[i]) {
		i++
	}
	value := body[start:i]
	if value == "" {
		return "", 0, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("missing value for %s", directive))
	}
	return value, i, nil
}

// parseSQLBlock reads "sql = { ... }" starting at the position of the
// "sql" keyword and returns the raw SQL text.
func parseSQLBlock(body string, i int, tmplName string) (string, int, error) {
	rest := body[i:]
	if !hasKeyword(strings.TrimLeft(rest, " \t"), "sql") {
		return "", 0, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("unknown section marker %q", firstWord(rest)))
	}
	i += strings.Index(body[i:], "sql") + len("sql")
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	if i >= len(body) || body[i] != '=' {
		return "", 0, weave.NewMalformedTemplateError(tmplName, "expected '=' after sql")
	}
	i++
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
		i++
	}
	if i >= len(body) || body[i] != '{' {
		return "", 0, weave.NewMalformedTemplateError(tmplName, "expected '{' to open sql block")
	}
	i++
	depth := 1
	start := i
	for i < len(body) && depth > 0 {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		i++
	}
	if depth != 0 {
		return "", 0, weave.NewMalformedTemplateError(tmplName, "unterminated sql block")
	}
	return strings.TrimSpace(body[start : i-1]), i, nil
}

// scanFragments splits SQL text into an ordered fragment/tag node list.
// Everything outside tag syntax passes through verbatim.
func scanFragments(tmplName, sql string) ([]Node, error) {
	var nodes []Node
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, Node{Kind: NodeText, Text: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(sql) {
		c := sql[i]
		switch c {
		case '?':
			if i+1 < len(sql) && isIdentByte(sql[i+1]) {
				j := i + 1
				for j < len(sql) && isIdentByte(sql[j]) {
					j++
				}
				if j >= len(sql) || sql[j] != '?' {
					return nil, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("unterminated parameter tag ?%s", sql[i+1:j]))
				}
				flush()
				nodes = append(nodes, Node{Kind: NodeTag, Tag: Tag{Kind: TagParameter, Name: sql[i+1 : j]}})
				i = j + 1
				continue
			}
			text.WriteByte(c)
			i++
		case '$':
			end := strings.IndexByte(sql[i+1:], '$')
			nl := strings.IndexByte(sql[i+1:], '\n')
			if end < 0 || (nl >= 0 && nl < end) {
				return nil, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("unterminated tag starting at %q", snippet(sql[i:])))
			}
			inner := sql[i+1 : i+1+end]
			tag, err := parseDollarTag(tmplName, inner)
			if err != nil {
				return nil, err
			}
			flush()
			nodes = append(nodes, Node{Kind: NodeTag, Tag: tag})
			i += end + 2
		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()
	return nodes, nil
}

func parseDollarTag(tmplName, inner string) (Tag, error) {
	kind, name, ok := strings.Cut(inner, ":")
	if !ok {
		return Tag{}, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("malformed tag $%s$", inner))
	}
	switch kind {
	case "CONTROL":
		if !isIdent(name) {
			return Tag{}, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("invalid control tag name %q", name))
		}
		return Tag{Kind: TagControl, Name: name}, nil
	case "COLS":
		if !isIdent(name) {
			return Tag{}, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("invalid column-set alias %q", name))
		}
		return Tag{Kind: TagColumnSet, Name: name}, nil
	case "CM":
		switch weave.SchemaRole(name) {
		case weave.SchemaRoleBase, weave.SchemaRoleWrite, weave.SchemaRoleRead:
			return Tag{Kind: TagSchemaRole, Name: name, Role: weave.SchemaRole(name)}, nil
		}
		return Tag{}, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("unknown schema role %q", name))
	default:
		return Tag{}, weave.NewMalformedTemplateError(tmplName, fmt.Sprintf("unknown tag kind $%s:...$", kind))
	}
}

// hasKeyword matches a directive keyword with a word boundary after it,
// so "cmfoo" is not read as "cm".
func hasKeyword(s, kw string) bool {
	return strings.HasPrefix(s, kw) && (len(s) == len(kw) || !isIdentByte(s[len(kw)]))
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexAny(s, " \t\r\n={")
	if end < 0 {
		end = len(s)
	}
	if end > 40 {
		end = 40
	}
	return s[:end]
}

func snippet(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}
