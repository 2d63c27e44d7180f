package internal

import (
	"strconv"
	"strings"

	"github.com/lychee-technology/weave"
)

// Bind slots are collected during resolution but numbered only after the
// full statement text exists, because overlay substitution can splice
// predicate slots ahead of fragment slots. Until then every deferred
// value renders as an opaque marker that cannot occur in SQL text.
const (
	slotMarkerOpen  = "\x01"
	slotMarkerClose = "\x02"
)

type slotSource int

const (
	slotParameter slotSource = iota
	slotControl
	slotPredicate
)

// slotRef describes where a bind slot's value comes from, so a cached
// statement can be re-bound against a later request with the same shape.
type slotRef struct {
	Source     slotSource
	Name       string
	PredIndex  int
	ValueIndex int
}

type paramCollector struct {
	slots  []slotRef
	values []weave.Value
}

func (c *paramCollector) add(ref slotRef, v weave.Value) string {
	idx := len(c.slots)
	c.slots = append(c.slots, ref)
	c.values = append(c.values, v)
	return slotMarkerOpen + strconv.Itoa(idx) + slotMarkerClose
}

// finalize replaces markers with dialect placeholders in textual order
// and returns the bind slots in that same order.
func (c *paramCollector) finalize(sql string, dialect weave.Dialect) (string, []weave.BoundParameter, []slotRef) {
	if !strings.Contains(sql, slotMarkerOpen) {
		return sql, nil, nil
	}

	var out strings.Builder
	var params []weave.BoundParameter
	var order []slotRef

	n := 0
	i := 0
	for i < len(sql) {
		open := strings.Index(sql[i:], slotMarkerOpen)
		if open < 0 {
			out.WriteString(sql[i:])
			break
		}
		out.WriteString(sql[i : i+open])
		i += open + 1
		closeIdx := strings.Index(sql[i:], slotMarkerClose)
		idx, _ := strconv.Atoi(sql[i : i+closeIdx])
		i += closeIdx + 1

		n++
		out.WriteString(dialect.Placeholder(n))
		params = append(params, weave.BoundParameter{Name: c.slots[idx].Name, Value: c.values[idx]})
		order = append(order, c.slots[idx])
	}
	return out.String(), params, order
}

// resolver renders a variant's fragment/tag sequence into SQL text.
// Resolution is pure and total: every tag must resolve or the
// compilation fails with the appropriate taxonomy error.
type resolver struct {
	tmpl     *Template
	execCtx  weave.ExecutionContext
	binding  weave.BindingContext
	bindings weave.SchemaBindings
	catalog  weave.ColumnCatalog
	dialect  weave.Dialect
	params   *paramCollector
}

func (r *resolver) resolveVariant(v *Variant) (string, error) {
	var out strings.Builder
	for _, node := range v.Nodes {
		if node.Kind == NodeText {
			out.WriteString(node.Text)
			continue
		}
		text, err := r.resolveTag(node.Tag)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func (r *resolver) resolveTag(tag Tag) (string, error) {
	switch tag.Kind {
	case TagParameter:
		b, ok := r.binding.Parameters[tag.Name]
		if !ok || len(b.Values) == 0 {
			return "", weave.NewMissingParameterBindingError(r.tmpl.Name, tag.Display())
		}
		return r.renderBinding(tag.Name, slotParameter, b), nil

	case TagControl:
		b, ok := r.binding.Controls[tag.Name]
		if !ok || len(b.Values) == 0 {
			return "", weave.NewMissingControlBindingError(r.tmpl.Name, tag.Display())
		}
		return r.renderBinding(tag.Name, slotControl, b), nil

	case TagColumnSet:
		schema, err := r.bindings.For(weave.SchemaRoleBase, r.execCtx)
		if err != nil {
			return "", r.withTemplate(err)
		}
		cs, ok := r.catalog.ColumnSet(schema, tag.Name)
		if !ok || len(cs.Columns) == 0 {
			return "", weave.NewUnknownColumnSetError(r.tmpl.Name, tag.Name)
		}
		cols := make([]string, len(cs.Columns))
		for i, c := range cs.Columns {
			cols[i] = tag.Name + "." + c
		}
		return strings.Join(cols, ", "), nil

	case TagSchemaRole:
		schema, err := r.bindings.For(tag.Role, r.execCtx)
		if err != nil {
			return "", r.withTemplate(err)
		}
		return schema, nil
	}
	return "", weave.NewUnresolvedTagError(r.tmpl.Name, tag.Display())
}

func (r *resolver) renderBinding(name string, src slotSource, b weave.Binding) string {
	if !b.Defer {
		return r.dialect.RenderValueList(b.Values)
	}
	parts := make([]string, len(b.Values))
	for i, v := range b.Values {
		parts[i] = r.params.add(slotRef{Source: src, Name: name, ValueIndex: i}, v)
	}
	return strings.Join(parts, ",")
}

func (r *resolver) withTemplate(err error) error {
	if e, ok := err.(*weave.Error); ok && e.Template == "" {
		e.Template = r.tmpl.Name
	}
	return err
}
