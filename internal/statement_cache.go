package internal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lychee-technology/weave"
)

// cacheEntry keeps the finished SQL text plus the slot order needed to
// re-bind a later request with the same shape.
type cacheEntry struct {
	sql   string
	slots []slotRef
}

type statementCache struct {
	entries *lru.Cache[string, *cacheEntry]
}

func newStatementCache(maxEntries int) (*statementCache, error) {
	c, err := lru.New[string, *cacheEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &statementCache{entries: c}, nil
}

func (c *statementCache) get(key string) (*cacheEntry, bool) {
	return c.entries.Get(key)
}

func (c *statementCache) put(key string, ent *cacheEntry) {
	c.entries.Add(key, ent)
}

// shapeKey derives a cache key from everything that shapes the SQL text
// without depending on bound values. The second return is false when the
// request carries inline values anywhere, which makes the text
// value-dependent and therefore uncacheable.
func shapeKey(req weave.CompileRequest) (string, bool) {
	var b strings.Builder
	b.WriteString(req.TemplateName)
	b.WriteByte('|')
	b.WriteString(string(req.Context))
	b.WriteByte('|')
	b.WriteString(req.Dialect.Name)
	fmt.Fprintf(&b, "/%v/%v/%v/%s/%s|",
		req.Dialect.SupportsCTE, req.Dialect.PreferCTE, req.Dialect.SupportsUnionAll,
		req.Dialect.Quoting, req.Dialect.Placeholders)

	writeShapes := func(prefix string, m map[string]weave.Binding) bool {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			bind := m[name]
			if !bind.Defer {
				return false
			}
			b.WriteString(prefix)
			b.WriteString(name)
			b.WriteByte('#')
			b.WriteString(strconv.Itoa(len(bind.Values)))
			b.WriteByte('|')
		}
		return true
	}
	if !writeShapes("P:", req.Binding.Parameters) {
		return "", false
	}
	if !writeShapes("C:", req.Binding.Controls) {
		return "", false
	}
	for _, p := range req.Predicates {
		if !p.Defer {
			return "", false
		}
		b.WriteString("R:")
		b.WriteString(p.Table)
		b.WriteByte('.')
		b.WriteString(p.Column)
		b.WriteByte(':')
		b.WriteString(string(p.Kind))
		b.WriteByte(':')
		b.WriteString(p.Op)
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(len(p.Values)))
		b.WriteByte('|')
	}
	return b.String(), true
}

// rebind materializes a cached statement against a fresh request. The
// shape key guarantees that every slot resolves.
func rebind(ent *cacheEntry, req weave.CompileRequest) (*weave.CompiledStatement, error) {
	params := make([]weave.BoundParameter, 0, len(ent.slots))
	for _, ref := range ent.slots {
		var v weave.Value
		switch ref.Source {
		case slotParameter:
			bind, ok := req.Binding.Parameters[ref.Name]
			if !ok || ref.ValueIndex >= len(bind.Values) {
				return nil, weave.NewUnresolvedTagError(req.TemplateName, ref.Name)
			}
			v = bind.Values[ref.ValueIndex]
		case slotControl:
			bind, ok := req.Binding.Controls[ref.Name]
			if !ok || ref.ValueIndex >= len(bind.Values) {
				return nil, weave.NewUnresolvedTagError(req.TemplateName, ref.Name)
			}
			v = bind.Values[ref.ValueIndex]
		default:
			if ref.PredIndex >= len(req.Predicates) || ref.ValueIndex >= len(req.Predicates[ref.PredIndex].Values) {
				return nil, weave.NewUnresolvedTagError(req.TemplateName, ref.Name)
			}
			v = req.Predicates[ref.PredIndex].Values[ref.ValueIndex]
		}
		params = append(params, weave.BoundParameter{Name: ref.Name, Value: v})
	}
	return &weave.CompiledStatement{SQL: ent.sql, Parameters: params}, nil
}
