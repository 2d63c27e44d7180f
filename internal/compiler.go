package internal

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/weave"
	"github.com/lychee-technology/weave/internal/pushdown"
)

// Compiler turns a template plus a binding context into an executable
// SQL statement for whichever execution context the caller is in.
type Compiler struct {
	cfg      *weave.Config
	registry *Registry
	catalog  weave.ColumnCatalog
	cache    *statementCache
}

func NewCompiler(cfg *weave.Config, registry *Registry, catalog weave.ColumnCatalog) (*Compiler, error) {
	c := &Compiler{cfg: cfg, registry: registry, catalog: catalog}
	if cfg.Cache.Enabled {
		cache, err := newStatementCache(cfg.Cache.MaxEntries)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

func (c *Compiler) Compile(ctx context.Context, req weave.CompileRequest) (*weave.CompiledStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := zap.S().With("requestId", requestID, "template", req.TemplateName, "context", string(req.Context))

	tmpl, ok := c.registry.Lookup(req.TemplateName)
	if !ok {
		return nil, weave.NewUnknownTemplateError(req.TemplateName)
	}
	variant := tmpl.VariantFor(req.Context)

	for _, p := range req.Predicates {
		if len(p.Values) == 0 {
			return nil, weave.NewInvalidPredicateError(tmpl.Name, p.Table, p.Column)
		}
	}

	var cacheKey string
	cacheable := false
	if c.cache != nil {
		cacheKey, cacheable = shapeKey(req)
		if cacheable {
			if ent, hit := c.cache.get(cacheKey); hit {
				log.Debugw("statement cache hit")
				return rebind(ent, req)
			}
		}
	}

	params := &paramCollector{}
	r := &resolver{
		tmpl:     tmpl,
		execCtx:  req.Context,
		binding:  req.Binding,
		bindings: c.cfg.Bindings,
		catalog:  c.catalog,
		dialect:  req.Dialect,
		params:   params,
	}
	resolved, err := r.resolveVariant(variant)
	if err != nil {
		return nil, err
	}

	scan := scanStatement(resolved)
	graph := buildGraph(scan)

	overlays, err := c.planOverlays(tmpl, req.Context, scan)
	if err != nil {
		return nil, err
	}

	overlaySet := make(map[string]bool)
	for name, o := range overlays {
		if !o.Identity {
			overlaySet[name] = true
		}
	}
	placements := pushdown.Plan(req.Predicates, pushdown.Input{
		Graph:         graph,
		OverlayTables: overlaySet,
		Bookkeeping: func(table, column string) bool {
			o, ok := overlays[table]
			return ok && !o.Identity && o.Bookkeeping(column)
		},
	})

	onClause := make(map[int][]renderedPredicate)
	var whereTail []renderedPredicate
	for _, pl := range placements {
		rp := renderedPredicate{pred: pl.Predicate, index: pl.SourceIndex}
		switch pl.Destination {
		case pushdown.DestOverlay:
			o := overlays[pl.Predicate.Table]
			o.Pushed = append(o.Pushed, pl.Predicate)
			o.PushedIndex = append(o.PushedIndex, pl.SourceIndex)
		case pushdown.DestJoinOn:
			onClause[pl.JoinIndex] = append(onClause[pl.JoinIndex], rp)
		default:
			if !referencedAnywhere(scan, pl.Predicate.Table) {
				log.Warnw("predicate targets a table absent from the statement, dropping",
					"table", pl.Predicate.Table, "column", pl.Predicate.Column)
				continue
			}
			whereTail = append(whereTail, rp)
		}
	}

	readSchema := ""
	if req.Context == weave.ExecutionWorkspace {
		readSchema, err = c.cfg.Bindings.For(weave.SchemaRoleRead, req.Context)
		if err != nil {
			return nil, r.withTemplate(err)
		}
	}

	sqlText := synthesize(synthesisInput{
		dialect:    req.Dialect,
		scan:       scan,
		overlays:   overlays,
		onClause:   onClause,
		whereTail:  whereTail,
		readSchema: readSchema,
		params:     params,
	})

	final, bound, order := params.finalize(sqlText, req.Dialect)
	if i := indexAnyMarker(final); i >= 0 {
		return nil, weave.NewUnresolvedTagError(tmpl.Name, snippet(final[i:]))
	}

	stmt := &weave.CompiledStatement{SQL: final, Parameters: bound}
	if cacheable {
		c.cache.put(cacheKey, &cacheEntry{sql: final, slots: order})
	}
	logOverlaySummary(requestID, overlays)
	log.Infow("compiled statement", "bytes", len(final), "binds", len(bound), "overlays", len(overlaySet))
	return stmt, nil
}

// planOverlays decides, per distinct unqualified table reference, whether
// the reference resolves to a merged overlay, an identity qualification,
// or stays untouched for read-through qualification downstream.
func (c *Compiler) planOverlays(tmpl *Template, execCtx weave.ExecutionContext, scan *scannedStatement) (map[string]*EntityOverlay, error) {
	overlays := make(map[string]*EntityOverlay)

	seen := make(map[string]bool)
	for _, ref := range scan.refs {
		if ref.schema != "" || seen[ref.name] {
			continue
		}
		seen[ref.name] = true

		if execCtx != weave.ExecutionWorkspace {
			if c.cfg.Bindings.Runtime != "" {
				overlays[ref.name] = &EntityOverlay{Table: ref.name, Identity: true, Schema: c.cfg.Bindings.Runtime}
			}
			continue
		}

		if ref.name == tmpl.BaseTable {
			o, err := planOverlay(tmpl.Name, ref.name, execCtx, c.cfg.Bindings, c.catalog)
			if err != nil {
				return nil, err
			}
			overlays[ref.name] = o
			continue
		}

		writeSchema, err := c.cfg.Bindings.For(weave.SchemaRoleWrite, execCtx)
		if err != nil {
			return nil, err
		}
		if cs, ok := c.catalog.ColumnSet(writeSchema, ref.name); ok && len(cs.Columns) > 0 {
			o, err := planOverlay(tmpl.Name, ref.name, execCtx, c.cfg.Bindings, c.catalog)
			if err != nil {
				return nil, err
			}
			overlays[ref.name] = o
		}
		// Tables without a write-schema entry read through the READ
		// binding; synthesis qualifies them in place.
	}
	return overlays, nil
}

// buildGraph derives the join graph from the scanned statement. ON text
// that references aliases is normalized back to table names so caller
// predicates, which name tables, line up with the edges.
func buildGraph(scan *scannedStatement) pushdown.Graph {
	aliasToTable := make(map[string]string)
	for _, ref := range scan.refs {
		if ref.alias != "" {
			aliasToTable[ref.alias] = ref.name
		}
		aliasToTable[ref.name] = ref.name
	}

	var g pushdown.Graph
	for idx, seg := range scan.joins {
		if seg.table == "" {
			continue
		}
		var edges []pushdown.EquiEdge
		if seg.onStart >= 0 && seg.onEnd > seg.onStart {
			for _, e := range pushdown.ParseEquiConds(scan.sql[seg.onStart:seg.onEnd]) {
				if t, ok := aliasToTable[e.LeftTable]; ok {
					e.LeftTable = t
				}
				if t, ok := aliasToTable[e.RightTable]; ok {
					e.RightTable = t
				}
				edges = append(edges, e)
			}
		}
		kind := pushdown.JoinInner
		switch seg.kind {
		case joinWordLeft:
			kind = pushdown.JoinLeftOuter
		case joinWordRight:
			kind = pushdown.JoinRightOuter
		}
		g.Joins = append(g.Joins, pushdown.Join{Index: idx, Kind: kind, Table: seg.table, Alias: seg.alias, Edges: edges})
	}
	return g
}

func referencedAnywhere(scan *scannedStatement, table string) bool {
	for _, ref := range scan.refs {
		if ref.name == table {
			return true
		}
	}
	return false
}

func indexAnyMarker(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == slotMarkerOpen[0] || s[i] == slotMarkerClose[0] {
			return i
		}
	}
	return -1
}
