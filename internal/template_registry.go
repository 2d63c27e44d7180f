package internal

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lychee-technology/weave"
)

// Registry holds every successfully parsed template. It is populated
// once at construction and never mutated afterwards, so concurrent
// compile calls share it without locking.
type Registry struct {
	templates map[string]*Template
	report    weave.LoadReport
}

// NewRegistry parses the given documents (name -> raw text). Parse
// failures are isolated per template: every well-formed block loads even
// when a sibling block is malformed. The report records both outcomes.
func NewRegistry(documents map[string]string) *Registry {
	r := &Registry{
		templates: make(map[string]*Template),
		report:    weave.LoadReport{Failed: make(map[string]error)},
	}

	docNames := make([]string, 0, len(documents))
	for name := range documents {
		docNames = append(docNames, name)
	}
	sort.Strings(docNames)

	for _, docName := range docNames {
		blocks, splitErrs := splitBlocks(documents[docName])
		for _, err := range splitErrs {
			key := docName
			if e, ok := err.(*weave.Error); ok && e.Template != "" {
				key = e.Template
			}
			r.report.Failed[key] = err
			zap.S().Warnw("template block rejected", "document", docName, "error", err)
		}
		for _, block := range blocks {
			tmpl, err := parseTemplate(block)
			if err != nil {
				r.report.Failed[block.name] = err
				zap.S().Warnw("template rejected", "document", docName, "template", block.name, "error", err)
				continue
			}
			if _, exists := r.templates[tmpl.Name]; exists {
				err := weave.NewMalformedTemplateError(tmpl.Name, "duplicate template name")
				r.report.Failed[tmpl.Name] = err
				zap.S().Warnw("template rejected", "document", docName, "template", tmpl.Name, "error", err)
				continue
			}
			r.templates[tmpl.Name] = tmpl
			r.report.Loaded = append(r.report.Loaded, tmpl.Name)
		}
	}
	sort.Strings(r.report.Loaded)

	zap.S().Infow("template registry loaded",
		"documents", len(documents),
		"templates", len(r.report.Loaded),
		"failed", len(r.report.Failed))
	return r
}

// Lookup returns the template for a logical name.
func (r *Registry) Lookup(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names lists loaded template names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.report.Loaded...)
}

// Report returns the load outcome for every template seen.
func (r *Registry) Report() *weave.LoadReport {
	return &r.report
}
