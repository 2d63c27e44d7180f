package factory

import (
	"fmt"

	"github.com/lychee-technology/weave"
	"github.com/lychee-technology/weave/internal"
)

// NewCompilerWithConfig creates a Compiler from template documents and a
// column catalog. This is the primary way for external projects to build
// a compiler instance.
//
// The documents map is keyed by a caller-chosen source name (usually a
// file path) used in the load report; values are raw template text.
// Malformed templates never fail construction: they are recorded in the
// returned LoadReport and the remaining templates stay compilable.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/weave"
//	    "github.com/lychee-technology/weave/factory"
//	)
//
//	config := weave.DefaultConfig()
//	config.Bindings.Runtime = "PROD"
//	compiler, report, err := factory.NewCompilerWithConfig(config, docs, catalog)
//	if err != nil {
//	    // handle error
//	}
//	if !report.Ok() {
//	    // inspect report.Failed
//	}
func NewCompilerWithConfig(config *weave.Config, documents map[string]string, catalog weave.ColumnCatalog) (weave.Compiler, *weave.LoadReport, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("config must not be nil")
	}
	if catalog == nil {
		return nil, nil, fmt.Errorf("column catalog must not be nil")
	}

	registry := internal.NewRegistry(documents)

	compiler, err := internal.NewCompiler(config, registry, catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build compiler: %w", err)
	}
	return compiler, registry.Report(), nil
}
