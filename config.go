package weave

// SchemaBindings is the schema binding table: it maps logical schema
// roles to physical schema names per execution context. Populated once
// at startup and read-only afterwards.
type SchemaBindings struct {
	// Runtime is the single schema every role resolves to under runtime
	// context. Empty means unqualified table references.
	Runtime string `json:"runtime"`
	// Base is the read-only published schema under workspace context.
	Base string `json:"base"`
	// Write is the mutable overlay schema holding draft rows.
	Write string `json:"write"`
	// Read serves read-through references that bypass the overlay.
	// Defaults to Base when empty.
	Read string `json:"read,omitempty"`
}

// For resolves a role for an execution context. A workspace lookup with
// no configured schema is a configuration fault, not a per-request
// condition.
func (b SchemaBindings) For(role SchemaRole, execCtx ExecutionContext) (string, error) {
	if execCtx == ExecutionRuntime {
		return b.Runtime, nil
	}
	switch role {
	case SchemaRoleBase:
		if b.Base == "" {
			return "", NewSchemaBindingError(role, execCtx)
		}
		return b.Base, nil
	case SchemaRoleWrite:
		if b.Write == "" {
			return "", NewSchemaBindingError(role, execCtx)
		}
		return b.Write, nil
	case SchemaRoleRead:
		if b.Read != "" {
			return b.Read, nil
		}
		if b.Base == "" {
			return "", NewSchemaBindingError(role, execCtx)
		}
		return b.Base, nil
	default:
		return "", NewSchemaBindingError(role, execCtx)
	}
}

// CacheConfig sizes the optional compiled-statement cache. The cache
// only engages for fully deferred requests, so keys never cover literal
// parameter values.
type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	MaxEntries int  `json:"maxEntries"`
}

// Config consolidates compiler settings.
type Config struct {
	Bindings SchemaBindings `json:"bindings"`
	Cache    CacheConfig    `json:"cache"`
}

// DefaultConfig returns the settings used when the caller has no
// opinion: caching on, no schemas bound.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 256,
		},
	}
}
