package weave

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error. The type decides who acts
// on the failure: validation faults belong to the caller of Compile,
// configuration faults to the operator, internal faults to us.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error codes for the compiler taxonomy.
const (
	ErrCodeMalformedTemplate = "MALFORMED_TEMPLATE"
	ErrCodeUnknownTemplate   = "UNKNOWN_TEMPLATE"
	ErrCodeMissingBinding    = "MISSING_BINDING"
	ErrCodeUnknownColumnSet  = "UNKNOWN_COLUMN_SET"
	ErrCodeSchemaMismatch    = "SCHEMA_MISMATCH"
	ErrCodeUnresolvedTag     = "UNRESOLVED_TAG"
	ErrCodeInvalidPredicate  = "INVALID_PREDICATE"
)

// Error is the structured error returned by every compiler surface.
type Error struct {
	Type     ErrorType      `json:"type"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Template string         `json:"template,omitempty"`
	Tag      string         `json:"tag,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Cause    error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Template != "" && e.Tag != "" {
		return fmt.Sprintf("[%s:%s] template %s tag %s: %s", e.Type, e.Code, e.Template, e.Tag, e.Message)
	}
	if e.Template != "" {
		return fmt.Sprintf("[%s:%s] template %s: %s", e.Type, e.Code, e.Template, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithTag attaches the offending tag name.
func (e *Error) WithTag(tag string) *Error {
	e.Tag = tag
	return e
}

// NewMalformedTemplateError reports a parse-time failure. It is fatal to
// loading that one template; other templates in the document stay usable.
func NewMalformedTemplateError(template, message string) *Error {
	return &Error{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeMalformedTemplate,
		Message:  message,
		Template: template,
	}
}

// NewUnknownTemplateError reports a compile request for a name the
// registry never loaded.
func NewUnknownTemplateError(template string) *Error {
	return &Error{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeUnknownTemplate,
		Message:  "template not found in registry",
		Template: template,
	}
}

// NewMissingParameterBindingError reports an unbound Parameter tag. The
// binding comes from the end caller, so this is a caller fault.
func NewMissingParameterBindingError(template, tag string) *Error {
	return &Error{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeMissingBinding,
		Message:  "no value bound for parameter tag",
		Template: template,
		Tag:      tag,
	}
}

// NewMissingControlBindingError reports an unbound Control tag or an
// unresolvable schema role. Those bindings come from the calling
// environment, so this signals a configuration fault, never a caller
// error.
func NewMissingControlBindingError(template, tag string) *Error {
	return &Error{
		Type:     ErrorTypeConfiguration,
		Code:     ErrCodeMissingBinding,
		Message:  "no value configured for control tag",
		Template: template,
		Tag:      tag,
	}
}

// NewSchemaBindingError reports a schema-role lookup with no configured
// physical schema, e.g. workspace context without a write schema.
func NewSchemaBindingError(role SchemaRole, execCtx ExecutionContext) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Code:    ErrCodeMissingBinding,
		Message: fmt.Sprintf("no physical schema configured for role %s in %s context", role, execCtx),
		Tag:     string(role),
	}
}

// NewUnknownColumnSetError reports a Column-Set alias missing from the
// column catalog, or present with an empty column list.
func NewUnknownColumnSetError(template, alias string) *Error {
	return &Error{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeUnknownColumnSet,
		Message:  "alias not present in column catalog",
		Template: template,
		Tag:      alias,
	}
}

// NewSchemaMismatchError reports base/write column-set drift for one
// logical table under workspace context.
func NewSchemaMismatchError(template, table string) *Error {
	return &Error{
		Type:     ErrorTypeConfiguration,
		Code:     ErrCodeSchemaMismatch,
		Message:  fmt.Sprintf("base and write schemas declare different column sets for table %s", table),
		Template: template,
	}
}

// NewInvalidPredicateError reports a structured predicate the caller
// submitted without any values. Predicate shapes are caller input, so
// this is a caller fault.
func NewInvalidPredicateError(template, table, column string) *Error {
	return &Error{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeInvalidPredicate,
		Message:  "predicate carries no values",
		Template: template,
		Tag:      table + "." + column,
	}
}

// NewUnresolvedTagError reports a tag that survived resolution and
// reached synthesis. This is an internal contract violation, surfaced
// loudly and never silently defaulted.
func NewUnresolvedTagError(template, tag string) *Error {
	return &Error{
		Type:     ErrorTypeInternal,
		Code:     ErrCodeUnresolvedTag,
		Message:  "tag reached synthesis unresolved",
		Template: template,
		Tag:      tag,
	}
}

func codeOf(err error) (string, ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Type, true
	}
	return "", "", false
}

// IsMalformedTemplateError checks for a parse-time template failure.
func IsMalformedTemplateError(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeMalformedTemplate
}

// IsMissingBindingError checks for an unbound tag of either origin.
func IsMissingBindingError(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeMissingBinding
}

// IsSchemaMismatchError checks for base/write column drift.
func IsSchemaMismatchError(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeSchemaMismatch
}

// IsUnresolvedTagError checks for the internal resolution invariant
// violation.
func IsUnresolvedTagError(err error) bool {
	code, _, ok := codeOf(err)
	return ok && code == ErrCodeUnresolvedTag
}

// IsCallerError reports whether the failure should be rejected back to
// the end caller (400-equivalent) rather than escalated operationally.
func IsCallerError(err error) bool {
	_, typ, ok := codeOf(err)
	return ok && typ == ErrorTypeValidation
}

// IsConfigurationError reports whether the failure is an operational
// configuration fault.
func IsConfigurationError(err error) bool {
	_, typ, ok := codeOf(err)
	return ok && typ == ErrorTypeConfiguration
}
