package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a schema loading or evaluation failure class.
type ErrorCode string

const (
	// ErrSchemaNotLoaded indicates validation was attempted without a loaded schema.
	ErrSchemaNotLoaded ErrorCode = "schematron-not-loaded"
	// ErrXMLParse indicates the instance document could not be parsed.
	ErrXMLParse ErrorCode = "xml-parse-error"

	// ErrMalformedMarkup indicates the schema document is not well-formed or
	// does not conform to the Schematron grammar.
	ErrMalformedMarkup ErrorCode = "parse-malformed-markup"
	// ErrMissingAttribute indicates a required attribute is absent.
	ErrMissingAttribute ErrorCode = "parse-missing-required-attribute"
	// ErrUnknownNamespace indicates the root element is in neither the ISO
	// nor the legacy Schematron namespace.
	ErrUnknownNamespace ErrorCode = "parse-unknown-namespace"
	// ErrQueryBinding indicates an unsupported queryBinding attribute value.
	ErrQueryBinding ErrorCode = "parse-unsupported-query-binding"
	// ErrForeignAttribute indicates a non-Schematron attribute on a
	// Schematron element while foreign attributes are disallowed.
	ErrForeignAttribute ErrorCode = "parse-foreign-attribute"

	// ErrDuplicateID indicates two declarations share an id.
	ErrDuplicateID ErrorCode = "resolve-duplicate-id"
	// ErrIncludeCycle indicates an include transitively includes itself.
	ErrIncludeCycle ErrorCode = "resolve-include-cycle"
	// ErrExtendsCycle indicates a rule extends chain loops.
	ErrExtendsCycle ErrorCode = "resolve-extends-cycle"
	// ErrUnresolvedReference indicates an include, extends, is-a, phase or
	// diagnostic target id that does not exist.
	ErrUnresolvedReference ErrorCode = "resolve-unresolved-reference"

	// ErrExpressionSyntax indicates an XPath expression failed to compile.
	ErrExpressionSyntax ErrorCode = "compile-expression-syntax"
	// ErrUnknownPhase indicates the selected phase is not declared.
	ErrUnknownPhase ErrorCode = "compile-unknown-phase"

	// ErrExpressionEval indicates an expression failed against a specific
	// node at validation time. Recorded in the report, never fatal.
	ErrExpressionEval ErrorCode = "eval-expression"
)

// Schema describes a fatal schema loading error with enough context to
// diagnose without re-running: the error class, the offending pattern/rule
// ids when known, and the expression involved.
//
//nolint:errname // public API name uses Schematron domain term.
type Schema struct {
	Code       string
	Message    string
	Pattern    string
	Rule       string
	Expression string
}

// SchemaList is an error that wraps one or more schema errors.
type SchemaList []Schema //nolint:errname // public API name, keep for compatibility.

// Error returns a compact summary of the schema errors.
func (s SchemaList) Error() string {
	switch len(s) {
	case 0:
		return "no schema errors"
	case 1:
		return s[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", s[0].Error(), len(s)-1)
	}
}

// Error formats the schema error for display, including code, message, and context.
func (s *Schema) Error() string {
	if s == nil {
		return "schema error <nil>"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", s.Code, s.Message))
	if s.Pattern != "" {
		b.WriteString(fmt.Sprintf(" in pattern %s", s.Pattern))
	}
	if s.Rule != "" {
		b.WriteString(fmt.Sprintf(" in rule %s", s.Rule))
	}
	if s.Expression != "" {
		b.WriteString(fmt.Sprintf(" (expression: %s)", s.Expression))
	}
	return b.String()
}

// NewSchema builds a Schema error with a code and message.
func NewSchema(code ErrorCode, msg string) Schema {
	return Schema{Code: string(code), Message: msg}
}

// NewSchemaf formats a message and builds a Schema error.
func NewSchemaf(code ErrorCode, format string, args ...any) Schema {
	return NewSchema(code, fmt.Sprintf(format, args...))
}

// In returns a copy of the error annotated with pattern and rule context.
func (s Schema) In(pattern, rule string) Schema {
	s.Pattern = pattern
	s.Rule = rule
	return s
}

// WithExpression returns a copy of the error annotated with the offending expression.
func (s Schema) WithExpression(expr string) Schema {
	s.Expression = expr
	return s
}

// AsSchemaErrors extracts schema errors from an error returned by loading helpers.
func AsSchemaErrors(err error) ([]Schema, bool) {
	list, ok := asSchemaList(err)
	if !ok {
		return nil, false
	}
	return []Schema(list), true
}

func asSchemaList(err error) (SchemaList, bool) {
	if err == nil {
		return nil, false
	}
	var list SchemaList
	if errors.As(err, &list) {
		return list, true
	}

	var listPtr *SchemaList
	if errors.As(err, &listPtr) && listPtr != nil {
		return *listPtr, true
	}

	return nil, false
}
