// Package runtime holds the compiled form of a resolved schema: every
// XPath expression compiled eagerly against its lexical scope, patterns
// grouped per phase, and key definitions compiled for index building.
// A runtime Schema is immutable and safe to share across concurrent
// validation runs.
package runtime

import (
	"github.com/jacoelho/schematron/internal/ast"
	"github.com/jacoelho/schematron/internal/query"
)

// Schema is the executable schema.
type Schema struct {
	Title        string
	QueryBinding string
	DefaultPhase string
	Namespaces   []ast.Namespace

	// Keys backs the key() function, shared by all phases.
	Keys map[string]*query.KeyProgram

	// All executes every pattern in declaration order.
	All *PhaseSet
	// Phases maps phase id to its pattern subset, compiled with the
	// phase's own variable scope.
	Phases map[string]*PhaseSet
}

// PhaseSet is the ordered list of patterns active in one phase.
type PhaseSet struct {
	ID       string
	Patterns []*Pattern
}

// Pattern is a compiled pattern.
type Pattern struct {
	ID    string
	Title string
	Rules []*Rule
}

// Rule is a compiled rule. Lets are already folded into the compiled
// expressions, so execution needs only the context and the checks.
type Rule struct {
	ID      string
	Source  string
	Flag    string
	Role    string
	Context *query.Expr
	Checks  []*Check
}

// Check is a compiled assert or report.
type Check struct {
	Kind        ast.CheckKind
	ID          string
	Source      string
	Flag        string
	Role        string
	Test        *query.Expr
	Message     *Message
	Diagnostics []*Diagnostic
}

// Diagnostic is a diagnostic template compiled in the scope of the check
// referencing it, so diagnostic messages can use rule variables.
type Diagnostic struct {
	ID      string
	Message *Message
}

// Message is a compiled message template.
type Message struct {
	Parts []MessagePart
}

// MessagePart renders either literal text, a value-of selection, or the
// context node's name.
type MessagePart struct {
	Text string
	Expr *query.Expr
	Name bool
}
