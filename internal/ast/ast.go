// Package ast holds the in-memory representation of a parsed Schematron
// schema document. The parser constructs it, the resolver rewrites it into
// its fully resolved form, and the runtime compiler consumes it. Nodes are
// plain data; document order of patterns, rules and checks is the slice order.
package ast

// Schema is the root of a parsed schema document.
type Schema struct {
	Title        string
	DefaultPhase string
	QueryBinding string
	Namespaces   []Namespace
	Lets         []Let
	Phases       []Phase
	Patterns     []*Pattern
	Diagnostics  []Diagnostic
	Keys         []Key

	// Resolved is set once the resolver has run to completion. A resolved
	// schema contains no includes, no abstract patterns and no extends
	// references.
	Resolved bool
}

// Namespace declares a prefix binding from an <ns> element.
type Namespace struct {
	Prefix string
	URI    string
}

// Let binds a named variable to an XPath expression or, for <let> elements
// without a value attribute, to literal XML content.
type Let struct {
	Name  string
	Value string
	// XML holds the serialized element content for content-valued lets.
	XML bool
}

// Phase names a subset of patterns activated together.
type Phase struct {
	ID     string
	Active []string
	Lets   []Let
}

// Key is a named lookup index definition from an <xsl:key>-style element.
type Key struct {
	ID    string
	Match string
	Use   string
}

// Diagnostic is a reusable message template referenced from checks by id.
type Diagnostic struct {
	ID      string
	Message Message
}

// Param is an abstract pattern parameter supplied by an is-a instantiation.
type Param struct {
	Name  string
	Value string
}

// Pattern groups rules. An abstract pattern is a template; a pattern with
// IsA set is an instantiation request the resolver turns into a concrete
// clone of the referenced abstract pattern.
type Pattern struct {
	ID       string
	Title    string
	Abstract bool
	IsA      string
	Params   []Param
	Lets     []Let
	Rules    []*Rule

	// IncludeHref marks an unresolved <include> in pattern position.
	IncludeHref string
}

// Extend references a rule whose lets and checks are inlined ahead of the
// extending rule's own. Either Rule names a declared rule by id or Href
// points at a document whose root is the rule to inline. The resolver loads
// href targets into External during include expansion.
type Extend struct {
	Rule     string
	Href     string
	External *Rule
}

// Rule carries a context expression and an ordered list of checks.
type Rule struct {
	ID       string
	Context  string
	Abstract bool
	Extends  []Extend
	Priority float64
	Flag     string
	Role     string
	FPI      string
	Icon     string
	See      string
	Subject  string
	Lets     []Let
	Checks   []Check

	// IncludeHref marks an unresolved <include> in rule position.
	IncludeHref string
}

// CheckKind distinguishes asserts from reports.
type CheckKind int

const (
	// CheckAssert fires when its test evaluates to false.
	CheckAssert CheckKind = iota
	// CheckReport fires when its test evaluates to true.
	CheckReport
)

// String returns the Schematron element name for the kind.
func (k CheckKind) String() string {
	if k == CheckReport {
		return "report"
	}
	return "assert"
}

// Check is a single assert or report.
type Check struct {
	Kind        CheckKind
	ID          string
	Test        string
	Flag        string
	Role        string
	FPI         string
	Icon        string
	See         string
	Subject     string
	Diagnostics []string
	Message     Message
}

// Message is a mixed-content template: literal text interleaved with
// <value-of> selections and <name> references.
type Message struct {
	Parts []MessagePart
}

// MessagePartKind identifies a message template part.
type MessagePartKind int

const (
	// PartText is literal text.
	PartText MessagePartKind = iota
	// PartValueOf is an embedded <value-of select="..."/>.
	PartValueOf
	// PartName is an embedded <name/> with an optional path attribute.
	PartName
)

// MessagePart is one segment of a message template. Text holds the literal
// content for PartText; Expr holds the select or path expression otherwise.
type MessagePart struct {
	Kind MessagePartKind
	Text string
	Expr string
}

// IsZero reports whether the message has no parts.
func (m Message) IsZero() bool {
	return len(m.Parts) == 0
}

// Text creates a single-part literal message. Mostly a test convenience.
func Text(s string) Message {
	return Message{Parts: []MessagePart{{Kind: PartText, Text: s}}}
}
