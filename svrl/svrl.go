// Package svrl holds the validation report model and its serialization to
// the Schematron Validation Report Language. The report is the single
// artifact of a validation run: an ordered sequence of events (active
// patterns, fired rules, findings) plus summary counts. Accumulation is
// append-only and does no I/O; one report belongs to one run.
package svrl

import "fmt"

// SVRL output namespace.
const Namespace = "http://purl.oclc.org/dsdl/svrl"

// Namespace declaration copied from the schema into the report.
type NamespaceDecl struct {
	Prefix string
	URI    string
}

// FindingKind classifies a finding.
type FindingKind int

const (
	// FailedAssert is an assert whose test evaluated to false.
	FailedAssert FindingKind = iota
	// SuccessfulReport is a report whose test evaluated to true.
	SuccessfulReport
	// EvalError is a check whose expression failed against this node.
	// The run continues; the failure is part of the report.
	EvalError
)

// String returns the SVRL element name for the kind.
func (k FindingKind) String() string {
	switch k {
	case SuccessfulReport:
		return "successful-report"
	case EvalError:
		return "eval-error"
	default:
		return "failed-assert"
	}
}

// DiagnosticRef is a rendered diagnostic attached to a finding.
type DiagnosticRef struct {
	ID   string
	Text string
}

// Finding is one fired check bound to one context node.
type Finding struct {
	Kind FindingKind

	CheckID     string
	Test        string
	Flag        string
	Role        string
	RuleID      string
	RuleContext string
	PatternID   string

	// Location is an XPath identifying the context node; DocumentOrder is
	// its position in document order.
	Location      string
	DocumentOrder int

	Text        string
	Diagnostics []DiagnosticRef
}

// ActivePattern records that a pattern started executing.
type ActivePattern struct {
	ID   string
	Name string
}

// FiredRule records that a rule claimed a context node.
type FiredRule struct {
	ID      string
	Context string
	Flag    string
	Role    string
}

// Event is one entry in the report's ordered event stream: an
// ActivePattern, a FiredRule, or a Finding.
type Event struct {
	Pattern *ActivePattern
	Rule    *FiredRule
	Finding *Finding
}

// Summary counts findings by kind.
type Summary struct {
	FailedAsserts     int
	SuccessfulReports int
	EvalErrors        int
}

// Report accumulates the outcome of one validation run.
type Report struct {
	Title         string
	Phase         string
	SchemaVersion string
	Namespaces    []NamespaceDecl

	events  []Event
	summary Summary
}

// AddActivePattern appends an active-pattern event.
func (r *Report) AddActivePattern(id, name string) {
	r.events = append(r.events, Event{Pattern: &ActivePattern{ID: id, Name: name}})
}

// AddFiredRule appends a fired-rule event.
func (r *Report) AddFiredRule(id, context, flag, role string) {
	r.events = append(r.events, Event{Rule: &FiredRule{ID: id, Context: context, Flag: flag, Role: role}})
}

// AddFinding appends a finding and updates the summary.
func (r *Report) AddFinding(f Finding) {
	switch f.Kind {
	case FailedAssert:
		r.summary.FailedAsserts++
	case SuccessfulReport:
		r.summary.SuccessfulReports++
	case EvalError:
		r.summary.EvalErrors++
	}
	r.events = append(r.events, Event{Finding: &f})
}

// Events returns the ordered event stream.
func (r *Report) Events() []Event {
	return r.events
}

// Findings returns the findings in report order.
func (r *Report) Findings() []Finding {
	var out []Finding
	for _, ev := range r.events {
		if ev.Finding != nil {
			out = append(out, *ev.Finding)
		}
	}
	return out
}

// Summary returns the finding counts.
func (r *Report) Summary() Summary {
	return r.summary
}

// Valid reports whether the run produced no failed asserts and no
// evaluation errors. An empty report is valid: no rule matching any node
// is a meaningful outcome, not an error.
func (r *Report) Valid() bool {
	return r.summary.FailedAsserts == 0 && r.summary.EvalErrors == 0
}

// String summarizes the report for logs and error messages.
func (r *Report) String() string {
	return fmt.Sprintf("svrl: %d failed assert(s), %d report(s), %d evaluation error(s)",
		r.summary.FailedAsserts, r.summary.SuccessfulReports, r.summary.EvalErrors)
}
