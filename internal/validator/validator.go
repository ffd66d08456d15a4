// Package validator executes a compiled schema against instance documents
// with Schematron firing semantics: within one pattern each node belongs to
// the first rule, in declaration order, whose context matches it; later
// rules never see a claimed node. Findings come out in document order of
// their context node, then in check declaration order.
package validator

import (
	"context"
	"io"
	"sort"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
	"github.com/jacoelho/schematron/internal/dom"
	"github.com/jacoelho/schematron/internal/query"
	"github.com/jacoelho/schematron/internal/runtime"
	"github.com/jacoelho/schematron/svrl"
)

// Phase selection literals.
const (
	PhaseAll     = "#ALL"
	PhaseDefault = "#DEFAULT"
)

// Session executes validation runs against one compiled schema. The schema
// is shared and read-only; the session only holds reusable scratch state,
// so sessions are cheap but not safe for concurrent use.
type Session struct {
	rt      *runtime.Schema
	claimed map[dom.NodeKey]bool
}

// NewSession creates a session bound to a compiled schema.
func NewSession(rt *runtime.Schema) *Session {
	return &Session{
		rt:      rt,
		claimed: make(map[dom.NodeKey]bool),
	}
}

// Reset clears scratch state so the session can be pooled.
func (s *Session) Reset() {
	clear(s.claimed)
}

// Validate parses and validates one document.
func (s *Session) Validate(ctx context.Context, r io.Reader, phase string) (*svrl.Report, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrXMLParse, "%v", err)}
	}
	return s.ValidateDocument(ctx, doc, phase)
}

// ValidateDocument validates an already parsed document. A run that hits no
// fatal error always yields a report, even an empty one.
func (s *Session) ValidateDocument(ctx context.Context, doc *dom.Document, phase string) (*svrl.Report, error) {
	set, used, err := s.phaseSet(phase)
	if err != nil {
		return nil, err
	}

	report := &svrl.Report{
		Title: s.rt.Title,
		Phase: used,
	}
	for _, ns := range s.rt.Namespaces {
		report.Namespaces = append(report.Namespaces, svrl.NamespaceDecl{Prefix: ns.Prefix, URI: ns.URI})
	}

	evalCtx := &query.EvalContext{Doc: doc, Node: doc.Root(), Keys: s.rt.Keys}
	for _, pattern := range set.Patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.AddActivePattern(pattern.ID, pattern.Title)
		if err := s.runPattern(ctx, evalCtx, pattern, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// phaseSet picks the active patterns: an explicit phase id wins, #DEFAULT
// or an empty phase falls back to the schema's default phase, and #ALL (or
// no default) runs every pattern in declaration order.
func (s *Session) phaseSet(phase string) (*runtime.PhaseSet, string, error) {
	switch phase {
	case PhaseAll:
		return s.rt.All, PhaseAll, nil
	case "", PhaseDefault:
		if s.rt.DefaultPhase == "" || s.rt.DefaultPhase == PhaseAll {
			return s.rt.All, PhaseAll, nil
		}
		phase = s.rt.DefaultPhase
	}
	set, ok := s.rt.Phases[phase]
	if !ok {
		return nil, "", errors.SchemaList{errors.NewSchemaf(errors.ErrUnknownPhase, "phase %s is not declared", phase)}
	}
	return set, phase, nil
}

// claim binds one context node to the rule that claimed it.
type claim struct {
	node *xmlquery.Node
	rule *runtime.Rule
}

func (s *Session) runPattern(ctx context.Context, evalCtx *query.EvalContext, pattern *runtime.Pattern, report *svrl.Report) error {
	clear(s.claimed)

	// First pass: claim nodes in rule declaration order. Each rule's
	// matches are added to the claimed set whether or not an earlier rule
	// already owns them; only unclaimed nodes produce work.
	var claims []claim
	for _, rule := range pattern.Rules {
		// cancellation is checked at rule boundaries only
		if err := ctx.Err(); err != nil {
			return err
		}
		nodes, err := rule.Context.SelectNodes(evalCtx)
		if err != nil {
			report.AddFinding(svrl.Finding{
				Kind:        svrl.EvalError,
				RuleID:      rule.ID,
				RuleContext: rule.Source,
				PatternID:   pattern.ID,
				Test:        rule.Source,
				Text:        err.Error(),
			})
			continue
		}
		for _, node := range nodes {
			key := dom.KeyOf(node)
			if s.claimed[key] {
				continue
			}
			s.claimed[key] = true
			claims = append(claims, claim{node: node, rule: rule})
		}
	}

	// Second pass: evaluate checks per claimed node in document order, so
	// findings are ordered by context node regardless of which rule won.
	sort.SliceStable(claims, func(i, j int) bool {
		return evalCtx.Doc.Order(claims[i].node) < evalCtx.Doc.Order(claims[j].node)
	})
	for _, cl := range claims {
		report.AddFiredRule(cl.rule.ID, cl.rule.Source, cl.rule.Flag, cl.rule.Role)
		s.runChecks(evalCtx.At(cl.node), pattern, cl, report)
	}
	return nil
}

func (s *Session) runChecks(nodeCtx *query.EvalContext, pattern *runtime.Pattern, cl claim, report *svrl.Report) {
	for _, check := range cl.rule.Checks {
		v, err := check.Test.Eval(nodeCtx)
		if err != nil {
			report.AddFinding(s.evalErrorFinding(nodeCtx, pattern, cl, check, err))
			continue
		}
		fired := v.AsBool()
		if check.Kind == ast.CheckAssert {
			fired = !fired
		}
		if !fired {
			continue
		}

		text, err := renderMessage(check.Message, nodeCtx)
		if err != nil {
			report.AddFinding(s.evalErrorFinding(nodeCtx, pattern, cl, check, err))
			continue
		}
		finding := svrl.Finding{
			Kind:          findingKind(check.Kind),
			CheckID:       check.ID,
			Test:          check.Source,
			Flag:          fallback(check.Flag, cl.rule.Flag),
			Role:          fallback(check.Role, cl.rule.Role),
			RuleID:        cl.rule.ID,
			RuleContext:   cl.rule.Source,
			PatternID:     pattern.ID,
			Location:      dom.Path(cl.node),
			DocumentOrder: nodeCtx.Doc.Order(cl.node),
			Text:          text,
		}
		for _, diag := range check.Diagnostics {
			dtext, derr := renderMessage(diag.Message, nodeCtx)
			if derr != nil {
				dtext = derr.Error()
			}
			finding.Diagnostics = append(finding.Diagnostics, svrl.DiagnosticRef{ID: diag.ID, Text: dtext})
		}
		report.AddFinding(finding)
	}
}

func (s *Session) evalErrorFinding(nodeCtx *query.EvalContext, pattern *runtime.Pattern, cl claim, check *runtime.Check, err error) svrl.Finding {
	return svrl.Finding{
		Kind:          svrl.EvalError,
		CheckID:       check.ID,
		Test:          check.Source,
		RuleID:        cl.rule.ID,
		RuleContext:   cl.rule.Source,
		PatternID:     pattern.ID,
		Location:      dom.Path(cl.node),
		DocumentOrder: nodeCtx.Doc.Order(cl.node),
		Text:          err.Error(),
	}
}

func findingKind(kind ast.CheckKind) svrl.FindingKind {
	if kind == ast.CheckReport {
		return svrl.SuccessfulReport
	}
	return svrl.FailedAssert
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
