// Package parser turns Schematron schema documents into the ast model.
// It detects the schema dialect from the root namespace and preserves the
// document order of patterns, rules and checks. Includes, abstract patterns
// and extends references are carried through unresolved; the resolver owns
// those.
package parser

import (
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
)

// Recognized Schematron vocabulary namespaces.
const (
	NamespaceISO    = "http://purl.oclc.org/dsdl/schematron"
	NamespaceLegacy = "http://www.ascc.net/xml/schematron"
)

// NamespaceXSLT is accepted for xsl:key declarations embedded in a schema.
const NamespaceXSLT = "http://www.w3.org/1999/XSL/Transform"

// Config controls parsing behavior.
type Config struct {
	// AllowForeignAttributes accepts non-Schematron attributes on
	// Schematron elements instead of rejecting them.
	AllowForeignAttributes bool
}

type parser struct {
	cfg Config
	// ns is the detected Schematron vocabulary namespace.
	ns string
}

// Parse reads a schema document and builds the ast model.
func Parse(r io.Reader, cfg Config) (*ast.Schema, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup, "parse schema: %v", err)}
	}
	root := firstElement(doc)
	if root == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrMalformedMarkup, "schema document has no root element")}
	}
	return ParseNode(root, cfg)
}

// ParseNode builds the ast model from an already parsed root element.
func ParseNode(root *xmlquery.Node, cfg Config) (*ast.Schema, error) {
	p := &parser{cfg: cfg}
	switch root.NamespaceURI {
	case NamespaceISO, NamespaceLegacy:
		p.ns = root.NamespaceURI
	default:
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrUnknownNamespace,
			"root element %s is in namespace %q, not a Schematron namespace", root.Data, root.NamespaceURI)}
	}
	if root.Data != "schema" {
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
			"root element is %s, want schema", root.Data)}
	}
	return p.parseSchema(root)
}

// Fragment is an included schema fragment: exactly one of its fields is set.
type Fragment struct {
	Pattern     *ast.Pattern
	Rule        *ast.Rule
	Phase       *ast.Phase
	Diagnostics []ast.Diagnostic
}

// ParseFragment parses an included document whose root is a single
// Schematron element (pattern, rule, phase or diagnostics).
func ParseFragment(r io.Reader, cfg Config) (*Fragment, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup, "parse include: %v", err)}
	}
	root := firstElement(doc)
	if root == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrMalformedMarkup, "include document has no root element")}
	}
	p := &parser{cfg: cfg}
	switch root.NamespaceURI {
	case NamespaceISO, NamespaceLegacy:
		p.ns = root.NamespaceURI
	default:
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrUnknownNamespace,
			"included root %s is in namespace %q, not a Schematron namespace", root.Data, root.NamespaceURI)}
	}
	switch root.Data {
	case "pattern":
		pat, err := p.parsePattern(root)
		if err != nil {
			return nil, err
		}
		return &Fragment{Pattern: pat}, nil
	case "rule":
		rule, err := p.parseRule(root)
		if err != nil {
			return nil, err
		}
		return &Fragment{Rule: rule}, nil
	case "phase":
		phase, err := p.parsePhase(root)
		if err != nil {
			return nil, err
		}
		return &Fragment{Phase: &phase}, nil
	case "diagnostics":
		diags, err := p.parseDiagnostics(root)
		if err != nil {
			return nil, err
		}
		return &Fragment{Diagnostics: diags}, nil
	default:
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
			"included root %s cannot be spliced into a schema", root.Data)}
	}
}

func (p *parser) parseSchema(el *xmlquery.Node) (*ast.Schema, error) {
	if err := p.checkAttributes(el, "id", "title", "defaultPhase", "queryBinding", "schemaVersion", "icon", "see", "fpi"); err != nil {
		return nil, err
	}

	schema := &ast.Schema{
		DefaultPhase: attr(el, "defaultPhase"),
		QueryBinding: attr(el, "queryBinding"),
	}
	if err := checkQueryBinding(schema.QueryBinding); err != nil {
		return nil, err
	}

	seenPrefixes := make(map[string]string)
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if c.NamespaceURI != p.ns {
			if c.NamespaceURI == NamespaceXSLT && c.Data == "key" {
				key, err := p.parseKey(c)
				if err != nil {
					return nil, err
				}
				schema.Keys = append(schema.Keys, key)
			}
			continue // other foreign elements are permitted anywhere
		}
		switch c.Data {
		case "title":
			schema.Title = strings.TrimSpace(collapseSpace(c.InnerText()))
		case "ns":
			if err := p.checkAttributes(c, "prefix", "uri"); err != nil {
				return nil, err
			}
			prefix, uri := attr(c, "prefix"), attr(c, "uri")
			if prefix == "" || uri == "" {
				return nil, missingAttr(c, "prefix and uri")
			}
			if prev, ok := seenPrefixes[prefix]; ok && prev != uri {
				return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrDuplicateID,
					"namespace prefix %s declared twice", prefix)}
			}
			seenPrefixes[prefix] = uri
			schema.Namespaces = append(schema.Namespaces, ast.Namespace{Prefix: prefix, URI: uri})
		case "let":
			let, err := p.parseLet(c)
			if err != nil {
				return nil, err
			}
			schema.Lets = append(schema.Lets, let)
		case "phase":
			phase, err := p.parsePhase(c)
			if err != nil {
				return nil, err
			}
			schema.Phases = append(schema.Phases, phase)
		case "pattern":
			pat, err := p.parsePattern(c)
			if err != nil {
				return nil, err
			}
			schema.Patterns = append(schema.Patterns, pat)
		case "include":
			if err := p.checkAttributes(c, "href"); err != nil {
				return nil, err
			}
			href := attr(c, "href")
			if href == "" {
				return nil, missingAttr(c, "href")
			}
			schema.Patterns = append(schema.Patterns, &ast.Pattern{IncludeHref: href})
		case "key":
			key, err := p.parseKey(c)
			if err != nil {
				return nil, err
			}
			schema.Keys = append(schema.Keys, key)
		case "diagnostics":
			diags, err := p.parseDiagnostics(c)
			if err != nil {
				return nil, err
			}
			schema.Diagnostics = append(schema.Diagnostics, diags...)
		case "p":
			// documentation only
		default:
			return nil, unexpectedElement(c, "schema")
		}
	}
	return schema, nil
}

func (p *parser) parsePhase(el *xmlquery.Node) (ast.Phase, error) {
	if err := p.checkAttributes(el, "id", "icon", "see", "fpi"); err != nil {
		return ast.Phase{}, err
	}
	id := attr(el, "id")
	if id == "" {
		return ast.Phase{}, missingAttr(el, "id")
	}
	phase := ast.Phase{ID: id}
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.NamespaceURI != p.ns {
			continue
		}
		switch c.Data {
		case "active":
			if err := p.checkAttributes(c, "pattern"); err != nil {
				return ast.Phase{}, err
			}
			pat := attr(c, "pattern")
			if pat == "" {
				return ast.Phase{}, missingAttr(c, "pattern")
			}
			phase.Active = append(phase.Active, pat)
		case "let":
			let, err := p.parseLet(c)
			if err != nil {
				return ast.Phase{}, err
			}
			phase.Lets = append(phase.Lets, let)
		case "p":
		default:
			return ast.Phase{}, unexpectedElement(c, "phase")
		}
	}
	return phase, nil
}

func (p *parser) parsePattern(el *xmlquery.Node) (*ast.Pattern, error) {
	if err := p.checkAttributes(el, "id", "abstract", "is-a", "title", "name", "icon", "see", "fpi", "documents"); err != nil {
		return nil, err
	}
	pat := &ast.Pattern{
		ID:       attr(el, "id"),
		Title:    attr(el, "title"),
		Abstract: attr(el, "abstract") == "true",
		IsA:      attr(el, "is-a"),
	}
	// Schematron 1.5 used name where ISO uses title.
	if pat.Title == "" {
		pat.Title = attr(el, "name")
	}
	if pat.Abstract && pat.ID == "" {
		return nil, missingAttr(el, "id")
	}
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.NamespaceURI != p.ns {
			continue
		}
		switch c.Data {
		case "title":
			pat.Title = strings.TrimSpace(collapseSpace(c.InnerText()))
		case "param":
			if err := p.checkAttributes(c, "name", "value"); err != nil {
				return nil, err
			}
			name, value := attr(c, "name"), attr(c, "value")
			if name == "" || value == "" {
				return nil, missingAttr(c, "name and value")
			}
			pat.Params = append(pat.Params, ast.Param{Name: name, Value: value})
		case "let":
			let, err := p.parseLet(c)
			if err != nil {
				return nil, err
			}
			pat.Lets = append(pat.Lets, let)
		case "rule":
			rule, err := p.parseRule(c)
			if err != nil {
				return nil, err
			}
			pat.Rules = append(pat.Rules, rule)
		case "include":
			if err := p.checkAttributes(c, "href"); err != nil {
				return nil, err
			}
			href := attr(c, "href")
			if href == "" {
				return nil, missingAttr(c, "href")
			}
			pat.Rules = append(pat.Rules, &ast.Rule{IncludeHref: href})
		case "p":
		default:
			return nil, unexpectedElement(c, "pattern")
		}
	}
	if pat.IsA != "" && len(pat.Rules) > 0 {
		return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
			"pattern %s has both is-a and rules", pat.ID)}
	}
	return pat, nil
}

func (p *parser) parseRule(el *xmlquery.Node) (*ast.Rule, error) {
	if err := p.checkAttributes(el, "id", "context", "abstract", "priority", "flag", "role", "fpi", "icon", "see", "subject"); err != nil {
		return nil, err
	}
	rule := &ast.Rule{
		ID:       attr(el, "id"),
		Context:  attr(el, "context"),
		Abstract: attr(el, "abstract") == "true",
		Flag:     attr(el, "flag"),
		Role:     attr(el, "role"),
		FPI:      attr(el, "fpi"),
		Icon:     attr(el, "icon"),
		See:      attr(el, "see"),
		Subject:  attr(el, "subject"),
	}
	if s := attr(el, "priority"); s != "" {
		prio, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
				"rule priority %q is not numeric", s)}
		}
		rule.Priority = prio
	}
	if rule.Abstract {
		if rule.ID == "" {
			return nil, missingAttr(el, "id")
		}
		if rule.Context != "" {
			return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
				"abstract rule %s must not have a context", rule.ID)}
		}
	} else if rule.Context == "" {
		return nil, missingAttr(el, "context")
	}

	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.NamespaceURI != p.ns {
			continue
		}
		switch c.Data {
		case "extends":
			if err := p.checkAttributes(c, "rule", "href"); err != nil {
				return nil, err
			}
			target, href := attr(c, "rule"), attr(c, "href")
			switch {
			case target != "" && href != "":
				return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
					"extends takes either rule or href, not both")}
			case target == "" && href == "":
				return nil, missingAttr(c, "rule or href")
			}
			rule.Extends = append(rule.Extends, ast.Extend{Rule: target, Href: href})
		case "let":
			let, err := p.parseLet(c)
			if err != nil {
				return nil, err
			}
			rule.Lets = append(rule.Lets, let)
		case "assert":
			check, err := p.parseCheck(c, ast.CheckAssert)
			if err != nil {
				return nil, err
			}
			rule.Checks = append(rule.Checks, check)
		case "report":
			check, err := p.parseCheck(c, ast.CheckReport)
			if err != nil {
				return nil, err
			}
			rule.Checks = append(rule.Checks, check)
		case "p":
		default:
			return nil, unexpectedElement(c, "rule")
		}
	}
	return rule, nil
}

func (p *parser) parseCheck(el *xmlquery.Node, kind ast.CheckKind) (ast.Check, error) {
	if err := p.checkAttributes(el, "id", "test", "flag", "role", "fpi", "icon", "see", "subject", "diagnostics", "properties"); err != nil {
		return ast.Check{}, err
	}
	test := attr(el, "test")
	if test == "" {
		return ast.Check{}, missingAttr(el, "test")
	}
	check := ast.Check{
		Kind:    kind,
		ID:      attr(el, "id"),
		Test:    test,
		Flag:    attr(el, "flag"),
		Role:    attr(el, "role"),
		FPI:     attr(el, "fpi"),
		Icon:    attr(el, "icon"),
		See:     attr(el, "see"),
		Subject: attr(el, "subject"),
	}
	if d := attr(el, "diagnostics"); d != "" {
		check.Diagnostics = strings.Fields(d)
	}
	msg, err := p.parseMessage(el)
	if err != nil {
		return ast.Check{}, err
	}
	check.Message = msg
	return check, nil
}

func (p *parser) parseKey(el *xmlquery.Node) (ast.Key, error) {
	if err := p.checkAttributes(el, "id", "name", "match", "context", "use", "path"); err != nil {
		return ast.Key{}, err
	}
	id := attr(el, "id")
	if id == "" {
		id = attr(el, "name")
	}
	if id == "" {
		return ast.Key{}, missingAttr(el, "id")
	}
	match := attr(el, "match")
	if match == "" {
		match = attr(el, "context")
	}
	use := attr(el, "use")
	if use == "" {
		use = attr(el, "path")
	}
	if match == "" || use == "" {
		return ast.Key{}, missingAttr(el, "match and use")
	}
	return ast.Key{ID: id, Match: match, Use: use}, nil
}

func (p *parser) parseDiagnostics(el *xmlquery.Node) ([]ast.Diagnostic, error) {
	var diags []ast.Diagnostic
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.NamespaceURI != p.ns {
			continue
		}
		if c.Data != "diagnostic" {
			return nil, unexpectedElement(c, "diagnostics")
		}
		if err := p.checkAttributes(c, "id"); err != nil {
			return nil, err
		}
		id := attr(c, "id")
		if id == "" {
			return nil, missingAttr(c, "id")
		}
		msg, err := p.parseMessage(c)
		if err != nil {
			return nil, err
		}
		diags = append(diags, ast.Diagnostic{ID: id, Message: msg})
	}
	return diags, nil
}

func (p *parser) parseLet(el *xmlquery.Node) (ast.Let, error) {
	if err := p.checkAttributes(el, "name", "value"); err != nil {
		return ast.Let{}, err
	}
	name := attr(el, "name")
	if name == "" {
		return ast.Let{}, missingAttr(el, "name")
	}
	if value, ok := lookupAttr(el, "value"); ok {
		return ast.Let{Name: name, Value: value}, nil
	}
	// Content-valued let: keep the serialized element content.
	var b strings.Builder
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(c.OutputXML(true))
	}
	return ast.Let{Name: name, Value: b.String(), XML: true}, nil
}

func (p *parser) checkAttributes(el *xmlquery.Node, allowed ...string) error {
	if p.cfg.AllowForeignAttributes {
		return nil
	}
	for _, a := range el.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || a.Name.Space == "xml" {
			continue
		}
		if a.NamespaceURI != "" && a.NamespaceURI != p.ns {
			return errors.SchemaList{errors.NewSchemaf(errors.ErrForeignAttribute,
				"foreign attribute %s on %s", a.Name.Local, el.Data)}
		}
		found := false
		for _, name := range allowed {
			if a.Name.Local == name {
				found = true
				break
			}
		}
		if !found {
			return errors.SchemaList{errors.NewSchemaf(errors.ErrForeignAttribute,
				"unexpected attribute %s on %s", a.Name.Local, el.Data)}
		}
	}
	return nil
}

func checkQueryBinding(binding string) error {
	switch strings.ToLower(binding) {
	case "", "xslt", "xslt2", "xpath", "xpath2":
		return nil
	default:
		return errors.SchemaList{errors.NewSchemaf(errors.ErrQueryBinding,
			"unsupported query binding %q", binding)}
	}
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func attr(n *xmlquery.Node, local string) string {
	v, _ := lookupAttr(n, local)
	return v
}

func lookupAttr(n *xmlquery.Node, local string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

func missingAttr(el *xmlquery.Node, name string) error {
	return errors.SchemaList{errors.NewSchemaf(errors.ErrMissingAttribute,
		"%s is missing required attribute %s", el.Data, name)}
}

func unexpectedElement(el *xmlquery.Node, parent string) error {
	return errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
		"unexpected element %s in %s", el.Data, parent)}
}
