package resolver

import (
	"path"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
	"github.com/jacoelho/schematron/internal/parser"
)

// includeExpander splices included fragments into the schema, recursively,
// tracking in-progress hrefs for cycle detection.
type includeExpander struct {
	cfg    Config
	active map[string]bool
}

func (x *includeExpander) expandSchema(schema *ast.Schema, base string) error {
	out := schema.Patterns[:0]
	for _, p := range schema.Patterns {
		if p.IncludeHref == "" {
			if err := x.expandPattern(p, base); err != nil {
				return err
			}
			out = append(out, p)
			continue
		}
		frag, location, err := x.load(p.IncludeHref, base)
		if err != nil {
			return err
		}
		switch {
		case frag.Pattern != nil:
			if err := x.expandPattern(frag.Pattern, path.Dir(location)); err != nil {
				return err
			}
			out = append(out, frag.Pattern)
		case frag.Phase != nil:
			schema.Phases = append(schema.Phases, *frag.Phase)
		case frag.Diagnostics != nil:
			schema.Diagnostics = append(schema.Diagnostics, frag.Diagnostics...)
		case frag.Rule != nil:
			return includeErrf("include %s yields a rule outside any pattern", p.IncludeHref)
		}
		x.done(location)
	}
	schema.Patterns = out
	return nil
}

func (x *includeExpander) expandPattern(p *ast.Pattern, base string) error {
	out := p.Rules[:0]
	for _, r := range p.Rules {
		if r.IncludeHref == "" {
			if err := x.expandRuleExtends(r, base); err != nil {
				return err
			}
			out = append(out, r)
			continue
		}
		frag, location, err := x.load(r.IncludeHref, base)
		if err != nil {
			return err
		}
		if frag.Rule == nil {
			return includeErrf("include %s must yield a rule inside pattern %s", r.IncludeHref, p.ID)
		}
		if err := x.expandRuleExtends(frag.Rule, path.Dir(location)); err != nil {
			return err
		}
		out = append(out, frag.Rule)
		x.done(location)
	}
	p.Rules = out
	return nil
}

// expandRuleExtends loads every extends href on the rule. The target
// document's root must be a rule; it is kept on the extend entry and
// inlined later with the id-based targets. Nested hrefs resolve against
// the target's own directory.
func (x *includeExpander) expandRuleExtends(r *ast.Rule, base string) error {
	for i := range r.Extends {
		ext := &r.Extends[i]
		if ext.Href == "" {
			continue
		}
		frag, location, err := x.load(ext.Href, base)
		if err != nil {
			return err
		}
		if frag.Rule == nil {
			return includeErrf("extends %s must yield a rule", ext.Href)
		}
		if err := x.expandRuleExtends(frag.Rule, path.Dir(location)); err != nil {
			return err
		}
		ext.External = frag.Rule
		x.done(location)
	}
	return nil
}

// load parses an included fragment. The href is resolved against the base
// directory of the including document; the returned location is the
// canonical path for nested resolution.
func (x *includeExpander) load(href, base string) (*parser.Fragment, string, error) {
	if x.cfg.FS == nil {
		return nil, "", includeErrf("schema has includes but no filesystem was provided")
	}
	location := path.Clean(path.Join(base, href))
	if x.active[location] {
		return nil, "", errors.SchemaList{errors.NewSchemaf(errors.ErrIncludeCycle,
			"include cycle through %s", location)}
	}
	x.active[location] = true

	f, err := x.cfg.FS.Open(location)
	if err != nil {
		return nil, "", errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference,
			"include %s: %v", href, err)}
	}
	defer f.Close()

	parsed, err := parser.ParseFragment(f, x.cfg.Parser)
	if err != nil {
		return nil, "", err
	}
	return parsed, location, nil
}

func (x *includeExpander) done(location string) {
	delete(x.active, location)
}

func includeErrf(format string, args ...any) error {
	return errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference, format, args...)}
}
