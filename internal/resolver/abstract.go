package resolver

import (
	"sort"
	"strings"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
)

// instantiateAbstractPatterns replaces every is-a pattern with a concrete
// clone of its abstract target, substituting parameter references in all
// expression strings. Abstract patterns themselves are dropped afterwards.
func instantiateAbstractPatterns(schema *ast.Schema) error {
	abstract := make(map[string]*ast.Pattern)
	for _, p := range schema.Patterns {
		if p.Abstract {
			abstract[p.ID] = p
		}
	}

	out := schema.Patterns[:0]
	for _, p := range schema.Patterns {
		if p.Abstract {
			continue
		}
		if p.IsA == "" {
			out = append(out, p)
			continue
		}
		target, ok := abstract[p.IsA]
		if !ok {
			return errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference,
				"abstract pattern %s is not declared", p.IsA).In(p.ID, "")}
		}
		instance := ast.ClonePattern(target)
		instance.ID = p.ID
		if p.Title != "" {
			instance.Title = p.Title
		}
		instance.Abstract = false
		instance.IsA = ""
		instance.Params = nil
		substituteParams(instance, p.Params)
		out = append(out, instance)
	}
	schema.Patterns = out
	return nil
}

// substituteParams rewrites $param references in every expression string of
// the pattern. Substitution is textual and keyed by parameter name, longest
// names first so $ctx2 is never clobbered by $ctx.
func substituteParams(p *ast.Pattern, params []ast.Param) {
	if len(params) == 0 {
		return
	}
	ordered := append([]ast.Param(nil), params...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Name) > len(ordered[j].Name)
	})
	sub := func(expr string) string {
		for _, param := range ordered {
			expr = strings.ReplaceAll(expr, "$"+param.Name, param.Value)
		}
		return expr
	}

	for i := range p.Lets {
		p.Lets[i].Value = sub(p.Lets[i].Value)
	}
	for _, r := range p.Rules {
		r.Context = sub(r.Context)
		r.Subject = sub(r.Subject)
		for i := range r.Lets {
			r.Lets[i].Value = sub(r.Lets[i].Value)
		}
		for ci := range r.Checks {
			c := &r.Checks[ci]
			c.Test = sub(c.Test)
			c.Subject = sub(c.Subject)
			for pi := range c.Message.Parts {
				if c.Message.Parts[pi].Kind != ast.PartText {
					c.Message.Parts[pi].Expr = sub(c.Message.Parts[pi].Expr)
				}
			}
		}
	}
}
