package resolver

import (
	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
)

// inlineExtends flattens every extends chain into the extending rule:
// the extended rule's lets and checks are inlined ahead of the extending
// rule's own, parents first, depth first. Abstract rules are dropped once
// every reference to them is resolved.
func inlineExtends(schema *ast.Schema) error {
	// Extends targets resolve schema wide. Rule ids are unique after the
	// duplicate check, so a single map covers every pattern.
	byID := make(map[string]*ast.Rule)
	for _, p := range schema.Patterns {
		for _, r := range p.Rules {
			if r.ID != "" {
				byID[r.ID] = r
			}
		}
	}

	for _, p := range schema.Patterns {
		for _, r := range p.Rules {
			if r.Abstract {
				continue
			}
			lets, checks, err := flatten(r, byID, nil)
			if err != nil {
				return annotate(err, p.ID, r.ID)
			}
			r.Lets = lets
			r.Checks = checks
			r.Extends = nil
		}
	}

	// Abstract rules are dropped only after every pattern is flattened so
	// that targets in earlier patterns stay visible to later ones.
	for _, p := range schema.Patterns {
		out := p.Rules[:0]
		for _, r := range p.Rules {
			if !r.Abstract {
				out = append(out, r)
			}
		}
		p.Rules = out
	}
	return nil
}

// flatten resolves a rule's extends chain into ordered lets and checks.
// The chain slice carries the ids currently being expanded for cycle
// detection.
func flatten(r *ast.Rule, byID map[string]*ast.Rule, chain []string) ([]ast.Let, []ast.Check, error) {
	for _, id := range chain {
		if id == r.ID && r.ID != "" {
			return nil, nil, errors.SchemaList{errors.NewSchemaf(errors.ErrExtendsCycle,
				"rule %s extends itself", r.ID)}
		}
	}
	if r.ID != "" {
		chain = append(chain, r.ID)
	}

	var lets []ast.Let
	var checks []ast.Check
	for _, ext := range r.Extends {
		// External targets were loaded during include expansion; file
		// cycles are caught there.
		parent := ext.External
		if parent == nil {
			var ok bool
			parent, ok = byID[ext.Rule]
			if !ok {
				return nil, nil, errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference,
					"extended rule %s is not declared", ext.Rule)}
			}
			for _, id := range chain {
				if id == ext.Rule {
					return nil, nil, errors.SchemaList{errors.NewSchemaf(errors.ErrExtendsCycle,
						"extends cycle through rule %s", ext.Rule)}
				}
			}
		}
		parentLets, parentChecks, err := flatten(parent, byID, chain)
		if err != nil {
			return nil, nil, err
		}
		lets = append(lets, parentLets...)
		checks = append(checks, parentChecks...)
	}

	lets = append(lets, r.Lets...)
	for _, c := range r.Checks {
		checks = append(checks, ast.CloneCheck(c))
	}
	return lets, checks, nil
}

func annotate(err error, pattern, rule string) error {
	if list, ok := errors.AsSchemaErrors(err); ok && len(list) > 0 {
		annotated := make(errors.SchemaList, len(list))
		for i, e := range list {
			if e.Pattern == "" && e.Rule == "" {
				e = e.In(pattern, rule)
			}
			annotated[i] = e
		}
		return annotated
	}
	return err
}
