// Package resolver transforms a parsed schema into its fully resolved form:
// includes spliced in, abstract patterns instantiated, extends chains
// inlined, and every id reference checked. Resolution happens once; the
// resolved schema is immutable afterwards and reusable across validation
// runs. Resolving an already resolved schema is a no-op.
package resolver

import (
	"io/fs"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
	"github.com/jacoelho/schematron/internal/parser"
)

// Config controls resolution.
type Config struct {
	// FS supplies included fragments. A nil FS rejects any include.
	FS fs.FS
	// Base is the directory of the including document, for relative hrefs.
	Base string
	// Parser configures fragment parsing.
	Parser parser.Config
}

// Resolve rewrites the schema in place into its resolved form.
func Resolve(schema *ast.Schema, cfg Config) error {
	if schema.Resolved {
		return nil
	}

	inc := &includeExpander{cfg: cfg, active: make(map[string]bool)}
	if err := inc.expandSchema(schema, cfg.Base); err != nil {
		return err
	}
	if err := checkDuplicateIDs(schema); err != nil {
		return err
	}
	if err := instantiateAbstractPatterns(schema); err != nil {
		return err
	}
	if err := inlineExtends(schema); err != nil {
		return err
	}
	if err := checkReferences(schema); err != nil {
		return err
	}

	schema.Resolved = true
	return nil
}

func checkDuplicateIDs(schema *ast.Schema) error {
	duplicate := func(kind, id string) error {
		return errors.SchemaList{errors.NewSchemaf(errors.ErrDuplicateID, "duplicate %s id %s", kind, id)}
	}

	patterns := make(map[string]bool)
	rules := make(map[string]bool)
	for _, p := range schema.Patterns {
		if p.ID != "" {
			if patterns[p.ID] {
				return duplicate("pattern", p.ID)
			}
			patterns[p.ID] = true
		}
		for _, r := range p.Rules {
			if r.ID == "" {
				continue
			}
			if rules[r.ID] {
				return duplicate("rule", r.ID)
			}
			rules[r.ID] = true
		}
	}

	phases := make(map[string]bool)
	for _, ph := range schema.Phases {
		if phases[ph.ID] {
			return duplicate("phase", ph.ID)
		}
		phases[ph.ID] = true
	}

	diags := make(map[string]bool)
	for _, d := range schema.Diagnostics {
		if diags[d.ID] {
			return duplicate("diagnostic", d.ID)
		}
		diags[d.ID] = true
	}

	keys := make(map[string]bool)
	for _, k := range schema.Keys {
		if keys[k.ID] {
			return duplicate("key", k.ID)
		}
		keys[k.ID] = true
	}
	return nil
}

// checkReferences verifies that every id reference left in the resolved
// schema has a target: phase actives, the default phase, and diagnostic
// references from checks.
func checkReferences(schema *ast.Schema) error {
	unresolved := func(kind, id string) error {
		return errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference, "%s %s is not declared", kind, id)}
	}

	patterns := make(map[string]bool)
	for _, p := range schema.Patterns {
		if p.ID != "" {
			patterns[p.ID] = true
		}
	}
	phases := make(map[string]bool)
	for _, ph := range schema.Phases {
		phases[ph.ID] = true
		for _, active := range ph.Active {
			if !patterns[active] {
				return unresolved("active pattern", active)
			}
		}
	}
	if schema.DefaultPhase != "" && schema.DefaultPhase != "#ALL" && !phases[schema.DefaultPhase] {
		return unresolved("default phase", schema.DefaultPhase)
	}

	diags := make(map[string]bool)
	for _, d := range schema.Diagnostics {
		diags[d.ID] = true
	}
	for _, p := range schema.Patterns {
		for _, r := range p.Rules {
			for _, c := range r.Checks {
				for _, ref := range c.Diagnostics {
					if !diags[ref] {
						return unresolved("diagnostic", ref)
					}
				}
			}
		}
	}
	return nil
}
