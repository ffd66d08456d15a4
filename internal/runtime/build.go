package runtime

import (
	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
	"github.com/jacoelho/schematron/internal/query"
)

// Config carries bindings supplied by the caller at compile time.
type Config struct {
	// Functions are caller-declared expression functions, expanded as
	// macros wherever expressions call them.
	Functions map[string]query.Function
}

// Build compiles a resolved schema. Every expression is compiled here,
// eagerly, so malformed expressions and undefined variables surface as
// schema-load errors before any document is touched.
func Build(schema *ast.Schema, cfg Config) (*Schema, error) {
	b := &builder{
		diags: make(map[string]ast.Message, len(schema.Diagnostics)),
	}
	for _, d := range schema.Diagnostics {
		b.diags[d.ID] = d.Message
	}

	base := &query.Env{
		Namespaces: namespaceMap(schema.Namespaces),
		Functions:  cfg.Functions,
		Keys:       keyMap(schema.Keys),
	}
	schemaEnv, err := bindLets(base, schema.Lets)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]*query.KeyProgram, len(schema.Keys))
	for _, k := range schema.Keys {
		prog, err := query.CompileKey(k.ID, k.Match, k.Use, schemaEnv)
		if err != nil {
			return nil, err
		}
		keys[k.ID] = prog
	}

	all, err := b.compilePhase("#ALL", schema.Patterns, schemaEnv)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*ast.Pattern, len(schema.Patterns))
	for _, p := range schema.Patterns {
		if p.ID != "" {
			byID[p.ID] = p
		}
	}
	phases := make(map[string]*PhaseSet, len(schema.Phases))
	for _, ph := range schema.Phases {
		phaseEnv, err := bindLets(schemaEnv, ph.Lets)
		if err != nil {
			return nil, err
		}
		active := make([]*ast.Pattern, 0, len(ph.Active))
		for _, id := range ph.Active {
			active = append(active, byID[id])
		}
		compiled, err := b.compilePhase(ph.ID, active, phaseEnv)
		if err != nil {
			return nil, err
		}
		phases[ph.ID] = compiled
	}

	return &Schema{
		Title:        schema.Title,
		QueryBinding: schema.QueryBinding,
		DefaultPhase: schema.DefaultPhase,
		Namespaces:   schema.Namespaces,
		Keys:         keys,
		All:          all,
		Phases:       phases,
	}, nil
}

type builder struct {
	diags map[string]ast.Message
}

func (b *builder) compilePhase(id string, patterns []*ast.Pattern, env *query.Env) (*PhaseSet, error) {
	set := &PhaseSet{ID: id, Patterns: make([]*Pattern, 0, len(patterns))}
	for _, p := range patterns {
		compiled, err := b.compilePattern(p, env)
		if err != nil {
			return nil, err
		}
		set.Patterns = append(set.Patterns, compiled)
	}
	return set, nil
}

func (b *builder) compilePattern(p *ast.Pattern, env *query.Env) (*Pattern, error) {
	patternEnv, err := bindLets(env, p.Lets)
	if err != nil {
		return nil, annotate(err, p.ID, "")
	}
	out := &Pattern{ID: p.ID, Title: p.Title, Rules: make([]*Rule, 0, len(p.Rules))}
	for _, r := range p.Rules {
		compiled, err := b.compileRule(r, patternEnv)
		if err != nil {
			return nil, annotate(err, p.ID, r.ID)
		}
		out.Rules = append(out.Rules, compiled)
	}
	return out, nil
}

func (b *builder) compileRule(r *ast.Rule, env *query.Env) (*Rule, error) {
	ruleEnv, err := bindLets(env, r.Lets)
	if err != nil {
		return nil, err
	}
	context, err := query.CompileRooted(r.Context, ruleEnv)
	if err != nil {
		return nil, err
	}
	out := &Rule{
		ID:      r.ID,
		Source:  r.Context,
		Flag:    r.Flag,
		Role:    r.Role,
		Context: context,
		Checks:  make([]*Check, 0, len(r.Checks)),
	}
	for i := range r.Checks {
		compiled, err := b.compileCheck(&r.Checks[i], ruleEnv)
		if err != nil {
			return nil, err
		}
		out.Checks = append(out.Checks, compiled)
	}
	return out, nil
}

func (b *builder) compileCheck(c *ast.Check, env *query.Env) (*Check, error) {
	test, err := query.Compile(c.Test, env)
	if err != nil {
		return nil, err
	}
	msg, err := compileMessage(c.Message, env)
	if err != nil {
		return nil, err
	}
	out := &Check{
		Kind:    c.Kind,
		ID:      c.ID,
		Source:  c.Test,
		Flag:    c.Flag,
		Role:    c.Role,
		Test:    test,
		Message: msg,
	}
	for _, ref := range c.Diagnostics {
		template, ok := b.diags[ref]
		if !ok {
			return nil, errors.SchemaList{errors.NewSchemaf(errors.ErrUnresolvedReference,
				"diagnostic %s is not declared", ref)}
		}
		dmsg, err := compileMessage(template, env)
		if err != nil {
			return nil, err
		}
		out.Diagnostics = append(out.Diagnostics, &Diagnostic{ID: ref, Message: dmsg})
	}
	return out, nil
}

func compileMessage(m ast.Message, env *query.Env) (*Message, error) {
	out := &Message{Parts: make([]MessagePart, 0, len(m.Parts))}
	for _, part := range m.Parts {
		switch part.Kind {
		case ast.PartText:
			out.Parts = append(out.Parts, MessagePart{Text: part.Text})
		case ast.PartValueOf:
			expr, err := query.Compile(part.Expr, env)
			if err != nil {
				return nil, err
			}
			out.Parts = append(out.Parts, MessagePart{Expr: expr})
		case ast.PartName:
			if part.Expr == "" {
				out.Parts = append(out.Parts, MessagePart{Name: true})
				continue
			}
			expr, err := query.Compile(part.Expr, env)
			if err != nil {
				return nil, err
			}
			out.Parts = append(out.Parts, MessagePart{Name: true, Expr: expr})
		}
	}
	return out, nil
}

// bindLets extends an environment with let bindings in declaration order.
// Each value is expanded against the bindings before it, which gives
// strict lexical shadowing with no forward references.
func bindLets(env *query.Env, lets []ast.Let) (*query.Env, error) {
	if len(lets) == 0 {
		return env, nil
	}
	out := env
	for _, let := range lets {
		var value string
		if let.XML {
			value = query.QuoteLiteral(let.Value)
		} else {
			expanded, err := query.Expand(let.Value, out)
			if err != nil {
				return nil, err
			}
			value = "(" + expanded + ")"
		}
		out = out.Bind(map[string]string{let.Name: value})
	}
	return out, nil
}

func namespaceMap(decls []ast.Namespace) map[string]string {
	if len(decls) == 0 {
		return nil
	}
	out := make(map[string]string, len(decls))
	for _, ns := range decls {
		out[ns.Prefix] = ns.URI
	}
	return out
}

func keyMap(keys []ast.Key) map[string]query.Key {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]query.Key, len(keys))
	for _, k := range keys {
		out[k.ID] = query.Key{Match: k.Match, Use: k.Use}
	}
	return out
}

func annotate(err error, pattern, rule string) error {
	list, ok := errors.AsSchemaErrors(err)
	if !ok {
		return err
	}
	annotated := make(errors.SchemaList, len(list))
	for i, e := range list {
		if e.Pattern == "" && e.Rule == "" {
			e = e.In(pattern, rule)
		}
		annotated[i] = e
	}
	return annotated
}
