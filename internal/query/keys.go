package query

import (
	"github.com/jacoelho/schematron/internal/dom"
)

// KeyProgram is a compiled key definition: the match expression anchored at
// the document root and the use expression evaluated per matched node.
type KeyProgram struct {
	ID    string
	match *Expr
	use   *Expr
}

// CompileKey compiles a key definition.
func CompileKey(id, match, use string, env *Env) (*KeyProgram, error) {
	matchExpr, err := CompileRooted(match, env)
	if err != nil {
		return nil, err
	}
	useExpr, err := Compile(use, env)
	if err != nil {
		return nil, err
	}
	return &KeyProgram{ID: id, match: matchExpr, use: useExpr}, nil
}

// Build evaluates the key over the whole document and produces the index.
// Called at most once per (document, key) pair; the document caches the
// result.
func (k *KeyProgram) Build(ctx *EvalContext) (*dom.KeyIndex, error) {
	matched, err := k.match.SelectNodes(ctx.At(ctx.Doc.Root()))
	if err != nil {
		return nil, err
	}
	idx := dom.NewKeyIndex()
	for _, node := range matched {
		v, err := k.use.Eval(ctx.At(node))
		if err != nil {
			return nil, err
		}
		if v.Kind == KindNodeSet {
			// every node in the use result contributes a key value
			for _, n := range v.Nodes {
				idx.Add(n.InnerText(), node)
			}
			continue
		}
		idx.Add(v.AsString(), node)
	}
	return idx, nil
}
