package query

import (
	"strings"

	"github.com/antchfx/xpath"

	"github.com/jacoelho/schematron/errors"
)

// Expr is a compiled, reusable expression handle. It is immutable and safe
// to share across concurrent validation runs.
type Expr struct {
	// Source is the expression text as written in the schema.
	Source string

	prog *xpath.Expr

	// keyID and keyValue are set for the key() fast path: the whole
	// expression is one key call whose value is evaluated in the caller's
	// context and looked up in the per-document key index.
	keyID    string
	keyValue *Expr
}

// Compile expands an expression against its environment and compiles it
// with the schema namespace table. All failures are schema-load errors.
func Compile(source string, env *Env) (*Expr, error) {
	if id, valueExpr, ok := soleKeyCall(source); ok {
		if _, declared := env.key(id); !declared {
			return nil, schemaErr(errors.ErrUnresolvedReference, source, "key %q is not declared", id)
		}
		value, err := Compile(valueExpr, env)
		if err != nil {
			return nil, err
		}
		return &Expr{Source: source, keyID: id, keyValue: value}, nil
	}

	expanded, err := Expand(source, env)
	if err != nil {
		return nil, err
	}
	prog, err := compileWithNamespaces(expanded, env)
	if err != nil {
		return nil, schemaErr(errors.ErrExpressionSyntax, source, "compile expression: %v", err)
	}
	return &Expr{Source: source, prog: prog}, nil
}

// CompileRooted compiles a context or match expression anchored at the
// document root.
func CompileRooted(source string, env *Env) (*Expr, error) {
	expanded, err := Expand(Rooted(source), env)
	if err != nil {
		return nil, err
	}
	prog, err := compileWithNamespaces(expanded, env)
	if err != nil {
		return nil, schemaErr(errors.ErrExpressionSyntax, source, "compile context: %v", err)
	}
	return &Expr{Source: source, prog: prog}, nil
}

func compileWithNamespaces(expr string, env *Env) (*xpath.Expr, error) {
	if env != nil && len(env.Namespaces) > 0 {
		return xpath.CompileWithNS(expr, env.Namespaces)
	}
	return xpath.Compile(expr)
}

// soleKeyCall reports whether the expression is exactly one key() call with
// a literal key name, returning the name and the raw value expression.
func soleKeyCall(source string) (id, valueExpr string, ok bool) {
	s := strings.TrimSpace(source)
	if !strings.HasPrefix(s, "key") {
		return "", "", false
	}
	rest := s[len("key"):]
	open := skipSpace(rest, 0)
	if open >= len(rest) || rest[open] != '(' {
		return "", "", false
	}
	args, end, balanced := scanCallArgs(rest, open)
	if !balanced || skipSpace(rest, end) != len(rest) || len(args) != 2 {
		return "", "", false
	}
	id, isLiteral := stringLiteral(args[0])
	if !isLiteral {
		return "", "", false
	}
	return id, strings.TrimSpace(args[1]), true
}
