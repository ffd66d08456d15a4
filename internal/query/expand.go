package query

import (
	"strings"

	"github.com/jacoelho/schematron/errors"
)

// maxExpandDepth bounds macro recursion so a self-referential function
// declaration fails compilation instead of looping.
const maxExpandDepth = 32

// Expand applies the environment's compile-time bindings to an expression:
// $variable references, declared function calls and embedded key() calls
// with literal values are substituted textually. String literals are left
// untouched.
func Expand(expr string, env *Env) (string, error) {
	return expand(expr, env, 0)
}

func expand(expr string, env *Env, depth int) (string, error) {
	if depth > maxExpandDepth {
		return "", expandErrf(expr, "expression expands too deeply (cyclic function declaration?)")
	}

	var b strings.Builder
	b.Grow(len(expr))
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == '\'' || c == '"':
			j := skipStringLiteral(expr, i)
			b.WriteString(expr[i:j])
			i = j
		case c == '$':
			name, j := scanName(expr, i+1)
			if name == "" {
				b.WriteByte(c)
				i++
				continue
			}
			value, ok := env.variable(name)
			if !ok {
				return "", expandErrf(expr, "undefined variable $%s", name)
			}
			b.WriteString(value)
			i = j
		case isNameStart(c):
			name, j := scanName(expr, i)
			k := skipSpace(expr, j)
			if k >= len(expr) || expr[k] != '(' {
				b.WriteString(expr[i:j])
				i = j
				continue
			}
			args, end, ok := scanCallArgs(expr, k)
			if !ok {
				// unbalanced call, let the XPath compiler report it
				b.WriteString(expr[i:j])
				i = j
				continue
			}
			switch {
			case name == "key":
				rewritten, err := rewriteKeyCall(expr, args, env, depth)
				if err != nil {
					return "", err
				}
				b.WriteString(rewritten)
			default:
				if fn, isMacro := env.function(name); isMacro {
					expanded, err := expandMacro(name, fn, args, env, depth)
					if err != nil {
						return "", err
					}
					b.WriteString(expanded)
				} else {
					// built-in function: expand the arguments only
					b.WriteString(name)
					b.WriteByte('(')
					for ai, arg := range args {
						if ai > 0 {
							b.WriteString(", ")
						}
						expanded, err := expand(arg, env, depth+1)
						if err != nil {
							return "", err
						}
						b.WriteString(strings.TrimSpace(expanded))
					}
					b.WriteByte(')')
				}
			}
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func expandMacro(name string, fn Function, args []string, env *Env, depth int) (string, error) {
	if len(args) != len(fn.Params) {
		return "", expandErrf(name, "function %s expects %d arguments, got %d", name, len(fn.Params), len(args))
	}
	bindings := make(map[string]string, len(fn.Params))
	for i, param := range fn.Params {
		arg, err := expand(args[i], env, depth+1)
		if err != nil {
			return "", err
		}
		bindings[param] = "(" + strings.TrimSpace(arg) + ")"
	}
	body, err := expand(fn.Body, env.Bind(bindings), depth+1)
	if err != nil {
		return "", err
	}
	return "(" + body + ")", nil
}

// rewriteKeyCall handles a key() call embedded inside a larger expression.
// Only literal key values can be rewritten textually: the rewritten form
// evaluates relative to the indexed node, so a value expression that depends
// on the caller's context would silently change meaning. The validator's
// fast path handles non-literal values when the key call is the whole
// expression; anything else is a compile error.
func rewriteKeyCall(expr string, args []string, env *Env, depth int) (string, error) {
	if len(args) != 2 {
		return "", expandErrf(expr, "key() expects 2 arguments, got %d", len(args))
	}
	id, ok := stringLiteral(args[0])
	if !ok {
		return "", expandErrf(expr, "key() name must be a string literal")
	}
	def, ok := env.key(id)
	if !ok {
		return "", schemaErr(errors.ErrUnresolvedReference, expr, "key %q is not declared", id)
	}
	value := strings.TrimSpace(args[1])
	if _, isLiteral := stringLiteral(value); !isLiteral {
		return "", expandErrf(expr, "embedded key(%q, ...) requires a literal value", id)
	}
	use, err := expand(def.Use, env, depth+1)
	if err != nil {
		return "", err
	}
	return "(" + Rooted(def.Match) + ")[(" + use + ") = " + value + "]", nil
}

// Rooted anchors a relative match expression at the document root so that
// rule contexts and key matches select nodes anywhere in the document.
// Top-level union branches are anchored independently.
func Rooted(expr string) string {
	parts := splitTopLevel(expr, '|')
	for i, part := range parts {
		p := strings.TrimSpace(part)
		if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "(") {
			parts[i] = p
			continue
		}
		parts[i] = "//" + p
	}
	return strings.Join(parts, " | ")
}

func stringLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if q != '\'' && q != '"' {
		return "", false
	}
	if s[len(s)-1] != q || strings.IndexByte(s[1:len(s)-1], q) >= 0 {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// scanCallArgs scans a parenthesized argument list starting at the opening
// parenthesis, returning the raw argument texts and the index just past the
// closing parenthesis.
func scanCallArgs(expr string, open int) (args []string, end int, ok bool) {
	depth := 0
	argStart := open + 1
	i := open
	for i < len(expr) {
		switch expr[i] {
		case '\'', '"':
			i = skipStringLiteral(expr, i)
			continue
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				if arg := expr[argStart:i]; strings.TrimSpace(arg) != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, expr[argStart:i])
				argStart = i + 1
			}
		}
		i++
	}
	return nil, open, false
}

// splitTopLevel splits on a separator byte outside literals, parentheses
// and predicates.
func splitTopLevel(expr string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '\'', '"':
			i = skipStringLiteral(expr, i)
			continue
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
		i++
	}
	return append(parts, expr[start:])
}

func skipStringLiteral(expr string, i int) int {
	q := expr[i]
	for j := i + 1; j < len(expr); j++ {
		if expr[j] == q {
			return j + 1
		}
	}
	return len(expr)
}

func skipSpace(expr string, i int) int {
	for i < len(expr) && (expr[i] == ' ' || expr[i] == '\t' || expr[i] == '\n' || expr[i] == '\r') {
		i++
	}
	return i
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c == '-' || c == '.' || c == ':' || (c >= '0' && c <= '9')
}

func scanName(expr string, i int) (string, int) {
	if i >= len(expr) || !isNameStart(expr[i]) {
		return "", i
	}
	j := i + 1
	for j < len(expr) && isNameChar(expr[j]) {
		j++
	}
	return expr[i:j], j
}

func expandErrf(expr, format string, args ...any) error {
	return schemaErr(errors.ErrExpressionSyntax, expr, format, args...)
}

func schemaErr(code errors.ErrorCode, expr, format string, args ...any) error {
	e := errors.NewSchemaf(code, format, args...).WithExpression(expr)
	return errors.SchemaList{e}
}
