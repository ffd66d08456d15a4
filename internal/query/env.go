package query

import "strings"

// Function is a declared function bound as a compile-time macro: calls
// expand to Body with each parameter replaced by the call argument.
type Function struct {
	Params []string
	Body   string
}

// Key is a raw key definition carried into compilation.
type Key struct {
	Match string
	Use   string
}

// Env is the compile environment attached to every expression: the schema
// namespace table plus the bindings visible in the expression's scope.
// Variable values must already be fully expanded for their own scope.
type Env struct {
	Namespaces map[string]string
	Variables  map[string]string
	Functions  map[string]Function
	Keys       map[string]Key
}

// Bind returns a child environment with additional variable bindings.
// Inner bindings shadow outer ones.
func (e *Env) Bind(vars map[string]string) *Env {
	if len(vars) == 0 {
		return e
	}
	out := &Env{
		Namespaces: e.Namespaces,
		Functions:  e.Functions,
		Keys:       e.Keys,
		Variables:  make(map[string]string, len(e.Variables)+len(vars)),
	}
	for k, v := range e.Variables {
		out.Variables[k] = v
	}
	for k, v := range vars {
		out.Variables[k] = v
	}
	return out
}

func (e *Env) variable(name string) (string, bool) {
	if e == nil || e.Variables == nil {
		return "", false
	}
	v, ok := e.Variables[name]
	return v, ok
}

func (e *Env) function(name string) (Function, bool) {
	if e == nil || e.Functions == nil {
		return Function{}, false
	}
	f, ok := e.Functions[name]
	return f, ok
}

func (e *Env) key(id string) (Key, bool) {
	if e == nil || e.Keys == nil {
		return Key{}, false
	}
	k, ok := e.Keys[id]
	return k, ok
}

// QuoteLiteral renders s as an XPath string literal. Strings containing
// both quote kinds fall back to a concat() expression.
func QuoteLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	var parts []string
	for _, seg := range strings.SplitAfter(s, "'") {
		if seg == "" {
			continue
		}
		if strings.HasSuffix(seg, "'") {
			if body := strings.TrimSuffix(seg, "'"); body != "" {
				parts = append(parts, "'"+body+"'")
			}
			parts = append(parts, `"'"`)
		} else {
			parts = append(parts, "'"+seg+"'")
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "concat(" + strings.Join(parts, ", ") + ")"
}
