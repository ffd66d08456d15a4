package validator

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/internal/query"
	"github.com/jacoelho/schematron/internal/runtime"
)

// renderMessage evaluates a compiled message template against the context
// node. Whitespace inside parts was normalised at parse time; the joined
// result is trimmed once at the edges.
func renderMessage(m *runtime.Message, ctx *query.EvalContext) (string, error) {
	if m == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range m.Parts {
		switch {
		case part.Name:
			name, err := renderName(part, ctx)
			if err != nil {
				return "", err
			}
			sb.WriteString(name)
		case part.Expr != nil:
			v, err := part.Expr.Eval(ctx)
			if err != nil {
				return "", err
			}
			sb.WriteString(v.AsString())
		default:
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// renderName yields the qualified name of the context node, or of the first
// node selected by the part's path expression when one was given.
func renderName(part runtime.MessagePart, ctx *query.EvalContext) (string, error) {
	node := ctx.Node
	if part.Expr != nil {
		nodes, err := part.Expr.SelectNodes(ctx)
		if err != nil {
			return "", err
		}
		if len(nodes) == 0 {
			return "", nil
		}
		node = nodes[0]
	}
	return nodeName(node), nil
}

func nodeName(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}
