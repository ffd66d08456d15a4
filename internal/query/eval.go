package query

import (
	"fmt"
	"math"
	"strconv"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/jacoelho/schematron/internal/dom"
)

// EvalContext carries the per-run state an expression needs: the document
// wrapper (identity, order, key cache), the context node, and the schema's
// compiled key definitions.
type EvalContext struct {
	Doc  *dom.Document
	Node *xmlquery.Node
	Keys map[string]*KeyProgram
}

// At returns a copy of the context positioned at another node.
func (c *EvalContext) At(node *xmlquery.Node) *EvalContext {
	return &EvalContext{Doc: c.Doc, Node: node, Keys: c.Keys}
}

// Kind enumerates the XPath value types.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
	KindNodeSet
)

// Value is a typed XPath evaluation result.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Nodes  []*xmlquery.Node
}

// AsBool applies the XPath boolean coercion rules.
func (v Value) AsBool() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number != 0 && !math.IsNaN(v.Number)
	case KindString:
		return v.Str != ""
	default:
		return len(v.Nodes) > 0
	}
}

// AsString applies the XPath string coercion rules: a node-set converts to
// the string-value of its first node.
func (v Value) AsString() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Number)
	case KindString:
		return v.Str
	default:
		if len(v.Nodes) == 0 {
			return ""
		}
		return v.Nodes[0].InnerText()
	}
}

// FormatNumber renders a float the way XPath's string() does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatInt(int64(f), 10)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// Eval evaluates the expression at the context node. Runtime failures,
// including panics inside the underlying engine, come back as errors for
// the caller to record as evaluation-error findings.
func (e *Expr) Eval(ctx *EvalContext) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %q: %v", e.Source, r)
		}
	}()

	if e.keyID != "" {
		return e.evalKeyLookup(ctx)
	}

	raw := e.prog.Evaluate(xmlquery.CreateXPathNavigator(ctx.Node))
	switch r := raw.(type) {
	case bool:
		return Value{Kind: KindBool, Bool: r}, nil
	case float64:
		return Value{Kind: KindNumber, Number: r}, nil
	case string:
		return Value{Kind: KindString, Str: r}, nil
	case *xpath.NodeIterator:
		return Value{Kind: KindNodeSet, Nodes: drainIterator(r)}, nil
	default:
		return Value{}, fmt.Errorf("evaluate %q: unsupported result type %T", e.Source, raw)
	}
}

// SelectNodes evaluates the expression and requires a node-set result.
func (e *Expr) SelectNodes(ctx *EvalContext) ([]*xmlquery.Node, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindNodeSet {
		return nil, fmt.Errorf("evaluate %q: expected a node-set, got a scalar", e.Source)
	}
	return v.Nodes, nil
}

func (e *Expr) evalKeyLookup(ctx *EvalContext) (Value, error) {
	prog, ok := ctx.Keys[e.keyID]
	if !ok {
		return Value{}, fmt.Errorf("evaluate %q: key %q is not declared", e.Source, e.keyID)
	}
	idx, err := ctx.Doc.Keys(e.keyID, func() (*dom.KeyIndex, error) {
		return prog.Build(ctx)
	})
	if err != nil {
		return Value{}, err
	}

	arg, err := e.keyValue.Eval(ctx)
	if err != nil {
		return Value{}, err
	}

	var nodes []*xmlquery.Node
	if arg.Kind == KindNodeSet {
		// a node-set value looks up every node's string-value
		seen := make(map[dom.NodeKey]struct{})
		for _, n := range arg.Nodes {
			for _, hit := range idx.Lookup(n.InnerText()) {
				id := dom.KeyOf(hit)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				nodes = append(nodes, hit)
			}
		}
		ctx.Doc.SortNodes(nodes)
	} else {
		nodes = idx.Lookup(arg.AsString())
	}
	return Value{Kind: KindNodeSet, Nodes: nodes}, nil
}

func drainIterator(iter *xpath.NodeIterator) []*xmlquery.Node {
	var nodes []*xmlquery.Node
	for iter.MoveNext() {
		nav := iter.Current().(*xmlquery.NodeNavigator)
		nodes = append(nodes, materialize(nav))
	}
	return nodes
}

// materialize mirrors xmlquery's node extraction: attribute selections
// become fresh attribute nodes parented at the owning element.
func materialize(nav *xmlquery.NodeNavigator) *xmlquery.Node {
	if nav.NodeType() == xpath.AttributeNode {
		text := &xmlquery.Node{Type: xmlquery.TextNode, Data: nav.Value()}
		return &xmlquery.Node{
			Type:         xmlquery.AttributeNode,
			Data:         nav.LocalName(),
			Prefix:       nav.Prefix(),
			NamespaceURI: nav.NamespaceURL(),
			Parent:       nav.Current(),
			FirstChild:   text,
			LastChild:    text,
		}
	}
	return nav.Current()
}
