// Package dom is a thin facade over an xmlquery tree. It gives validation
// runs what the underlying DOM does not: stable node identity across
// attribute selections, lazily computed document order, XPath location
// paths for report findings, and the per-document key index cache.
package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Document wraps one parsed instance document for a single validation run.
// It is not safe for concurrent use; each run owns its own Document.
type Document struct {
	root  *xmlquery.Node
	order map[NodeKey]int
	keys  map[string]*KeyIndex
}

// Parse reads an instance document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return NewDocument(doc), nil
}

// NewDocument wraps an already parsed tree. The node passed in must be the
// document node, not the root element.
func NewDocument(root *xmlquery.Node) *Document {
	return &Document{root: root}
}

// Root returns the document node.
func (d *Document) Root() *xmlquery.Node {
	return d.root
}

// NodeKey is a stable identity for a node. xmlquery materializes attribute
// selections as fresh nodes on every query, so attribute identity is the
// owning element plus the attribute name.
type NodeKey struct {
	Node *xmlquery.Node
	Attr string
}

// KeyOf derives the stable identity of a node.
func KeyOf(n *xmlquery.Node) NodeKey {
	if n != nil && n.Type == xmlquery.AttributeNode {
		return NodeKey{Node: n.Parent, Attr: n.Data}
	}
	return NodeKey{Node: n}
}

// Order returns the document-order position of a node. Attribute nodes sort
// with their owning element. The numbering is computed on first use and
// reused for the rest of the run.
func (d *Document) Order(n *xmlquery.Node) int {
	if d.order == nil {
		d.order = make(map[NodeKey]int)
		i := 0
		var walk func(*xmlquery.Node)
		walk = func(node *xmlquery.Node) {
			d.order[NodeKey{Node: node}] = i
			i++
			for _, a := range node.Attr {
				d.order[NodeKey{Node: node, Attr: a.Name.Local}] = i
				i++
			}
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(d.root)
	}
	pos, ok := d.order[KeyOf(n)]
	if !ok {
		return -1
	}
	return pos
}

// SortNodes orders a node set by document order in place, keeping the
// original order for nodes the document does not know about.
func (d *Document) SortNodes(nodes []*xmlquery.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return d.Order(nodes[i]) < d.Order(nodes[j])
	})
}

// Path returns an XPath location identifying the node, in the
// /root[1]/child[2]/@attr shape SVRL reports use.
func Path(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == xmlquery.AttributeNode {
		return Path(n.Parent) + "/@" + n.Data
	}

	var segments []string
	for cur := n; cur != nil && cur.Type == xmlquery.ElementNode; cur = cur.Parent {
		segments = append(segments, fmt.Sprintf("%s[%d]", nodeName(cur), siblingPosition(cur)))
	}
	if len(segments) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}
	return b.String()
}

func nodeName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func siblingPosition(n *xmlquery.Node) int {
	pos := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == xmlquery.ElementNode && sib.Data == n.Data && sib.Prefix == n.Prefix {
			pos++
		}
	}
	return pos
}
