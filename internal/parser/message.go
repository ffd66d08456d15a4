package parser

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
)

// parseMessage collects the mixed content of an assert, report or diagnostic
// element into a message template. Literal text is kept with whitespace runs
// collapsed; <value-of> and <name> become expression parts; <emph>, <span>
// and <dir> are flattened to their text content.
func (p *parser) parseMessage(el *xmlquery.Node) (ast.Message, error) {
	var parts []ast.MessagePart
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if text := collapseSpace(c.Data); text != "" {
				parts = appendText(parts, text)
			}
		case xmlquery.ElementNode:
			if c.NamespaceURI != p.ns {
				if text := collapseSpace(c.InnerText()); text != "" {
					parts = appendText(parts, text)
				}
				continue
			}
			switch c.Data {
			case "value-of":
				if err := p.checkAttributes(c, "select"); err != nil {
					return ast.Message{}, err
				}
				sel := attr(c, "select")
				if sel == "" {
					return ast.Message{}, missingAttr(c, "select")
				}
				parts = append(parts, ast.MessagePart{Kind: ast.PartValueOf, Expr: sel})
			case "name":
				if err := p.checkAttributes(c, "path"); err != nil {
					return ast.Message{}, err
				}
				parts = append(parts, ast.MessagePart{Kind: ast.PartName, Expr: attr(c, "path")})
			case "emph", "span", "dir":
				if text := collapseSpace(c.InnerText()); text != "" {
					parts = appendText(parts, text)
				}
			default:
				return ast.Message{}, errors.SchemaList{errors.NewSchemaf(errors.ErrMalformedMarkup,
					"unexpected element %s in %s message", c.Data, el.Data)}
			}
		}
	}
	return ast.Message{Parts: parts}, nil
}

func appendText(parts []ast.MessagePart, text string) []ast.MessagePart {
	if n := len(parts); n > 0 && parts[n-1].Kind == ast.PartText {
		parts[n-1].Text += text
		return parts
	}
	return append(parts, ast.MessagePart{Kind: ast.PartText, Text: text})
}

// collapseSpace maps whitespace characters to plain spaces and collapses
// runs, keeping at most one leading and trailing space.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	if strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t") || strings.HasPrefix(s, "\n") || strings.HasPrefix(s, "\r") {
		out = " " + out
	}
	if space {
		out += " "
	}
	return out
}
