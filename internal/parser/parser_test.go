package parser

import (
	"strings"
	"testing"

	schemaerrors "github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/ast"
)

func parseString(t *testing.T, doc string) *ast.Schema {
	t.Helper()
	schema, err := Parse(strings.NewReader(doc), Config{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return schema
}

func TestParseSchema(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron"
            defaultPhase="basic" queryBinding="xslt">
  <sch:title>Invoice checks</sch:title>
  <sch:ns prefix="inv" uri="urn:invoice"/>
  <sch:let name="currency" value="'EUR'"/>
  <sch:phase id="basic">
    <sch:active pattern="totals"/>
  </sch:phase>
  <sch:pattern id="totals">
    <sch:title>Totals</sch:title>
    <sch:rule context="inv:invoice" id="invoice-rule" role="error">
      <sch:assert test="inv:total &gt;= 0" id="positive-total">Total must not be negative.</sch:assert>
      <sch:report test="count(inv:line) = 0">Invoice has no lines.</sch:report>
    </sch:rule>
  </sch:pattern>
  <sch:diagnostics>
    <sch:diagnostic id="neg">The total is negative.</sch:diagnostic>
  </sch:diagnostics>
</sch:schema>`

	schema := parseString(t, doc)

	if schema.Title != "Invoice checks" {
		t.Errorf("Title = %q, want %q", schema.Title, "Invoice checks")
	}
	if schema.DefaultPhase != "basic" {
		t.Errorf("DefaultPhase = %q, want %q", schema.DefaultPhase, "basic")
	}
	if schema.QueryBinding != "xslt" {
		t.Errorf("QueryBinding = %q, want %q", schema.QueryBinding, "xslt")
	}
	if len(schema.Namespaces) != 1 || schema.Namespaces[0].Prefix != "inv" || schema.Namespaces[0].URI != "urn:invoice" {
		t.Errorf("Namespaces = %+v, want inv=urn:invoice", schema.Namespaces)
	}
	if len(schema.Lets) != 1 || schema.Lets[0].Name != "currency" || schema.Lets[0].Value != "'EUR'" {
		t.Errorf("Lets = %+v", schema.Lets)
	}
	if len(schema.Phases) != 1 || schema.Phases[0].ID != "basic" || len(schema.Phases[0].Active) != 1 {
		t.Fatalf("Phases = %+v", schema.Phases)
	}
	if len(schema.Patterns) != 1 {
		t.Fatalf("Patterns = %d, want 1", len(schema.Patterns))
	}
	pattern := schema.Patterns[0]
	if pattern.ID != "totals" || pattern.Title != "Totals" {
		t.Errorf("pattern = %+v", pattern)
	}
	if len(pattern.Rules) != 1 {
		t.Fatalf("Rules = %d, want 1", len(pattern.Rules))
	}
	rule := pattern.Rules[0]
	if rule.Context != "inv:invoice" || rule.ID != "invoice-rule" || rule.Role != "error" {
		t.Errorf("rule = %+v", rule)
	}
	if len(rule.Checks) != 2 {
		t.Fatalf("Checks = %d, want 2", len(rule.Checks))
	}
	if rule.Checks[0].Kind != ast.CheckAssert || rule.Checks[0].ID != "positive-total" {
		t.Errorf("check[0] = %+v", rule.Checks[0])
	}
	if rule.Checks[1].Kind != ast.CheckReport {
		t.Errorf("check[1].Kind = %v, want report", rule.Checks[1].Kind)
	}
	if len(schema.Diagnostics) != 1 || schema.Diagnostics[0].ID != "neg" {
		t.Errorf("Diagnostics = %+v", schema.Diagnostics)
	}
}

func TestParseLegacyNamespace(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<schema xmlns="http://www.ascc.net/xml/schematron">
  <pattern name="old">
    <rule context="doc">
      <assert test="title">A doc needs a title.</assert>
    </rule>
  </pattern>
</schema>`

	schema := parseString(t, doc)
	if len(schema.Patterns) != 1 || len(schema.Patterns[0].Rules) != 1 {
		t.Fatalf("patterns = %+v", schema.Patterns)
	}
}

func TestParseMixedMessage(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern>
    <sch:rule context="item">
      <sch:assert test="@price">Item <sch:name/> costs <sch:value-of select="@price"/> units.</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	schema := parseString(t, doc)
	parts := schema.Patterns[0].Rules[0].Checks[0].Message.Parts
	want := []ast.MessagePart{
		{Kind: ast.PartText, Text: "Item "},
		{Kind: ast.PartName},
		{Kind: ast.PartText, Text: " costs "},
		{Kind: ast.PartValueOf, Expr: "@price"},
		{Kind: ast.PartText, Text: " units."},
	}
	if len(parts) != len(want) {
		t.Fatalf("parts = %+v, want %d parts", parts, len(want))
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("parts[%d] = %+v, want %+v", i, parts[i], want[i])
		}
	}
}

func TestParseAbstractPatternAndIsA(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="bounded" abstract="true">
    <sch:rule context="$element">
      <sch:assert test="$element &lt;= $limit">Value exceeds limit.</sch:assert>
    </sch:rule>
  </sch:pattern>
  <sch:pattern id="max-price" is-a="bounded">
    <sch:param name="element" value="price"/>
    <sch:param name="limit" value="100"/>
  </sch:pattern>
</sch:schema>`

	schema := parseString(t, doc)
	if !schema.Patterns[0].Abstract {
		t.Errorf("pattern[0].Abstract = false, want true")
	}
	instance := schema.Patterns[1]
	if instance.IsA != "bounded" {
		t.Errorf("IsA = %q, want bounded", instance.IsA)
	}
	if len(instance.Params) != 2 || instance.Params[0].Name != "element" || instance.Params[1].Value != "100" {
		t.Errorf("Params = %+v", instance.Params)
	}
}

func TestParseExtendsTargets(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="p">
    <sch:rule context="item">
      <sch:extends rule="base"/>
      <sch:extends href="shared/base-rule.sch"/>
      <sch:assert test="@id">x</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	schema, err := Parse(strings.NewReader(doc), Config{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	extends := schema.Patterns[0].Rules[0].Extends
	if len(extends) != 2 {
		t.Fatalf("extends = %d, want 2", len(extends))
	}
	if extends[0].Rule != "base" || extends[0].Href != "" {
		t.Errorf("extends[0] = %+v", extends[0])
	}
	if extends[1].Href != "shared/base-rule.sch" || extends[1].Rule != "" {
		t.Errorf("extends[1] = %+v", extends[1])
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code schemaerrors.ErrorCode
	}{
		{
			name: "unknown namespace",
			doc:  `<schema xmlns="urn:not-schematron"/>`,
			code: schemaerrors.ErrUnknownNamespace,
		},
		{
			name: "rule without context",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern><sch:rule><sch:assert test="true()">x</sch:assert></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrMissingAttribute,
		},
		{
			name: "assert without test",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern><sch:rule context="a"><sch:assert>x</sch:assert></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrMissingAttribute,
		},
		{
			name: "foreign attribute",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" xmlns:x="urn:x" x:extra="1">
  <sch:pattern><sch:rule context="a"><sch:assert test="true()">x</sch:assert></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrForeignAttribute,
		},
		{
			name: "bad query binding",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" queryBinding="xquery"/>`,
			code: schemaerrors.ErrQueryBinding,
		},
		{
			name: "extends with rule and href",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern><sch:rule context="a"><sch:extends rule="base" href="base.sch"/></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrMalformedMarkup,
		},
		{
			name: "extends without target",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern><sch:rule context="a"><sch:extends/></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrMissingAttribute,
		},
		{
			name: "unexpected attribute on ns",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:ns prefix="inv" uri="urn:invoice" extra="1"/>
</sch:schema>`,
			code: schemaerrors.ErrForeignAttribute,
		},
		{
			name: "unexpected attribute on active",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:phase id="ph"><sch:active pattern="p" mode="x"/></sch:phase>
  <sch:pattern id="p"><sch:rule context="a"><sch:assert test="b">x</sch:assert></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrForeignAttribute,
		},
		{
			name: "unexpected attribute on extends",
			doc: `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern><sch:rule context="a"><sch:extends rule="base" mode="x"/></sch:rule></sch:pattern>
</sch:schema>`,
			code: schemaerrors.ErrForeignAttribute,
		},
		{
			name: "malformed markup",
			doc:  `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">`,
			code: schemaerrors.ErrMalformedMarkup,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc), Config{})
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			problems, ok := schemaerrors.AsSchemaErrors(err)
			if !ok {
				t.Fatalf("Parse() error = %v, want schema errors", err)
			}
			found := false
			for _, p := range problems {
				if p.Code == string(tc.code) {
					found = true
				}
			}
			if !found {
				t.Errorf("Parse() errors = %v, want code %s", problems, tc.code)
			}
		})
	}
}

func TestParseForeignAttributesAllowed(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" xmlns:x="urn:x" x:extra="1">
  <sch:pattern><sch:rule context="a"><sch:assert test="true()">x</sch:assert></sch:rule></sch:pattern>
</sch:schema>`

	if _, err := Parse(strings.NewReader(doc), Config{AllowForeignAttributes: true}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestParseFragmentKinds(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want func(*Fragment) bool
	}{
		{
			name: "pattern",
			doc: `<sch:pattern xmlns:sch="http://purl.oclc.org/dsdl/schematron" id="p">
  <sch:rule context="a"><sch:assert test="b">x</sch:assert></sch:rule>
</sch:pattern>`,
			want: func(f *Fragment) bool { return f.Pattern != nil && f.Pattern.ID == "p" },
		},
		{
			name: "rule",
			doc:  `<sch:rule xmlns:sch="http://purl.oclc.org/dsdl/schematron" context="a"><sch:assert test="b">x</sch:assert></sch:rule>`,
			want: func(f *Fragment) bool { return f.Rule != nil && f.Rule.Context == "a" },
		},
		{
			name: "phase",
			doc:  `<sch:phase xmlns:sch="http://purl.oclc.org/dsdl/schematron" id="q"><sch:active pattern="p"/></sch:phase>`,
			want: func(f *Fragment) bool { return f.Phase != nil && f.Phase.ID == "q" },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frag, err := ParseFragment(strings.NewReader(tc.doc), Config{})
			if err != nil {
				t.Fatalf("ParseFragment() error = %v", err)
			}
			if !tc.want(frag) {
				t.Errorf("ParseFragment() = %+v", frag)
			}
		})
	}
}

func TestCollapseSpace(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"  leading", " leading"},
		{"trailing  ", "trailing "},
		{"a\n\t b", "a b"},
		{"   ", " "},
		{"", ""},
	}
	for _, tc := range cases {
		if got := collapseSpace(tc.in); got != tc.want {
			t.Errorf("collapseSpace(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
