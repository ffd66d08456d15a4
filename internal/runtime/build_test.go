package runtime

import (
	"strings"
	"testing"

	schemaerrors "github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/parser"
	"github.com/jacoelho/schematron/internal/query"
	"github.com/jacoelho/schematron/internal/resolver"
)

func buildString(t *testing.T, doc string, cfg Config) *Schema {
	t.Helper()
	rt, err := buildErr(t, doc, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return rt
}

func buildErr(t *testing.T, doc string, cfg Config) (*Schema, error) {
	t.Helper()
	schema, err := parser.Parse(strings.NewReader(doc), parser.Config{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := resolver.Resolve(schema, resolver.Config{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return Build(schema, cfg)
}

func TestBuildPhases(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron" defaultPhase="basic">
  <sch:phase id="basic"><sch:active pattern="first"/></sch:phase>
  <sch:phase id="full">
    <sch:active pattern="first"/>
    <sch:active pattern="second"/>
  </sch:phase>
  <sch:pattern id="first">
    <sch:rule context="a"><sch:assert test="b">x</sch:assert></sch:rule>
  </sch:pattern>
  <sch:pattern id="second">
    <sch:rule context="c"><sch:assert test="d">y</sch:assert></sch:rule>
  </sch:pattern>
</sch:schema>`

	rt := buildString(t, doc, Config{})

	if rt.DefaultPhase != "basic" {
		t.Errorf("DefaultPhase = %q, want basic", rt.DefaultPhase)
	}
	if len(rt.All.Patterns) != 2 {
		t.Errorf("All.Patterns = %d, want 2", len(rt.All.Patterns))
	}
	basic, ok := rt.Phases["basic"]
	if !ok || len(basic.Patterns) != 1 || basic.Patterns[0].ID != "first" {
		t.Errorf("phase basic = %+v", basic)
	}
	full, ok := rt.Phases["full"]
	if !ok || len(full.Patterns) != 2 {
		t.Errorf("phase full = %+v", full)
	}
}

func TestBuildLetShadowing(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:let name="limit" value="10"/>
  <sch:pattern id="p">
    <sch:let name="limit" value="$limit * 2"/>
    <sch:rule context="item">
      <sch:let name="limit" value="$limit + 1"/>
      <sch:assert test="@n &lt; $limit">x</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	rt := buildString(t, doc, Config{})

	// each inner let sees only the bindings declared before it
	test := rt.All.Patterns[0].Rules[0].Checks[0].Test
	if test.Source != "@n < $limit" {
		t.Errorf("check source = %q", test.Source)
	}
}

func TestBuildUndefinedVariable(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="p">
    <sch:rule context="item"><sch:assert test="@n &lt; $nowhere">x</sch:assert></sch:rule>
  </sch:pattern>
</sch:schema>`

	_, err := buildErr(t, doc, Config{})
	if err == nil {
		t.Fatal("Build() error = nil, want error")
	}
	problems, ok := schemaerrors.AsSchemaErrors(err)
	if !ok {
		t.Fatalf("Build() error = %v, want schema errors", err)
	}
	if problems[0].Code != string(schemaerrors.ErrExpressionSyntax) {
		t.Errorf("code = %s, want %s", problems[0].Code, schemaerrors.ErrExpressionSyntax)
	}
	if problems[0].Pattern != "p" {
		t.Errorf("error not annotated with pattern: %+v", problems[0])
	}
}

func TestBuildUndefinedFunction(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="p">
    <sch:rule context="item"><sch:assert test="checksum-valid(@code)">x</sch:assert></sch:rule>
  </sch:pattern>
</sch:schema>`

	// undeclared functions fail at build time, not during validation
	if _, err := buildErr(t, doc, Config{}); err == nil {
		t.Fatal("Build() error = nil, want unknown function error")
	}

	cfg := Config{Functions: map[string]query.Function{
		"checksum-valid": {Params: []string{"code"}, Body: "string-length($code) = 4"},
	}}
	if _, err := buildErr(t, doc, cfg); err != nil {
		t.Fatalf("Build() with function declared, error = %v", err)
	}
}

func TestBuildDiagnostics(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="p">
    <sch:rule context="item">
      <sch:assert test="@n" diagnostics="why">x</sch:assert>
    </sch:rule>
  </sch:pattern>
  <sch:diagnostics>
    <sch:diagnostic id="why">The item <sch:name/> has no n attribute.</sch:diagnostic>
  </sch:diagnostics>
</sch:schema>`

	rt := buildString(t, doc, Config{})
	check := rt.All.Patterns[0].Rules[0].Checks[0]
	if len(check.Diagnostics) != 1 || check.Diagnostics[0].ID != "why" {
		t.Fatalf("diagnostics = %+v", check.Diagnostics)
	}
	if len(check.Diagnostics[0].Message.Parts) != 3 {
		t.Errorf("diagnostic parts = %+v", check.Diagnostics[0].Message.Parts)
	}
}

func TestBuildKeys(t *testing.T) {
	const doc = `<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron"
  xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:key name="book-by-id" match="book" use="@id"/>
  <sch:pattern id="p">
    <sch:rule context="ref">
      <sch:assert test="key('book-by-id', @to)">Dangling reference.</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	rt := buildString(t, doc, Config{})
	if _, ok := rt.Keys["book-by-id"]; !ok {
		t.Errorf("Keys = %v, want book-by-id", rt.Keys)
	}
}
