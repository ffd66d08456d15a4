package query

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"

	schemaerrors "github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/dom"
)

func TestExpandVariables(t *testing.T) {
	env := &Env{Variables: map[string]string{
		"limit":    "(100)",
		"maxTotal": "($limit * 2)",
	}}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "@price <= $limit", "@price <= (100)"},
		{"inside call", "number($limit)", "number((100))"},
		{"not in string literal", "concat('$limit', $limit)", "concat('$limit', (100))"},
		{"value substituted verbatim", "$maxTotal", "($limit * 2)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Expand(tc.in, env)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Expand(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExpandUndefinedVariable(t *testing.T) {
	_, err := Expand("@a = $missing", &Env{})
	if err == nil {
		t.Fatal("Expand() error = nil, want error")
	}
	problems, ok := schemaerrors.AsSchemaErrors(err)
	if !ok || problems[0].Code != string(schemaerrors.ErrExpressionSyntax) {
		t.Errorf("Expand() error = %v, want %s", err, schemaerrors.ErrExpressionSyntax)
	}
}

func TestExpandFunctionMacro(t *testing.T) {
	env := &Env{Functions: map[string]Function{
		"double": {Params: []string{"n"}, Body: "$n * 2"},
	}}

	got, err := Expand("double(@count) > 10", env)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := "((@count) * 2) > 10"
	if got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandRecursionLimit(t *testing.T) {
	env := &Env{Functions: map[string]Function{
		"loop": {Params: nil, Body: "loop()"},
	}}
	if _, err := Expand("loop()", env); err == nil {
		t.Fatal("Expand() error = nil, want recursion error")
	}
}

func TestQuoteLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", `"it's"`},
		{`say "hi"`, `'say "hi"'`},
		{`both ' and "`, `concat('both ', "'", ' and "')`},
	}
	for _, tc := range cases {
		if got := QuoteLiteral(tc.in); got != tc.want {
			t.Errorf("QuoteLiteral(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRooted(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"book", "//book"},
		{"/catalog/book", "/catalog/book"},
		{"book | magazine", "//book | //magazine"},
		{"(book)", "(book)"},
	}
	for _, tc := range cases {
		if got := Rooted(tc.in); got != tc.want {
			t.Errorf("Rooted(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func evalDoc(t *testing.T, docXML string) (*dom.Document, *EvalContext) {
	t.Helper()
	d, err := dom.Parse(strings.NewReader(docXML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return d, &EvalContext{Doc: d, Node: d.Root()}
}

func TestEvalCoercions(t *testing.T) {
	const doc = `<order><item price="10"/><item price="20"/></order>`
	_, ctx := evalDoc(t, doc)

	cases := []struct {
		expr     string
		wantBool bool
		wantStr  string
	}{
		{"count(//item) = 2", true, "true"},
		{"count(//item)", true, "2"},
		{"//item[1]/@price", true, "10"},
		{"//missing", false, ""},
		{"''", false, ""},
	}
	for _, tc := range cases {
		expr, err := Compile(tc.expr, &Env{})
		if err != nil {
			t.Fatalf("Compile(%q) error = %v", tc.expr, err)
		}
		v, err := expr.Eval(ctx)
		if err != nil {
			t.Fatalf("Eval(%q) error = %v", tc.expr, err)
		}
		if v.AsBool() != tc.wantBool {
			t.Errorf("Eval(%q).AsBool() = %v, want %v", tc.expr, v.AsBool(), tc.wantBool)
		}
		if v.AsString() != tc.wantStr {
			t.Errorf("Eval(%q).AsString() = %q, want %q", tc.expr, v.AsString(), tc.wantStr)
		}
	}
}

func TestEvalWithNamespaces(t *testing.T) {
	const doc = `<inv:invoice xmlns:inv="urn:invoice"><inv:total>50</inv:total></inv:invoice>`
	_, ctx := evalDoc(t, doc)

	env := &Env{Namespaces: map[string]string{"inv": "urn:invoice"}}
	expr, err := Compile("number(//inv:total) = 50", env)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	v, err := expr.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if !v.AsBool() {
		t.Error("Eval() = false, want true")
	}
}

func TestSelectNodesAttributeIdentity(t *testing.T) {
	const doc = `<order><item price="10"/></order>`
	_, ctx := evalDoc(t, doc)

	expr, err := CompileRooted("item/@price", &Env{})
	if err != nil {
		t.Fatalf("CompileRooted() error = %v", err)
	}
	nodes, err := expr.SelectNodes(ctx)
	if err != nil {
		t.Fatalf("SelectNodes() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("SelectNodes() = %d nodes, want 1", len(nodes))
	}
	if nodes[0].Type != xmlquery.AttributeNode || nodes[0].Data != "price" {
		t.Errorf("node = %+v, want price attribute", nodes[0])
	}
	if dom.KeyOf(nodes[0]).Node == nil {
		t.Error("attribute node has no owning element")
	}
}

func TestKeyLookup(t *testing.T) {
	const doc = `<catalog>
  <book id="a"><ref to="b"/></book>
  <book id="b"/>
</catalog>`
	d, _ := evalDoc(t, doc)

	env := &Env{Keys: map[string]Key{
		"book-by-id": {Match: "book", Use: "@id"},
	}}
	prog, err := CompileKey("book-by-id", "book", "@id", env)
	if err != nil {
		t.Fatalf("CompileKey() error = %v", err)
	}
	keys := map[string]*KeyProgram{"book-by-id": prog}

	expr, err := Compile(`key('book-by-id', //ref/@to)`, env)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	ctx := &EvalContext{Doc: d, Node: d.Root(), Keys: keys}
	v, err := expr.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if !v.AsBool() {
		t.Error("key lookup found no node, want book[b]")
	}
	nodes, err := expr.SelectNodes(ctx)
	if err != nil {
		t.Fatalf("SelectNodes() error = %v", err)
	}
	if len(nodes) != 1 || nodes[0].SelectAttr("id") != "b" {
		t.Errorf("key lookup = %+v, want the book with id b", nodes)
	}
}

func TestKeyUndeclared(t *testing.T) {
	_, err := Compile(`key('nope', 'x')`, &Env{})
	if err == nil {
		t.Fatal("Compile() error = nil, want error")
	}
	problems, ok := schemaerrors.AsSchemaErrors(err)
	if !ok || problems[0].Code != string(schemaerrors.ErrUnresolvedReference) {
		t.Errorf("Compile() error = %v, want %s", err, schemaerrors.ErrUnresolvedReference)
	}
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile("@a ==", &Env{})
	if err == nil {
		t.Fatal("Compile() error = nil, want error")
	}
	problems, ok := schemaerrors.AsSchemaErrors(err)
	if !ok || problems[0].Code != string(schemaerrors.ErrExpressionSyntax) {
		t.Errorf("Compile() error = %v, want %s", err, schemaerrors.ErrExpressionSyntax)
	}
}
