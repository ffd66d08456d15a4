package svrl

import (
	"encoding/xml"
	"io"
	"strings"
)

// WriteXML serializes the report as an SVRL document. Output is
// deterministic: identical reports serialize to identical bytes.
// Evaluation errors are emitted as failed-assert elements with
// role="evaluation-error" so downstream SVRL consumers see them without
// needing a vocabulary extension.
func (r *Report) WriteXML(w io.Writer) error {
	b := &writer{}
	b.open("svrl:schematron-output",
		attr{"xmlns:svrl", Namespace},
		attr{"title", r.Title},
		attr{"phase", r.Phase},
		attr{"schemaVersion", r.SchemaVersion},
	)
	for _, ns := range r.Namespaces {
		b.empty("svrl:ns-prefix-in-attribute-values", attr{"prefix", ns.Prefix}, attr{"uri", ns.URI})
	}
	for _, ev := range r.events {
		switch {
		case ev.Pattern != nil:
			b.empty("svrl:active-pattern", attr{"id", ev.Pattern.ID}, attr{"name", ev.Pattern.Name})
		case ev.Rule != nil:
			b.empty("svrl:fired-rule",
				attr{"id", ev.Rule.ID},
				attr{"context", ev.Rule.Context},
				attr{"flag", ev.Rule.Flag},
				attr{"role", ev.Rule.Role},
			)
		case ev.Finding != nil:
			writeFinding(b, ev.Finding)
		}
	}
	b.close("svrl:schematron-output")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFinding(b *writer, f *Finding) {
	name := "svrl:failed-assert"
	role := f.Role
	if f.Kind == SuccessfulReport {
		name = "svrl:successful-report"
	}
	if f.Kind == EvalError {
		role = "evaluation-error"
	}
	b.open(name,
		attr{"id", f.CheckID},
		attr{"test", f.Test},
		attr{"location", f.Location},
		attr{"flag", f.Flag},
		attr{"role", role},
	)
	b.text("svrl:text", f.Text)
	for _, d := range f.Diagnostics {
		b.open("svrl:diagnostic-reference", attr{"diagnostic", d.ID})
		b.text("svrl:text", d.Text)
		b.close("svrl:diagnostic-reference")
	}
	b.close(name)
}

type attr struct {
	name  string
	value string
}

// writer builds indented XML with attributes in the order given, skipping
// empty attribute values.
type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) String() string {
	return w.sb.String()
}

func (w *writer) open(name string, attrs ...attr) {
	w.tag(name, attrs, ">")
	w.depth++
}

func (w *writer) close(name string) {
	w.depth--
	w.indent()
	w.sb.WriteString("</" + name + ">\n")
}

func (w *writer) empty(name string, attrs ...attr) {
	w.tag(name, attrs, "/>")
}

func (w *writer) text(name, content string) {
	w.indent()
	w.sb.WriteString("<" + name + ">")
	w.sb.WriteString(escapeText(content))
	w.sb.WriteString("</" + name + ">\n")
}

func (w *writer) tag(name string, attrs []attr, end string) {
	w.indent()
	w.sb.WriteString("<" + name)
	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		w.sb.WriteString(" " + a.name + `="` + escapeText(a.value) + `"`)
	}
	w.sb.WriteString(end + "\n")
}

func (w *writer) indent() {
	for i := 0; i < w.depth; i++ {
		w.sb.WriteString("  ")
	}
}

func escapeText(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
