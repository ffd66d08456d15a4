package schematron_test

import (
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/jacoelho/schematron"
)

func TestSchemaValidateConcurrent(t *testing.T) {
	schemaXML := `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="items">
    <sch:rule context="//item">
      <sch:assert test="number(.) &gt; 0">Items must be positive.</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	docXML := `<?xml version="1.0"?>
<root>
  <item>1</item>
  <item>2</item>
  <item>3</item>
</root>`

	fsys := fstest.MapFS{
		"schema.sch": &fstest.MapFile{Data: []byte(schemaXML)},
	}
	schema, err := schematron.Load(fsys, "schema.sch")
	if err != nil {
		t.Fatalf("Load schema: %v", err)
	}

	const goroutines = 8
	const iterations = 25

	errCh := make(chan error, goroutines*iterations)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				report, err := schema.Validate(strings.NewReader(docXML))
				if err != nil {
					errCh <- err
					return
				}
				if !report.Valid() {
					errCh <- errInvalid(report.String())
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Validate: %v", err)
	}
}

type errInvalid string

func (e errInvalid) Error() string { return string(e) }
