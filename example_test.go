package schematron_test

import (
	"fmt"
	"strings"
	"testing/fstest"

	"github.com/jacoelho/schematron"
)

func ExampleLoad() {
	schemaXML := `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="structure">
    <sch:rule context="order">
      <sch:assert test="item">An order must contain at least one item.</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	fsys := fstest.MapFS{
		"orders.sch": &fstest.MapFile{Data: []byte(schemaXML)},
	}

	schema, err := schematron.Load(fsys, "orders.sch")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	_ = schema
	fmt.Println("Schema loaded successfully")
	// Output: Schema loaded successfully
}

func ExampleSchema_Validate() {
	schemaXML := `<?xml version="1.0"?>
<sch:schema xmlns:sch="http://purl.oclc.org/dsdl/schematron">
  <sch:pattern id="structure">
    <sch:rule context="person">
      <sch:assert test="name">A person must have a name.</sch:assert>
      <sch:assert test="age">A person must have an age.</sch:assert>
    </sch:rule>
  </sch:pattern>
</sch:schema>`

	schema, err := schematron.Compile(strings.NewReader(schemaXML))
	if err != nil {
		fmt.Printf("Error loading schema: %v\n", err)
		return
	}

	xmlDoc := `<?xml version="1.0"?>
<person>
  <name>John Doe</name>
</person>`

	report, err := schema.Validate(strings.NewReader(xmlDoc))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, finding := range report.Findings() {
		fmt.Printf("%s: %s\n", finding.Location, finding.Text)
	}
	fmt.Printf("valid: %v\n", report.Valid())
	// Output:
	// /person[1]: A person must have an age.
	// valid: false
}
