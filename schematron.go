// Package schematron compiles ISO Schematron schemas and validates XML
// documents against them, producing SVRL reports.
package schematron

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/svrl"
)

// Schema wraps a compiled schema with convenience methods.
type Schema struct {
	engine *Engine
}

// Load loads and compiles a schema from the given filesystem and location.
func Load(fsys fs.FS, location string, opts ...CompileOption) (*Schema, error) {
	engine, err := CompileFS(fsys, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", location, err)
	}
	return &Schema{engine: engine}, nil
}

// LoadFile loads and compiles a schema from a file path.
func LoadFile(path string, opts ...CompileOption) (*Schema, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	return Load(os.DirFS(dir), base, opts...)
}

// Compile compiles a schema from an io.Reader.
func Compile(r io.Reader, opts ...CompileOption) (*Schema, error) {
	engine, err := CompileSchema(r, opts...)
	if err != nil {
		return nil, err
	}
	return &Schema{engine: engine}, nil
}

// Validate validates a document against the schema.
func (s *Schema) Validate(r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	if s == nil || s.engine == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrSchemaNotLoaded, "schema not loaded")}
	}
	if r == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrXMLParse, "nil reader")}
	}
	return s.engine.Validate(r, opts...)
}

// ValidateContext validates a document, honouring cancellation between
// rules.
func (s *Schema) ValidateContext(ctx context.Context, r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	if s == nil || s.engine == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrSchemaNotLoaded, "schema not loaded")}
	}
	if r == nil {
		return nil, errors.SchemaList{errors.NewSchema(errors.ErrXMLParse, "nil reader")}
	}
	return s.engine.ValidateContext(ctx, r, opts...)
}

// ValidateFile validates an XML file against the schema.
func (s *Schema) ValidateFile(path string, opts ...ValidateOption) (report *svrl.Report, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open xml file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close xml file %s: %w", path, closeErr)
		}
	}()

	return s.Validate(f, opts...)
}

// Engine exposes the underlying engine for pooled or session validation.
func (s *Schema) Engine() *Engine {
	if s == nil {
		return nil
	}
	return s.engine
}
