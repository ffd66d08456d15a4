package schematron

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/jacoelho/schematron/errors"
	"github.com/jacoelho/schematron/internal/parser"
	"github.com/jacoelho/schematron/internal/query"
	"github.com/jacoelho/schematron/internal/resolver"
	"github.com/jacoelho/schematron/internal/runtime"
	"github.com/jacoelho/schematron/internal/validator"
	"github.com/jacoelho/schematron/svrl"
)

// Phase selection literals accepted by WithPhase.
const (
	PhaseAll     = validator.PhaseAll
	PhaseDefault = validator.PhaseDefault
)

// Engine compiles a schema once and validates many documents efficiently.
// It is safe for concurrent use by multiple goroutines.
type Engine struct {
	rt   *runtime.Schema
	pool sync.Pool
}

// Session holds per-document state for validation.
// Sessions are not safe for concurrent use.
type Session struct {
	engine  *Engine
	session *validator.Session
}

// CompileOption configures schema compilation.
type CompileOption interface{ apply(*compileOptions) }

// ValidateOption configures validation.
type ValidateOption interface{ apply(*validateOptions) }

type compileOptions struct {
	fsys         fs.FS
	baseHref     string
	allowForeign bool
	functions    map[string]query.Function
}

type validateOptions struct {
	phase string
}

type compileOptionFunc func(*compileOptions)

func (f compileOptionFunc) apply(cfg *compileOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

type validateOptionFunc func(*validateOptions)

func (f validateOptionFunc) apply(cfg *validateOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithFS sets the filesystem used to resolve include references.
func WithFS(fsys fs.FS) CompileOption {
	return compileOptionFunc(func(cfg *compileOptions) {
		cfg.fsys = fsys
	})
}

// WithBaseHref sets the directory include hrefs are resolved against for
// reader-based compilation.
func WithBaseHref(base string) CompileOption {
	return compileOptionFunc(func(cfg *compileOptions) {
		cfg.baseHref = base
	})
}

// WithAllowForeignAttributes accepts non-Schematron attributes on schema
// elements instead of rejecting them.
func WithAllowForeignAttributes(b bool) CompileOption {
	return compileOptionFunc(func(cfg *compileOptions) {
		cfg.allowForeign = b
	})
}

// WithFunction declares a custom function usable in schema expressions. The
// body is an XPath expression over the named parameters.
func WithFunction(name string, params []string, body string) CompileOption {
	return compileOptionFunc(func(cfg *compileOptions) {
		if cfg.functions == nil {
			cfg.functions = make(map[string]query.Function)
		}
		cfg.functions[name] = query.Function{Params: params, Body: body}
	})
}

// WithPhase selects the phase to validate with. The literals #ALL and
// #DEFAULT are accepted alongside declared phase ids.
func WithPhase(phase string) ValidateOption {
	return validateOptionFunc(func(cfg *validateOptions) {
		cfg.phase = phase
	})
}

// CompileFS compiles a schema from the given filesystem and root path.
func CompileFS(fsys fs.FS, root string, opts ...CompileOption) (*Engine, error) {
	if fsys == nil {
		return nil, fmt.Errorf("compile schema: nil fs")
	}
	cfg := applyCompileOptions(opts)
	if cfg.fsys == nil {
		cfg.fsys = fsys
	}
	if cfg.baseHref == "" {
		cfg.baseHref = path.Dir(root)
	}

	f, err := fsys.Open(root)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", root, err)
	}
	defer f.Close()

	e, err := compile(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", root, err)
	}
	return e, nil
}

// CompileSchema compiles a schema from an io.Reader. Includes are resolved
// against the filesystem given with WithFS, relative to WithBaseHref.
func CompileSchema(r io.Reader, opts ...CompileOption) (*Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("compile schema: nil reader")
	}
	cfg := applyCompileOptions(opts)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	e, err := compile(bytes.NewReader(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return e, nil
}

func compile(r io.Reader, cfg compileOptions) (*Engine, error) {
	parserCfg := parser.Config{AllowForeignAttributes: cfg.allowForeign}
	schema, err := parser.Parse(r, parserCfg)
	if err != nil {
		return nil, err
	}
	err = resolver.Resolve(schema, resolver.Config{
		FS:     cfg.fsys,
		Base:   cfg.baseHref,
		Parser: parserCfg,
	})
	if err != nil {
		return nil, err
	}
	rt, err := runtime.Build(schema, runtime.Config{Functions: cfg.functions})
	if err != nil {
		return nil, err
	}
	return newEngine(rt), nil
}

// Validate validates a document using a pooled session.
func (e *Engine) Validate(r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	return e.ValidateContext(context.Background(), r, opts...)
}

// ValidateContext validates a document, honouring cancellation between
// rules.
func (e *Engine) ValidateContext(ctx context.Context, r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	if e == nil || e.rt == nil {
		return nil, schemaNotLoadedError()
	}
	if r == nil {
		return nil, nilReaderError()
	}

	cfg := applyValidateOptions(opts)
	session := e.acquire()
	report, err := session.Validate(ctx, r, cfg.phase)
	e.release(session)
	return report, err
}

// NewSession returns a new, unpooled session bound to this engine.
func (e *Engine) NewSession() *Session {
	if e == nil {
		return nil
	}
	return &Session{
		engine:  e,
		session: validator.NewSession(e.rt),
	}
}

// Validate validates a document using this session.
func (s *Session) Validate(r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	return s.ValidateContext(context.Background(), r, opts...)
}

// ValidateContext validates a document with a context using this session.
func (s *Session) ValidateContext(ctx context.Context, r io.Reader, opts ...ValidateOption) (*svrl.Report, error) {
	if s == nil || s.engine == nil || s.engine.rt == nil {
		return nil, schemaNotLoadedError()
	}
	if r == nil {
		return nil, nilReaderError()
	}
	if s.session == nil {
		s.session = validator.NewSession(s.engine.rt)
	}
	cfg := applyValidateOptions(opts)
	return s.session.Validate(ctx, r, cfg.phase)
}

// Reset clears per-document session state.
func (s *Session) Reset() {
	if s == nil || s.session == nil {
		return
	}
	s.session.Reset()
}

func newEngine(rt *runtime.Schema) *Engine {
	e := &Engine{
		rt: rt,
	}
	e.pool.New = func() any {
		return validator.NewSession(rt)
	}
	return e
}

func (e *Engine) acquire() *validator.Session {
	if e == nil {
		return nil
	}
	if v := e.pool.Get(); v != nil {
		session := v.(*validator.Session)
		return session
	}
	return validator.NewSession(e.rt)
}

func (e *Engine) release(s *validator.Session) {
	if e == nil || s == nil {
		return
	}
	s.Reset()
	e.pool.Put(s)
}

func schemaNotLoadedError() error {
	return errors.SchemaList{errors.NewSchema(errors.ErrSchemaNotLoaded, "schema not loaded")}
}

func nilReaderError() error {
	return errors.SchemaList{errors.NewSchema(errors.ErrXMLParse, "nil reader")}
}

func applyCompileOptions(opts []CompileOption) compileOptions {
	var cfg compileOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

func applyValidateOptions(opts []ValidateOption) validateOptions {
	var cfg validateOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}
