package config

import (
	"fmt"

	"go.uber.org/zap"
)

// Builder provides a fluent interface for constructing a Config engine.
type Builder struct {
	file    string
	schema  *Schema
	hooks   *Hooks
	environ func() []string
	logger  *zap.Logger
	err     error
}

// NewBuilder creates a builder with the built-in schema, the real process
// environment, default hooks, and no logging.
func NewBuilder() *Builder {
	return &Builder{
		environ: defaultEnviron,
		logger:  zap.NewNop(),
	}
}

// WithFile sets the config file path. An empty path means no file source.
func (b *Builder) WithFile(path string) *Builder {
	b.file = path
	return b
}

// WithSchema replaces the built-in schema.
func (b *Builder) WithSchema(s *Schema) *Builder {
	if s == nil {
		b.err = fmt.Errorf("%w: nil schema", ErrSchema)
		return b
	}
	b.schema = s
	return b
}

// WithHooks overrides the environment probes used by the built-in schema's
// derived keys. Ignored when WithSchema supplies a custom schema.
func (b *Builder) WithHooks(h Hooks) *Builder {
	b.hooks = &h
	return b
}

// WithEnviron replaces the process environment source. Intended for tests.
func (b *Builder) WithEnviron(environ func() []string) *Builder {
	b.environ = environ
	return b
}

// WithLogger sets the logger for resolution and write diagnostics.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build constructs the engine and runs the initial resolution pass.
// The engine is returned only if that pass succeeds.
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}

	schema := b.schema
	if schema == nil {
		hooks := DefaultHooks()
		if b.hooks != nil {
			hooks = *b.hooks
		}
		var err error
		schema, err = DefaultSchema(hooks)
		if err != nil {
			return nil, err
		}
	}

	c := &Config{
		schema:   schema,
		filePath: b.file,
		environ:  b.environ,
		log:      b.logger,
	}

	if _, err := c.Load(); err != nil {
		return nil, fmt.Errorf("initial config resolution failed: %w", err)
	}
	return c, nil
}

// MustBuild is like Build but panics on error. Intended for program startup,
// where an unresolvable configuration is fatal.
func (b *Builder) MustBuild() *Config {
	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("config build failed: %v", err))
	}
	return c
}
