package config

import (
	"fmt"
	"strings"
)

// DefaultFunc computes a key's default from everything resolved so far.
// Functions must be pure and may only read keys declared strictly before their
// own (enforced by the schema resolution tests, not by a runtime graph solver).
// Reading an unresolved key through the Must* getters aborts the pass with a
// DerivationError.
type DefaultFunc func(c *Snapshot) any

// Key declares a base configuration entry: resolved from environment, config
// file, or default, in that order.
type Key struct {
	Name    string
	Kind    Kind
	Default any         // static default, used when DefaultFunc is nil
	Func    DefaultFunc // computed default over earlier keys
	Aliases []string    // deprecated names accepted in any source
}

// Section is an ordered group of base keys. Membership determines which
// section of the config file a key is persisted under; it carries no
// precedence semantics.
type Section struct {
	Name string
	Keys []Key
}

// Derived declares a computed entry, evaluated after all base keys in
// declaration order. A derived key may intentionally reuse a base key's name,
// shadowing its resolved value.
type Derived struct {
	Name string
	Func DefaultFunc
}

// Schema is the validated, ordered set of all declarations plus the alias
// index built from them. Construct with NewSchema; a zero Schema is unusable.
type Schema struct {
	sections  []Section
	derived   []Derived
	aliases   map[string]string // alias -> canonical, upper-case
	sectionOf map[string]string // canonical base key -> section name
	kinds     map[string]Kind
}

// NewSchema validates the declarations and builds the alias index.
// Duplicate canonical names, duplicate aliases, and aliases that collide with
// canonical names are schema errors, reported at construction.
func NewSchema(sections []Section, derived []Derived) (*Schema, error) {
	s := &Schema{
		sections:  sections,
		derived:   derived,
		aliases:   make(map[string]string),
		sectionOf: make(map[string]string),
		kinds:     make(map[string]Kind),
	}

	for _, sec := range sections {
		for _, key := range sec.Keys {
			name := strings.ToUpper(strings.TrimSpace(key.Name))
			if name != key.Name {
				return nil, fmt.Errorf("%w: key %q must be declared upper-case", ErrSchema, key.Name)
			}
			if _, dup := s.sectionOf[name]; dup {
				return nil, fmt.Errorf("%w: key %s declared twice", ErrSchema, name)
			}
			s.sectionOf[name] = sec.Name
			s.kinds[name] = key.Kind
		}
	}

	for _, sec := range sections {
		for _, key := range sec.Keys {
			for _, alias := range key.Aliases {
				a := strings.ToUpper(strings.TrimSpace(alias))
				if _, isKey := s.sectionOf[a]; isKey {
					return nil, fmt.Errorf("%w: alias %s of %s collides with a declared key", ErrSchema, a, key.Name)
				}
				if prev, dup := s.aliases[a]; dup {
					return nil, fmt.Errorf("%w: alias %s declared for both %s and %s", ErrSchema, a, prev, key.Name)
				}
				s.aliases[a] = key.Name
			}
		}
	}

	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for package-level
// schema declarations, where an invalid schema is a build defect.
func MustSchema(sections []Section, derived []Derived) *Schema {
	s, err := NewSchema(sections, derived)
	if err != nil {
		panic(err)
	}
	return s
}

// Canonicalize maps any accepted spelling of a key (legacy alias, mixed case,
// stray whitespace) to its canonical upper-case name. Unknown names pass
// through normalized, so callers can distinguish "unknown" via SectionOf.
func (s *Schema) Canonicalize(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if canonical, ok := s.aliases[n]; ok {
		return canonical
	}
	return n
}

// SectionOf returns the config-file section a canonical base key belongs to.
func (s *Schema) SectionOf(canonical string) (string, bool) {
	sec, ok := s.sectionOf[canonical]
	return sec, ok
}

// KindOf returns the declared kind of a canonical base key.
func (s *Schema) KindOf(canonical string) (Kind, bool) {
	k, ok := s.kinds[canonical]
	return k, ok
}

// Keys returns all canonical base key names in declaration order.
func (s *Schema) Keys() []string {
	names := make([]string, 0, len(s.sectionOf))
	for _, sec := range s.sections {
		for _, key := range sec.Keys {
			names = append(names, key.Name)
		}
	}
	return names
}
