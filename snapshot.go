package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Snapshot is the immutable result of one resolution pass: a mapping from
// canonical key name to typed value. All declared keys are present after a
// successful pass. Snapshots are never mutated once published; a new pass
// produces a new Snapshot.
type Snapshot struct {
	values map[string]any
}

// lookupError marks a strict getter failure inside a derived-default function.
// The derived resolver recovers exactly this type into a DerivationError; any
// other panic propagates as the programming error it is.
type lookupError struct {
	key string
	err error
}

func (e *lookupError) Error() string {
	return fmt.Sprintf("config key %s: %v", e.key, e.err)
}

// Get returns the raw resolved value for a canonical key.
func (s *Snapshot) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key has been resolved in this snapshot.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys returns all resolved key names, sorted.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bool retrieves a boolean value by canonical key name.
func (s *Snapshot) Bool(key string) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return false, fmt.Errorf("config key not resolved: %s", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("config key %s holds %T, not bool", key, v)
	}
	return b, nil
}

// Int retrieves an integer value by canonical key name.
func (s *Snapshot) Int(key string) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("config key not resolved: %s", key)
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("config key %s holds %T, not int", key, v)
	}
	return n, nil
}

// String retrieves a string value by canonical key name.
func (s *Snapshot) String(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("config key not resolved: %s", key)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config key %s holds %T, not string", key, v)
	}
	return str, nil
}

// StringList retrieves a string-list value by canonical key name.
func (s *Snapshot) StringList(key string) ([]string, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("config key not resolved: %s", key)
	}
	list, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("config key %s holds %T, not []string", key, v)
	}
	return list, nil
}

// MustBool is the strict getter used inside derived-default functions.
// Missing keys and type mismatches abort the resolution pass.
func (s *Snapshot) MustBool(key string) bool {
	b, err := s.Bool(key)
	if err != nil {
		panic(&lookupError{key: key, err: err})
	}
	return b
}

// MustInt is the strict int getter for derived-default functions.
func (s *Snapshot) MustInt(key string) int {
	n, err := s.Int(key)
	if err != nil {
		panic(&lookupError{key: key, err: err})
	}
	return n
}

// MustString is the strict string getter for derived-default functions.
func (s *Snapshot) MustString(key string) string {
	str, err := s.String(key)
	if err != nil {
		panic(&lookupError{key: key, err: err})
	}
	return str
}

// MustStringList is the strict list getter for derived-default functions.
func (s *Snapshot) MustStringList(key string) []string {
	list, err := s.StringList(key)
	if err != nil {
		panic(&lookupError{key: key, err: err})
	}
	return list
}

// Scan decodes the snapshot into a struct or map via mapstructure, using the
// "config" tag. Input is weakly typed, so an int key can populate an int64
// field and a string key a fmt.Stringer, matching common consumer structs.
func (s *Snapshot) Scan(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "config",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot decoder: %w", err)
	}
	if err := decoder.Decode(s.values); err != nil {
		return fmt.Errorf("failed to scan snapshot into %T: %w", target, err)
	}
	return nil
}

func newSnapshot() *Snapshot {
	return &Snapshot{values: make(map[string]any)}
}
