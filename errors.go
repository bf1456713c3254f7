package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue indicates a raw string that cannot be coerced to the
	// declared type of its key.
	ErrInvalidValue = errors.New("invalid config value")

	// ErrDerivation indicates a computed-default function failed given
	// otherwise valid inputs.
	ErrDerivation = errors.New("config derivation failed")

	// ErrMissingCollectionRoot indicates the config file's parent directory
	// does not exist at write time.
	ErrMissingCollectionRoot = errors.New("collection directory does not exist")

	// ErrWriteRollback indicates a write failed post-validation and the config
	// file was restored to its previous contents.
	ErrWriteRollback = errors.New("config write rolled back")

	// ErrUnknownKey indicates a name that canonicalizes to no declared key.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrSchema indicates an invalid schema declaration (duplicate key,
	// duplicate alias, alias shadowing a canonical name).
	ErrSchema = errors.New("invalid config schema")
)

// ValueError reports a coercion failure for a single key, carrying the
// offending raw value so the caller can point at the bad input.
type ValueError struct {
	Key string
	Raw string
	Err error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid configuration option %s=%q: %v", e.Key, e.Raw, e.Err)
}

// Unwrap exposes both the ErrInvalidValue sentinel and the underlying cause
// to errors.Is/errors.As.
func (e *ValueError) Unwrap() []error { return []error{ErrInvalidValue, e.Err} }

// DerivationError reports a derived key whose function failed.
type DerivationError struct {
	Key string
	Err error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("failed to derive configuration value %s: %v", e.Key, e.Err)
}

func (e *DerivationError) Unwrap() []error { return []error{ErrDerivation, e.Err} }
