package config

import (
	"strings"

	"go.uber.org/zap"
)

// resolve runs one full, cold resolution pass: fresh source maps, all base
// keys in declaration order, then all derived keys in declaration order.
// It returns the complete snapshot or the first error; it never publishes
// partial state.
func (c *Config) resolve() (*Snapshot, error) {
	src, err := readSources(c.environ, c.filePath)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot()

	for _, sec := range c.schema.sections {
		for _, key := range sec.Keys {
			value, err := resolveBase(key, snap, src)
			if err != nil {
				c.log.Error("config resolution failed",
					zap.String("key", key.Name), zap.Error(err))
				return nil, err
			}
			snap.values[key.Name] = value
		}
	}

	for _, d := range c.schema.derived {
		value, err := evalDerived(d, snap)
		if err != nil {
			c.log.Error("config resolution failed",
				zap.String("key", d.Name), zap.Error(err))
			return nil, err
		}
		snap.values[d.Name] = value
	}

	return snap, nil
}

// resolveBase resolves one base key: probe env then file under the canonical
// name and all aliases, coerce what was found, or fall back to the default.
// Computed defaults see only keys declared before this one.
func resolveBase(key Key, soFar *Snapshot, src *rawSources) (any, error) {
	names := make([]string, 0, 1+len(key.Aliases))
	names = append(names, key.Name)
	for _, alias := range key.Aliases {
		names = append(names, strings.ToUpper(strings.TrimSpace(alias)))
	}

	if raw, found := src.lookup(names); found {
		return coerce(key.Name, raw, key.Kind)
	}

	if key.Func != nil {
		return callDefault(key.Name, key.Func, soFar)
	}
	return key.Default, nil
}

// evalDerived evaluates one derived key against everything resolved so far.
func evalDerived(d Derived, soFar *Snapshot) (any, error) {
	return callDefault(d.Name, d.Func, soFar)
}

// derivationPanic carries a failure raised by Fail out of a default function.
type derivationPanic struct {
	err error
}

// Fail aborts the in-progress resolution pass, reporting err as the cause of
// the DerivationError for the key currently being computed. It must only be
// called from inside a DefaultFunc.
func Fail(err error) {
	panic(&derivationPanic{err: err})
}

// callDefault invokes a default function, converting strict-getter lookup
// panics and Fail calls into DerivationErrors. Any other panic is a
// programming error and propagates.
func callDefault(key string, fn DefaultFunc, soFar *Snapshot) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch failure := r.(type) {
			case *lookupError:
				err = &DerivationError{Key: key, Err: failure}
			case *derivationPanic:
				err = &DerivationError{Key: key, Err: failure.err}
			default:
				panic(r)
			}
		}
	}()
	return fn(soFar), nil
}
