package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of value types a declared key can have. Adding a new
// kind is a deliberate schema change, not a runtime decision.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindStringList:
		return "string-list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// boolWords are the only strings accepted for bool keys, and the exact strings
// rejected for string keys to guard against type confusion in the source file.
var boolWords = map[string]bool{
	"true": true, "yes": true, "1": true,
	"false": false, "no": false, "0": false,
}

// coerce converts a raw source string into the typed value for kind.
// Failures are reported as *ValueError carrying key and the raw value.
// An unsupported kind is a programming error and panics.
func coerce(key, raw string, kind Kind) (any, error) {
	switch kind {
	case KindBool:
		v, known := boolWords[strings.ToLower(raw)]
		if !known {
			return nil, &ValueError{Key: key, Raw: raw, Err: errors.New("expected a boolean: true/false")}
		}
		return v, nil

	case KindInt:
		// Digits only: no sign, no whitespace, no decimal point.
		if raw == "" {
			return nil, &ValueError{Key: key, Raw: raw, Err: errors.New("expected an integer")}
		}
		for _, r := range raw {
			if r < '0' || r > '9' {
				return nil, &ValueError{Key: key, Raw: raw, Err: errors.New("expected an integer")}
			}
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ValueError{Key: key, Raw: raw, Err: errors.New("integer out of range")}
		}
		return n, nil

	case KindString:
		trimmed := strings.TrimSpace(raw)
		if _, looksBool := boolWords[strings.ToLower(trimmed)]; looksBool {
			return nil, &ValueError{Key: key, Raw: raw, Err: errors.New("expected a string")}
		}
		return trimmed, nil

	case KindStringList:
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, &ValueError{Key: key, Raw: raw, Err: fmt.Errorf("expected a JSON list of strings: %w", err)}
		}
		return list, nil
	}

	panic(fmt.Sprintf("config: unsupported kind %v for key %s", kind, key))
}
