package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// rawSources holds the two flat string maps a resolution pass probes.
// They are built fresh for every pass and discarded afterwards; nothing is
// cached between passes.
type rawSources struct {
	env  map[string]string
	file map[string]string
}

// readSources re-reads the environment and re-parses the config file.
// A missing config file yields an empty file map, not an error.
func readSources(environ func() []string, filePath string) (*rawSources, error) {
	src := &rawSources{
		env:  environMap(environ()),
		file: make(map[string]string),
	}

	if filePath == "" {
		return src, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return src, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}

	vars, err := parseConfFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
	}
	src.file = vars
	return src, nil
}

// environMap converts KEY=VALUE environ entries into a flat map. Keys are
// compared case-sensitively against canonical upper-case key names; the
// convention is that all declared keys are upper-case.
func environMap(entries []string) map[string]string {
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		env[key] = value
	}
	return env
}

// parseConfFile flattens the sectioned KEY=VALUE file into one namespace.
// Section membership is informational only; keys are upper-cased on flatten
// so canonical probing works regardless of how the file spells them.
func parseConfFile(data []byte) (map[string]string, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string)
	for _, sec := range f.Sections() {
		for _, key := range sec.Keys() {
			vars[strings.ToUpper(key.Name())] = key.Value()
		}
	}
	return vars, nil
}

// lookup probes the sources for a key under all of its accepted names.
// The environment is scanned across every probed name before the file is
// consulted, so an env-sourced alias still beats a file-sourced canonical
// value. A key counts as found only when the source holds a non-empty string.
func (src *rawSources) lookup(names []string) (string, bool) {
	for _, name := range names {
		if v, ok := src.env[name]; ok && v != "" {
			return v, true
		}
	}
	for _, name := range names {
		if v, ok := src.file[name]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
