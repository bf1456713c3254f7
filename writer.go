package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

// configHeader is written when the config file is created. Rewrites carry the
// leading comment block forward verbatim, outside the INI serializer.
const configHeader = `# This is the config file for your WebStash collection.
#
# You can add options here manually in INI format, or automatically by running:
#    webstash config --set KEY=VALUE
#
# If you modify this file manually, make sure to update your archive after by running:
#    webstash init
#
# A list of all possible config with documentation and examples can be found here:
#    https://github.com/webstash/webstash/wiki/Configuration

`

// fileLocks serializes writers per config file path. Concurrent Set calls on
// the same file would otherwise interleave backup/write/rollback steps.
var fileLocks sync.Map // path -> *sync.Mutex

func fileLock(path string) *sync.Mutex {
	lock, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Set persists the given key -> raw value assignments to the config file,
// then re-resolves everything against the new file as a validation gate.
//
// On success it publishes the new snapshot and returns the resolved values
// for exactly the requested keys (canonical names). On validation failure the
// file is restored byte-for-byte from the backup taken before any mutation,
// and the error chain contains ErrWriteRollback plus the underlying cause;
// post-rollback the file is indistinguishable from one never written to.
func (c *Config) Set(assignments map[string]string) (map[string]any, error) {
	if c.filePath == "" {
		return nil, errors.New("config: no config file path configured")
	}
	if len(assignments) == 0 {
		return map[string]any{}, nil
	}

	// Reject unknown keys before touching the file.
	canonical := make(map[string]string, len(assignments))
	for name, value := range assignments {
		key := c.schema.Canonicalize(name)
		if _, ok := c.schema.SectionOf(key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, name)
		}
		canonical[key] = value
	}

	lock := fileLock(c.filePath)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(c.filePath)
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMissingCollectionRoot, dir)
	}

	if _, err := os.Stat(c.filePath); errors.Is(err, os.ErrNotExist) {
		if err := atomicWriteFile(c.filePath, []byte(configHeader)); err != nil {
			return nil, err
		}
	}

	original, err := os.ReadFile(c.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", c.filePath, err)
	}

	// Scoped backup: it exists before any destructive step and is removed
	// only after the write is committed or rolled back.
	backupPath := c.filePath + ".bak"
	if err := atomicWriteFile(backupPath, original); err != nil {
		return nil, fmt.Errorf("failed to back up config file: %w", err)
	}
	dropBackup := func() {
		if err := os.Remove(backupPath); err != nil {
			c.log.Warn("failed to remove config backup",
				zap.String("path", backupPath), zap.Error(err))
		}
	}

	updated, err := c.upsert(original, canonical)
	if err != nil {
		dropBackup()
		return nil, err
	}
	if err := atomicWriteFile(c.filePath, updated); err != nil {
		dropBackup()
		return nil, err
	}

	// Validation gate: the new file must survive a full resolution pass.
	snap, resolveErr := c.resolve()
	if resolveErr != nil {
		if err := atomicWriteFile(c.filePath, original); err != nil {
			dropBackup()
			return nil, fmt.Errorf("failed to restore config file after invalid write (backup at %s): %w", backupPath, err)
		}
		dropBackup()
		c.log.Warn("config write rolled back", zap.Error(resolveErr))
		return nil, fmt.Errorf("%w: %w", ErrWriteRollback, resolveErr)
	}

	c.current.Store(snap)
	dropBackup()
	c.log.Info("config file updated",
		zap.String("path", c.filePath), zap.Int("keys", len(canonical)))

	applied := make(map[string]any, len(canonical))
	for key := range canonical {
		applied[key], _ = snap.Get(key)
	}
	return applied, nil
}

// upsert merges the canonical assignments into the file's section structure,
// creating sections as needed, and injects a fresh server secret when the
// stored one is absent or still the placeholder.
func (c *Config) upsert(original []byte, canonical map[string]string) ([]byte, error) {
	header, body := splitHeader(original)

	f, err := ini.Load(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", c.filePath, err)
	}

	keys := make([]string, 0, len(canonical))
	for key := range canonical {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		section, _ := c.schema.SectionOf(key)
		f.Section(section).Key(key).SetValue(canonical[key])
	}

	if secretSection, ok := c.schema.SectionOf(secretKeyName); ok {
		stored := f.Section(secretSection).Key(secretKeyName).Value()
		if isPlaceholderSecret(stored) {
			secret, err := generateSecret()
			if err != nil {
				return nil, err
			}
			f.Section(secretSection).Key(secretKeyName).SetValue(secret)
			c.log.Info("generated new server secret", zap.String("key", secretKeyName))
		}
	}

	var buf bytes.Buffer
	buf.Write(header)
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize config file: %w", err)
	}
	return buf.Bytes(), nil
}

// splitHeader separates the file's leading comment block (comment and blank
// lines before the first section or key) from the parseable body, so rewrites
// keep the documentation header byte-for-byte.
func splitHeader(data []byte) (header, body []byte) {
	offset := 0
	for offset < len(data) {
		next := len(data)
		line := data[offset:]
		if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
			next = offset + nl + 1
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 && trimmed[0] != '#' && trimmed[0] != ';' {
			break
		}
		offset = next
	}
	return data[:offset], data[offset:]
}

// atomicWriteFile writes data via a temp file in the target directory, synced
// and renamed over the destination, so readers never observe a partial file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}

	tempPath := tempFile.Name()
	removed := false
	defer func() {
		if !removed {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file '%s': %w", tempPath, err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file '%s': %w", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file '%s': %w", tempPath, err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on '%s': %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file to '%s': %w", path, err)
	}
	removed = true

	return nil
}
