package config

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// ConfigFilename is the on-disk name of the collection config file.
const ConfigFilename = "WebStash.conf"

// Config is the process-wide configuration engine: a schema, a config file
// path, and the last successfully resolved snapshot. Readers access the
// snapshot lock-free; the snapshot pointer is swapped only after a pass
// succeeds, so a complete, internally consistent snapshot is always observed.
type Config struct {
	schema   *Schema
	filePath string
	environ  func() []string
	log      *zap.Logger

	current atomic.Pointer[Snapshot]
}

// Load runs a full resolution pass and, on success, publishes the result as
// the current snapshot. On failure the previous snapshot (if any) remains
// authoritative; a failed pass never corrupts state and can be retried.
func (c *Config) Load() (*Snapshot, error) {
	snap, err := c.resolve()
	if err != nil {
		return nil, err
	}
	c.current.Store(snap)
	return snap, nil
}

// Snapshot returns the last successfully resolved snapshot. It is nil only
// before the first successful Load.
func (c *Config) Snapshot() *Snapshot {
	return c.current.Load()
}

// FilePath returns the config file path this engine reads and writes.
func (c *Config) FilePath() string {
	return c.filePath
}

// Schema returns the schema this engine resolves against.
func (c *Config) Schema() *Schema {
	return c.schema
}

func defaultEnviron() []string {
	return os.Environ()
}
