// Package config resolves the WebStash runtime configuration from layered
// sources (environment variables, the WebStash.conf file, and compiled-in
// defaults) into one immutable typed snapshot, and persists user edits back
// to the config file with validation and rollback.
//
// A resolution pass is cold and deterministic: the environment is re-read and
// the config file re-parsed every time. Base keys resolve in declaration order
// with precedence env > file > default; derived keys are computed afterwards,
// also in declaration order, as pure functions of everything resolved so far.
// Either the whole pass succeeds and the process-wide snapshot is swapped, or
// it fails and the previous snapshot stays authoritative.
//
//	cfg, err := config.NewBuilder().
//		WithFile(filepath.Join(dataDir, config.ConfigFilename)).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	timeout, _ := cfg.Snapshot().Int("TIMEOUT")
//
// Writes go through Set, which backs up the file, upserts the assignments into
// their sections, re-resolves everything against the new file, and rolls the
// file back byte-for-byte if the new contents fail resolution.
package config
