// Command example walks through resolving, reading, and updating a WebStash
// collection configuration.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	config "github.com/webstash/config"
)

func main() {
	dataDir, err := os.MkdirTemp("", "webstash-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dataDir)

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.NewBuilder().
		WithFile(filepath.Join(dataDir, config.ConfigFilename)).
		WithLogger(logger).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	snap := cfg.Snapshot()
	timeout, _ := snap.Int("TIMEOUT")
	useWget, _ := snap.Bool("USE_WGET")
	fmt.Printf("TIMEOUT=%d USE_WGET=%v\n", timeout, useWget)

	// Persist an edit; the file is validated end-to-end before commit.
	applied, err := cfg.Set(map[string]string{
		"TIMEOUT":    "120",
		"FETCH_WGET": "false", // legacy alias for SAVE_WGET
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("applied: %v\n", applied)

	// Disabling SAVE_WGET turned the derived USE_WGET toggle off too
	// (SAVE_WARC still holds it on unless disabled as well).
	snap = cfg.Snapshot()
	useWget, _ = snap.Bool("USE_WGET")
	fmt.Printf("USE_WGET=%v\n", useWget)

	// Typed consumers can scan the snapshot into a struct.
	var server struct {
		BindAddr  string `config:"BIND_ADDR"`
		Debug     bool   `config:"DEBUG"`
		SecretKey string `config:"SECRET_KEY"`
	}
	if err := snap.Scan(&server); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("serving on %s (debug=%v)\n", server.BindAddr, server.Debug)
}
