package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envOf builds an environ func from KEY=VALUE pairs, so tests control the
// environment without touching the real process state.
func envOf(pairs ...string) func() []string {
	return func() []string { return pairs }
}

// testSchema is a small schema exercising every resolution feature: aliases,
// computed base defaults, the derived toggle graph with intentional base-key
// shadowing, and a derived regexp compile that can fail.
func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		[]Section{
			{Name: "GENERAL_CONFIG", Keys: []Key{
				{Name: "TIMEOUT", Kind: KindInt, Default: 60},
				{Name: "LABEL", Kind: KindString, Default: "collection"},
				{Name: "EXTRA_ARGS", Kind: KindStringList, Default: []string{}},
				{Name: "ONLY_NEW", Kind: KindBool, Default: true},
				{Name: "URL_PATTERN", Kind: KindString, Default: ""},
				{Name: "MEDIA_TIMEOUT", Kind: KindInt, Func: func(c *Snapshot) any {
					return c.MustInt("TIMEOUT") * 60
				}},
			}},
			{Name: "SERVER_CONFIG", Keys: []Key{
				{Name: "SECRET_KEY", Kind: KindString, Default: ""},
			}},
			{Name: "ARCHIVE_METHOD_TOGGLES", Keys: []Key{
				{Name: "SAVE_WGET", Kind: KindBool, Default: true, Aliases: []string{"FETCH_WGET"}},
				{Name: "SAVE_WARC", Kind: KindBool, Default: true, Aliases: []string{"FETCH_WARC"}},
			}},
			{Name: "DEPENDENCY_CONFIG", Keys: []Key{
				{Name: "USE_WGET", Kind: KindBool, Default: true},
			}},
		},
		[]Derived{
			{Name: "USE_WGET", Func: func(c *Snapshot) any {
				return c.MustBool("USE_WGET") && (c.MustBool("SAVE_WGET") || c.MustBool("SAVE_WARC"))
			}},
			{Name: "SAVE_WGET", Func: func(c *Snapshot) any {
				return c.MustBool("USE_WGET") && c.MustBool("SAVE_WGET")
			}},
			{Name: "SAVE_WARC", Func: func(c *Snapshot) any {
				return c.MustBool("USE_WGET") && c.MustBool("SAVE_WARC")
			}},
			{Name: "URL_PATTERN_PTN", Func: func(c *Snapshot) any {
				pattern := c.MustString("URL_PATTERN")
				if pattern == "" {
					return (*regexp.Regexp)(nil)
				}
				ptn, err := regexp.Compile(pattern)
				if err != nil {
					Fail(err)
				}
				return ptn
			}},
		},
	)
	require.NoError(t, err)
	return s
}

func buildTest(t *testing.T, schema *Schema, file string, environ func() []string) *Config {
	t.Helper()
	cfg, err := NewBuilder().
		WithSchema(schema).
		WithFile(file).
		WithEnviron(environ).
		Build()
	require.NoError(t, err)
	return cfg
}

func writeConf(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestPrecedence checks env > file > default for the same key.
func TestPrecedence(t *testing.T) {
	schema := testSchema(t)

	t.Run("DefaultOnly", func(t *testing.T) {
		cfg := buildTest(t, schema, "", envOf())
		timeout, err := cfg.Snapshot().Int("TIMEOUT")
		require.NoError(t, err)
		assert.Equal(t, 60, timeout)
	})

	t.Run("FileBeatsDefault", func(t *testing.T) {
		path := writeConf(t, t.TempDir(), "[GENERAL_CONFIG]\nTIMEOUT = 30\n")
		cfg := buildTest(t, schema, path, envOf())
		timeout, err := cfg.Snapshot().Int("TIMEOUT")
		require.NoError(t, err)
		assert.Equal(t, 30, timeout)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		path := writeConf(t, t.TempDir(), "[GENERAL_CONFIG]\nTIMEOUT = 30\n")
		cfg := buildTest(t, schema, path, envOf("TIMEOUT=10"))
		timeout, err := cfg.Snapshot().Int("TIMEOUT")
		require.NoError(t, err)
		assert.Equal(t, 10, timeout)
	})

	t.Run("EmptyStringIsNotFound", func(t *testing.T) {
		// An empty env value falls through to the file, then the default.
		path := writeConf(t, t.TempDir(), "[GENERAL_CONFIG]\nTIMEOUT = 30\n")
		cfg := buildTest(t, schema, path, envOf("TIMEOUT="))
		timeout, err := cfg.Snapshot().Int("TIMEOUT")
		require.NoError(t, err)
		assert.Equal(t, 30, timeout)
	})

	t.Run("EnvAliasBeatsFileCanonical", func(t *testing.T) {
		path := writeConf(t, t.TempDir(), "[ARCHIVE_METHOD_TOGGLES]\nSAVE_WARC = true\n")
		cfg := buildTest(t, schema, path, envOf("FETCH_WARC=false", "SAVE_WGET=false"))
		warc, err := cfg.Snapshot().Bool("SAVE_WARC")
		require.NoError(t, err)
		assert.False(t, warc)
	})
}

// TestAliasEquivalence: a legacy name in any source resolves identically to
// the canonical name.
func TestAliasEquivalence(t *testing.T) {
	schema := testSchema(t)

	canonical := buildTest(t, schema, "", envOf("SAVE_WGET=false", "SAVE_WARC=false"))
	legacy := buildTest(t, schema, "", envOf("FETCH_WGET=false", "FETCH_WARC=false"))

	for _, key := range []string{"SAVE_WGET", "SAVE_WARC", "USE_WGET"} {
		want, _ := canonical.Snapshot().Get(key)
		got, _ := legacy.Snapshot().Get(key)
		assert.Equal(t, want, got, "key %s", key)
	}

	t.Run("AliasInFile", func(t *testing.T) {
		path := writeConf(t, t.TempDir(), "[ARCHIVE_METHOD_TOGGLES]\nFETCH_WGET = false\nFETCH_WARC = false\n")
		cfg := buildTest(t, schema, path, envOf())
		useWget, err := cfg.Snapshot().Bool("USE_WGET")
		require.NoError(t, err)
		assert.False(t, useWget)
	})
}

// TestComputedBaseDefault: a base key's default function reads earlier base
// keys, and a source value overrides the function entirely.
func TestComputedBaseDefault(t *testing.T) {
	schema := testSchema(t)

	cfg := buildTest(t, schema, "", envOf("TIMEOUT=10"))
	mediaTimeout, err := cfg.Snapshot().Int("MEDIA_TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 600, mediaTimeout)

	cfg = buildTest(t, schema, "", envOf("TIMEOUT=10", "MEDIA_TIMEOUT=99"))
	mediaTimeout, err = cfg.Snapshot().Int("MEDIA_TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 99, mediaTimeout)
}

// TestDerivedOrderingAndShadowing: a later derived key observes an earlier
// derived key's final value, never the base value it shadowed.
func TestDerivedOrderingAndShadowing(t *testing.T) {
	schema := testSchema(t)

	// USE_WGET=false must force the derived SAVE_WGET off even though the
	// user left SAVE_WGET on.
	cfg := buildTest(t, schema, "", envOf("USE_WGET=false", "SAVE_WGET=true"))
	snap := cfg.Snapshot()

	useWget, err := snap.Bool("USE_WGET")
	require.NoError(t, err)
	assert.False(t, useWget)

	saveWget, err := snap.Bool("SAVE_WGET")
	require.NoError(t, err)
	assert.False(t, saveWget, "derived SAVE_WGET must read the derived USE_WGET, not the raw toggle")
}

// TestResolutionAbort: any coercion or derivation failure produces no new
// snapshot and leaves the previous one authoritative.
func TestResolutionAbort(t *testing.T) {
	schema := testSchema(t)

	t.Run("CoercionFailureSurfacesKey", func(t *testing.T) {
		_, err := NewBuilder().
			WithSchema(schema).
			WithEnviron(envOf("TIMEOUT=soon")).
			Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
		var verr *ValueError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "TIMEOUT", verr.Key)
		assert.Equal(t, "soon", verr.Raw)
	})

	t.Run("DerivationFailureSurfacesKey", func(t *testing.T) {
		_, err := NewBuilder().
			WithSchema(schema).
			WithEnviron(envOf("URL_PATTERN=(")).
			Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDerivation)
		var derr *DerivationError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "URL_PATTERN_PTN", derr.Key)
	})

	t.Run("PreviousSnapshotSurvivesFailedPass", func(t *testing.T) {
		env := []string{}
		cfg := buildTest(t, schema, "", func() []string { return env })

		before := cfg.Snapshot()
		env = []string{"TIMEOUT=soon"}

		_, err := cfg.Load()
		require.Error(t, err)
		assert.Same(t, before, cfg.Snapshot())
	})
}

// TestEndToEnd mirrors the reference scenario: cold defaults, then one env
// override, with everything else untouched.
func TestEndToEnd(t *testing.T) {
	schema := testSchema(t)

	env := []string{}
	cfg := buildTest(t, schema, "", func() []string { return env })

	snap := cfg.Snapshot()
	timeout, err := snap.Int("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 60, timeout)
	useWget, err := snap.Bool("USE_WGET")
	require.NoError(t, err)
	assert.True(t, useWget)

	env = []string{"TIMEOUT=5"}
	snap, err = cfg.Load()
	require.NoError(t, err)

	timeout, err = snap.Int("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 5, timeout)
	for _, key := range []string{"USE_WGET", "SAVE_WGET", "ONLY_NEW"} {
		v, ok := snap.Get(key)
		require.True(t, ok)
		assert.Equal(t, true, v, "key %s", key)
	}
}

// TestAllKeysPresent: after a successful pass every declared key resolves.
func TestAllKeysPresent(t *testing.T) {
	schema := testSchema(t)
	cfg := buildTest(t, schema, "", envOf())

	snap := cfg.Snapshot()
	for _, key := range schema.Keys() {
		assert.True(t, snap.Has(key), "missing key %s", key)
	}
	assert.True(t, snap.Has("URL_PATTERN_PTN"))
}

// TestListAndStringSources: list keys take JSON-array text from any source.
func TestListAndStringSources(t *testing.T) {
	schema := testSchema(t)

	path := writeConf(t, t.TempDir(), "[GENERAL_CONFIG]\nEXTRA_ARGS = [\"--silent\", \"--compressed\"]\nLABEL = staging\n")
	cfg := buildTest(t, schema, path, envOf())

	args, err := cfg.Snapshot().StringList("EXTRA_ARGS")
	require.NoError(t, err)
	assert.Equal(t, []string{"--silent", "--compressed"}, args)

	label, err := cfg.Snapshot().String("LABEL")
	require.NoError(t, err)
	assert.Equal(t, "staging", label)

	t.Run("MalformedListAborts", func(t *testing.T) {
		_, err := NewBuilder().
			WithSchema(schema).
			WithEnviron(envOf("EXTRA_ARGS=[a,b]")).
			Build()
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

// TestMissingFileIsEmptySource: a nonexistent config file is not an error.
func TestMissingFileIsEmptySource(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), ConfigFilename)

	cfg := buildTest(t, schema, path, envOf())
	timeout, err := cfg.Snapshot().Int("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 60, timeout)
}

// TestColdPassRereadsSources: each Load is a fresh pass over current sources.
func TestColdPassRereadsSources(t *testing.T) {
	schema := testSchema(t)
	dir := t.TempDir()
	path := writeConf(t, dir, "[GENERAL_CONFIG]\nTIMEOUT = 30\n")

	cfg := buildTest(t, schema, path, envOf())
	timeout, _ := cfg.Snapshot().Int("TIMEOUT")
	require.Equal(t, 30, timeout)

	writeConf(t, dir, "[GENERAL_CONFIG]\nTIMEOUT = 45\n")
	snap, err := cfg.Load()
	require.NoError(t, err)
	timeout, err = snap.Int("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 45, timeout)
}

// TestFileSectionIsInformational: a key parses no matter which section the
// file puts it in; sections carry no precedence semantics on read.
func TestFileSectionIsInformational(t *testing.T) {
	schema := testSchema(t)
	path := writeConf(t, t.TempDir(), "[SERVER_CONFIG]\nTIMEOUT = 90\nlabel = prod\n")

	cfg := buildTest(t, schema, path, envOf())
	timeout, err := cfg.Snapshot().Int("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 90, timeout)

	// File keys are upper-cased on flatten, so lower-case spellings work too.
	label, err := cfg.Snapshot().String("LABEL")
	require.NoError(t, err)
	assert.Equal(t, "prod", label)
}

// TestForwardReferenceIsDefect: a derived key reading a later-declared derived
// key aborts with a DerivationError instead of observing a stale value.
func TestForwardReferenceIsDefect(t *testing.T) {
	s, err := NewSchema(
		[]Section{{Name: "A", Keys: []Key{{Name: "X", Kind: KindInt, Default: 1}}}},
		[]Derived{
			{Name: "EARLY", Func: func(c *Snapshot) any { return c.MustInt("LATE") + 1 }},
			{Name: "LATE", Func: func(c *Snapshot) any { return c.MustInt("X") * 2 }},
		},
	)
	require.NoError(t, err)

	_, err = NewBuilder().WithSchema(s).WithEnviron(envOf()).Build()
	require.Error(t, err)
	var derr *DerivationError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "EARLY", derr.Key)
	assert.Contains(t, derr.Error(), "LATE")
}

func ExampleFail() {
	schema, _ := NewSchema(
		[]Section{{Name: "GENERAL_CONFIG", Keys: []Key{
			{Name: "URL_BLACKLIST", Kind: KindString, Default: "("},
		}}},
		[]Derived{{Name: "URL_BLACKLIST_PTN", Func: func(c *Snapshot) any {
			ptn, err := regexp.Compile(c.MustString("URL_BLACKLIST"))
			if err != nil {
				Fail(err)
			}
			return ptn
		}}},
	)
	_, err := NewBuilder().WithSchema(schema).WithEnviron(func() []string { return nil }).Build()
	fmt.Println(err != nil)
	// Output: true
}
