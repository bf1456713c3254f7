package config

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/term"
)

// Version is the release version baked into resolved snapshots and user-agent
// strings. A "+<sha>" suffix, when present, feeds GIT_SHA.
const Version = "0.6.2"

// Collection directory layout, relative to OUTPUT_DIR.
const (
	archiveDirName = "archive"
	sourcesDirName = "sources"
	logsDirName    = "logs"
)

// Built-in schema section names. These are the section headers used in the
// config file; membership is organizational only.
const (
	SectionShell         = "SHELL_CONFIG"
	SectionGeneral       = "GENERAL_CONFIG"
	SectionServer        = "SERVER_CONFIG"
	SectionMethodToggles = "ARCHIVE_METHOD_TOGGLES"
	SectionMethodOptions = "ARCHIVE_METHOD_OPTIONS"
	SectionSearchBackend = "SEARCH_BACKEND_CONFIG"
	SectionDependency    = "DEPENDENCY_CONFIG"
)

// cliColors is the palette published under ANSI when USE_COLOR is on.
var cliColors = map[string]string{
	"reset":       "\033[00;00m",
	"lightblue":   "\033[01;30m",
	"lightyellow": "\033[01;33m",
	"lightred":    "\033[01;35m",
	"red":         "\033[01;31m",
	"green":       "\033[01;32m",
	"blue":        "\033[01;34m",
	"white":       "\033[01;37m",
	"black":       "\033[01;30m",
}

// chromeCandidates is the binary discovery order for DefaultHooks.
// Chromium first, then stable Chrome, then pre-release channels.
var chromeCandidates = []string{
	"chromium-browser",
	"chromium",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"chrome",
	"google-chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"google-chrome-stable",
	"google-chrome-beta",
	"google-chrome-canary",
	"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
	"google-chrome-unstable",
	"google-chrome-dev",
}

// Hooks are the environment probes the built-in schema's derived keys depend
// on. They exist so the engine itself performs no subprocess I/O: hosts that
// want real binary versions supply a BinVersion that shells out.
type Hooks struct {
	// IsTTY reports whether stdout is a terminal.
	IsTTY func() bool

	// BinVersion returns the version string of an archive-method binary, or
	// "" when unknown. A nil BinVersion resolves every *_VERSION key to "".
	BinVersion func(binary string) string

	// FindChromeBinary locates a Chrome/Chromium binary when CHROME_BINARY
	// is not configured, returning "" when none is found.
	FindChromeBinary func() string
}

// DefaultHooks probes the local environment without spawning subprocesses:
// a terminal check for IS_TTY and a PATH scan for Chrome discovery.
func DefaultHooks() Hooks {
	return Hooks{
		IsTTY: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
		FindChromeBinary: func() string {
			for _, candidate := range chromeCandidates {
				if _, err := exec.LookPath(candidate); err == nil {
					return candidate
				}
			}
			return ""
		},
	}
}

func (h Hooks) isTTY() bool {
	return h.IsTTY != nil && h.IsTTY()
}

func (h Hooks) binVersion(binary string) string {
	if h.BinVersion == nil || binary == "" {
		return ""
	}
	return h.BinVersion(binary)
}

func (h Hooks) findChrome() string {
	if h.FindChromeBinary == nil {
		return ""
	}
	return h.FindChromeBinary()
}

// DefaultSchema builds the full built-in schema: every user-facing key grouped
// into its config-file section, plus the derived graph evaluated on top.
// Derived keys are declared in dependency order; a derived key may only read
// keys declared above it.
func DefaultSchema(hooks Hooks) (*Schema, error) {
	sections := []Section{
		{Name: SectionShell, Keys: []Key{
			{Name: "IS_TTY", Kind: KindBool, Func: func(c *Snapshot) any { return hooks.isTTY() }},
			{Name: "USE_COLOR", Kind: KindBool, Func: func(c *Snapshot) any { return c.MustBool("IS_TTY") }},
			{Name: "SHOW_PROGRESS", Kind: KindBool, Func: func(c *Snapshot) any { return c.MustBool("IS_TTY") }},
			{Name: "IN_DOCKER", Kind: KindBool, Default: false},
		}},

		{Name: SectionGeneral, Keys: []Key{
			{Name: "OUTPUT_DIR", Kind: KindString, Default: ""},
			{Name: "CONFIG_FILE", Kind: KindString, Default: ""},
			{Name: "ONLY_NEW", Kind: KindBool, Default: true},
			{Name: "TIMEOUT", Kind: KindInt, Default: 60},
			{Name: "MEDIA_TIMEOUT", Kind: KindInt, Default: 3600},
			{Name: "OUTPUT_PERMISSIONS", Kind: KindString, Default: "755"},
			{Name: "RESTRICT_FILE_NAMES", Kind: KindString, Default: "windows"},
			// Avoids downloading code assets as their own pages.
			{Name: "URL_BLACKLIST", Kind: KindString, Default: `\.(css|js|otf|ttf|woff|woff2|gstatic\.com|googleapis\.com/css)(\?.*)?$`},
		}},

		{Name: SectionServer, Keys: []Key{
			{Name: "SECRET_KEY", Kind: KindString, Default: ""},
			{Name: "BIND_ADDR", Kind: KindString, Func: func(c *Snapshot) any {
				if c.MustBool("IN_DOCKER") {
					return "0.0.0.0:8000"
				}
				return "127.0.0.1:8000"
			}},
			{Name: "ALLOWED_HOSTS", Kind: KindString, Default: "*"},
			{Name: "DEBUG", Kind: KindBool, Default: false},
			{Name: "PUBLIC_INDEX", Kind: KindBool, Default: true},
			{Name: "PUBLIC_SNAPSHOTS", Kind: KindBool, Default: true},
			{Name: "PUBLIC_ADD_VIEW", Kind: KindBool, Default: false},
			{Name: "FOOTER_INFO", Kind: KindString, Default: "Content is hosted for personal archiving purposes only.  Contact server owner for any takedown requests."},
			{Name: "ACTIVE_THEME", Kind: KindString, Default: "default"},
		}},

		{Name: SectionMethodToggles, Keys: []Key{
			{Name: "SAVE_TITLE", Kind: KindBool, Default: true, Aliases: []string{"FETCH_TITLE"}},
			{Name: "SAVE_FAVICON", Kind: KindBool, Default: true, Aliases: []string{"FETCH_FAVICON"}},
			{Name: "SAVE_WGET", Kind: KindBool, Default: true, Aliases: []string{"FETCH_WGET"}},
			{Name: "SAVE_WGET_REQUISITES", Kind: KindBool, Default: true, Aliases: []string{"FETCH_WGET_REQUISITES"}},
			{Name: "SAVE_SINGLEFILE", Kind: KindBool, Default: true, Aliases: []string{"FETCH_SINGLEFILE"}},
			{Name: "SAVE_READABILITY", Kind: KindBool, Default: true, Aliases: []string{"FETCH_READABILITY"}},
			{Name: "SAVE_MERCURY", Kind: KindBool, Default: true, Aliases: []string{"FETCH_MERCURY"}},
			{Name: "SAVE_PDF", Kind: KindBool, Default: true, Aliases: []string{"FETCH_PDF"}},
			{Name: "SAVE_SCREENSHOT", Kind: KindBool, Default: true, Aliases: []string{"FETCH_SCREENSHOT"}},
			{Name: "SAVE_DOM", Kind: KindBool, Default: true, Aliases: []string{"FETCH_DOM"}},
			{Name: "SAVE_HEADERS", Kind: KindBool, Default: true, Aliases: []string{"FETCH_HEADERS"}},
			{Name: "SAVE_WARC", Kind: KindBool, Default: true, Aliases: []string{"FETCH_WARC"}},
			{Name: "SAVE_GIT", Kind: KindBool, Default: true, Aliases: []string{"FETCH_GIT"}},
			{Name: "SAVE_MEDIA", Kind: KindBool, Default: true, Aliases: []string{"FETCH_MEDIA"}},
			{Name: "SAVE_ARCHIVE_DOT_ORG", Kind: KindBool, Default: true, Aliases: []string{"SUBMIT_ARCHIVE_DOT_ORG"}},
		}},

		{Name: SectionMethodOptions, Keys: []Key{
			{Name: "RESOLUTION", Kind: KindString, Default: "1440,2000", Aliases: []string{"SCREENSHOT_RESOLUTION"}},
			{Name: "GIT_DOMAINS", Kind: KindString, Default: "github.com,bitbucket.org,gitlab.com"},
			{Name: "CHECK_SSL_VALIDITY", Kind: KindBool, Default: true},

			{Name: "CURL_USER_AGENT", Kind: KindString, Default: "WebStash/{VERSION} (+https://github.com/webstash/webstash/) curl/{CURL_VERSION}"},
			{Name: "WGET_USER_AGENT", Kind: KindString, Default: "WebStash/{VERSION} (+https://github.com/webstash/webstash/) wget/{WGET_VERSION}"},
			{Name: "CHROME_USER_AGENT", Kind: KindString, Default: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/73.0.3683.75 Safari/537.36"},

			{Name: "COOKIES_FILE", Kind: KindString, Default: ""},
			{Name: "CHROME_USER_DATA_DIR", Kind: KindString, Default: ""},

			{Name: "CHROME_HEADLESS", Kind: KindBool, Default: true},
			{Name: "CHROME_SANDBOX", Kind: KindBool, Func: func(c *Snapshot) any { return !c.MustBool("IN_DOCKER") }},

			{Name: "YOUTUBEDL_ARGS", Kind: KindStringList, Default: []string{
				"--write-description",
				"--write-info-json",
				"--write-annotations",
				"--write-thumbnail",
				"--no-call-home",
				"--user-agent",
				"--all-subs",
				"--extract-audio",
				"--keep-video",
				"--ignore-errors",
				"--geo-bypass",
				"--audio-format", "mp3",
				"--audio-quality", "320K",
				"--embed-thumbnail",
				"--add-metadata",
			}},
			{Name: "WGET_ARGS", Kind: KindStringList, Default: []string{
				"--no-verbose",
				"--adjust-extension",
				"--convert-links",
				"--force-directories",
				"--backup-converted",
				"--span-hosts",
				"--no-parent",
				"-e", "robots=off",
			}},
			{Name: "CURL_ARGS", Kind: KindStringList, Default: []string{
				"--silent",
				"--location",
				"--compressed",
			}},
			{Name: "GIT_ARGS", Kind: KindStringList, Default: []string{"--recursive"}},
		}},

		{Name: SectionSearchBackend, Keys: []Key{
			{Name: "USE_INDEXING_BACKEND", Kind: KindBool, Default: true},
			{Name: "USE_SEARCHING_BACKEND", Kind: KindBool, Default: true},
			{Name: "SEARCH_BACKEND_ENGINE", Kind: KindString, Default: "sonic"},
			{Name: "SEARCH_BACKEND_HOST_NAME", Kind: KindString, Default: "localhost"},
			{Name: "SEARCH_BACKEND_PORT", Kind: KindInt, Default: 1491},
			{Name: "SEARCH_BACKEND_PASSWORD", Kind: KindString, Default: "SecretPassword"},
			{Name: "SONIC_COLLECTION", Kind: KindString, Default: "webstash"},
			{Name: "SONIC_BUCKET", Kind: KindString, Default: "snapshots"},
		}},

		{Name: SectionDependency, Keys: []Key{
			{Name: "USE_CURL", Kind: KindBool, Default: true},
			{Name: "USE_WGET", Kind: KindBool, Default: true},
			{Name: "USE_SINGLEFILE", Kind: KindBool, Default: true},
			{Name: "USE_READABILITY", Kind: KindBool, Default: true},
			{Name: "USE_MERCURY", Kind: KindBool, Default: true},
			{Name: "USE_GIT", Kind: KindBool, Default: true},
			{Name: "USE_CHROME", Kind: KindBool, Default: true},
			{Name: "USE_NODE", Kind: KindBool, Default: true},
			{Name: "USE_YOUTUBEDL", Kind: KindBool, Default: true},

			{Name: "CURL_BINARY", Kind: KindString, Default: "curl"},
			{Name: "GIT_BINARY", Kind: KindString, Default: "git"},
			{Name: "WGET_BINARY", Kind: KindString, Default: "wget"},
			{Name: "SINGLEFILE_BINARY", Kind: KindString, Default: "single-file"},
			{Name: "READABILITY_BINARY", Kind: KindString, Default: "readability-extractor"},
			{Name: "MERCURY_BINARY", Kind: KindString, Default: "mercury-parser"},
			{Name: "YOUTUBEDL_BINARY", Kind: KindString, Default: "youtube-dl"},
			{Name: "CHROME_BINARY", Kind: KindString, Default: ""},
		}},
	}

	derived := []Derived{
		{Name: "USER", Func: func(c *Snapshot) any {
			if u, err := user.Current(); err == nil && u.Username != "" {
				return u.Username
			}
			return os.Getenv("USER")
		}},
		{Name: "ANSI", Func: func(c *Snapshot) any {
			if c.MustBool("USE_COLOR") {
				return cliColors
			}
			blank := make(map[string]string, len(cliColors))
			for name := range cliColors {
				blank[name] = ""
			}
			return blank
		}},

		{Name: "OUTPUT_DIR", Func: func(c *Snapshot) any { return absPath(c.MustString("OUTPUT_DIR"), ".") }},
		{Name: "ARCHIVE_DIR", Func: func(c *Snapshot) any { return filepath.Join(c.MustString("OUTPUT_DIR"), archiveDirName) }},
		{Name: "SOURCES_DIR", Func: func(c *Snapshot) any { return filepath.Join(c.MustString("OUTPUT_DIR"), sourcesDirName) }},
		{Name: "LOGS_DIR", Func: func(c *Snapshot) any { return filepath.Join(c.MustString("OUTPUT_DIR"), logsDirName) }},
		{Name: "CONFIG_FILE", Func: func(c *Snapshot) any {
			if path := c.MustString("CONFIG_FILE"); path != "" {
				return absPath(path, "")
			}
			return filepath.Join(c.MustString("OUTPUT_DIR"), ConfigFilename)
		}},
		{Name: "COOKIES_FILE", Func: func(c *Snapshot) any {
			if path := c.MustString("COOKIES_FILE"); path != "" {
				return absPath(path, "")
			}
			return ""
		}},
		{Name: "CHROME_USER_DATA_DIR", Func: func(c *Snapshot) any {
			if path := c.MustString("CHROME_USER_DATA_DIR"); path != "" {
				return absPath(path, "")
			}
			return ""
		}},

		{Name: "URL_BLACKLIST_PTN", Func: func(c *Snapshot) any {
			pattern := c.MustString("URL_BLACKLIST")
			if pattern == "" {
				return (*regexp.Regexp)(nil)
			}
			ptn, err := regexp.Compile("(?im)" + pattern)
			if err != nil {
				Fail(fmt.Errorf("URL_BLACKLIST is not a valid regular expression: %w", err))
			}
			return ptn
		}},

		{Name: "VERSION", Func: func(c *Snapshot) any { return Version }},
		{Name: "GIT_SHA", Func: func(c *Snapshot) any {
			if _, sha, ok := strings.Cut(Version, "+"); ok && sha != "" {
				return sha
			}
			return "unknown"
		}},

		// Dependency toggles fold binary availability into the method toggles:
		// USE_X is on only when some method still needs X, and SAVE_X shadows
		// its raw user setting with the final USE_X-gated value.
		{Name: "USE_CURL", Func: func(c *Snapshot) any {
			return c.MustBool("USE_CURL") && (c.MustBool("SAVE_FAVICON") || c.MustBool("SAVE_TITLE") || c.MustBool("SAVE_ARCHIVE_DOT_ORG"))
		}},
		{Name: "CURL_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_CURL") {
				return hooks.binVersion(c.MustString("CURL_BINARY"))
			}
			return ""
		}},
		{Name: "CURL_USER_AGENT", Func: func(c *Snapshot) any { return expandUserAgent(c, "CURL_USER_AGENT") }},
		{Name: "SAVE_FAVICON", Func: func(c *Snapshot) any { return c.MustBool("USE_CURL") && c.MustBool("SAVE_FAVICON") }},
		{Name: "SAVE_ARCHIVE_DOT_ORG", Func: func(c *Snapshot) any { return c.MustBool("USE_CURL") && c.MustBool("SAVE_ARCHIVE_DOT_ORG") }},

		{Name: "USE_WGET", Func: func(c *Snapshot) any {
			return c.MustBool("USE_WGET") && (c.MustBool("SAVE_WGET") || c.MustBool("SAVE_WARC"))
		}},
		{Name: "WGET_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_WGET") {
				return hooks.binVersion(c.MustString("WGET_BINARY"))
			}
			return ""
		}},
		{Name: "WGET_USER_AGENT", Func: func(c *Snapshot) any { return expandUserAgent(c, "WGET_USER_AGENT") }},
		{Name: "SAVE_WGET", Func: func(c *Snapshot) any { return c.MustBool("USE_WGET") && c.MustBool("SAVE_WGET") }},
		{Name: "SAVE_WARC", Func: func(c *Snapshot) any { return c.MustBool("USE_WGET") && c.MustBool("SAVE_WARC") }},

		{Name: "USE_SINGLEFILE", Func: func(c *Snapshot) any { return c.MustBool("USE_SINGLEFILE") && c.MustBool("SAVE_SINGLEFILE") }},
		{Name: "SINGLEFILE_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_SINGLEFILE") {
				return hooks.binVersion(c.MustString("SINGLEFILE_BINARY"))
			}
			return ""
		}},

		{Name: "USE_READABILITY", Func: func(c *Snapshot) any { return c.MustBool("USE_READABILITY") && c.MustBool("SAVE_READABILITY") }},
		{Name: "READABILITY_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_READABILITY") {
				return hooks.binVersion(c.MustString("READABILITY_BINARY"))
			}
			return ""
		}},

		{Name: "USE_MERCURY", Func: func(c *Snapshot) any { return c.MustBool("USE_MERCURY") && c.MustBool("SAVE_MERCURY") }},
		{Name: "MERCURY_VERSION", Func: func(c *Snapshot) any {
			// mercury-parser is unversioned
			if c.MustBool("USE_MERCURY") && c.MustString("MERCURY_BINARY") != "" {
				return "1.0.0"
			}
			return ""
		}},

		{Name: "USE_GIT", Func: func(c *Snapshot) any { return c.MustBool("USE_GIT") && c.MustBool("SAVE_GIT") }},
		{Name: "GIT_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_GIT") {
				return hooks.binVersion(c.MustString("GIT_BINARY"))
			}
			return ""
		}},
		{Name: "SAVE_GIT", Func: func(c *Snapshot) any { return c.MustBool("USE_GIT") && c.MustBool("SAVE_GIT") }},

		{Name: "USE_YOUTUBEDL", Func: func(c *Snapshot) any { return c.MustBool("USE_YOUTUBEDL") && c.MustBool("SAVE_MEDIA") }},
		{Name: "YOUTUBEDL_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_YOUTUBEDL") {
				return hooks.binVersion(c.MustString("YOUTUBEDL_BINARY"))
			}
			return ""
		}},
		{Name: "SAVE_MEDIA", Func: func(c *Snapshot) any { return c.MustBool("USE_YOUTUBEDL") && c.MustBool("SAVE_MEDIA") }},

		{Name: "USE_CHROME", Func: func(c *Snapshot) any {
			return c.MustBool("USE_CHROME") && (c.MustBool("SAVE_PDF") || c.MustBool("SAVE_SCREENSHOT") || c.MustBool("SAVE_DOM") || c.MustBool("SAVE_SINGLEFILE"))
		}},
		{Name: "CHROME_BINARY", Func: func(c *Snapshot) any {
			if binary := c.MustString("CHROME_BINARY"); binary != "" {
				return binary
			}
			return hooks.findChrome()
		}},
		{Name: "CHROME_VERSION", Func: func(c *Snapshot) any {
			if c.MustBool("USE_CHROME") {
				return hooks.binVersion(c.MustString("CHROME_BINARY"))
			}
			return ""
		}},
		{Name: "USE_NODE", Func: func(c *Snapshot) any {
			return c.MustBool("USE_NODE") && (c.MustBool("SAVE_READABILITY") || c.MustBool("SAVE_SINGLEFILE"))
		}},
		{Name: "SAVE_PDF", Func: func(c *Snapshot) any { return c.MustBool("USE_CHROME") && c.MustBool("SAVE_PDF") }},
		{Name: "SAVE_SCREENSHOT", Func: func(c *Snapshot) any { return c.MustBool("USE_CHROME") && c.MustBool("SAVE_SCREENSHOT") }},
		{Name: "SAVE_DOM", Func: func(c *Snapshot) any { return c.MustBool("USE_CHROME") && c.MustBool("SAVE_DOM") }},
		{Name: "SAVE_SINGLEFILE", Func: func(c *Snapshot) any {
			return c.MustBool("USE_CHROME") && c.MustBool("SAVE_SINGLEFILE") && c.MustBool("USE_NODE")
		}},
		{Name: "SAVE_READABILITY", Func: func(c *Snapshot) any { return c.MustBool("USE_READABILITY") && c.MustBool("USE_NODE") }},
		{Name: "SAVE_MERCURY", Func: func(c *Snapshot) any { return c.MustBool("USE_MERCURY") && c.MustBool("USE_NODE") }},
	}

	return NewSchema(sections, derived)
}

// absPath resolves path (or fallback when path is empty) to an absolute path,
// aborting the pass if the working directory is unavailable.
func absPath(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		Fail(fmt.Errorf("cannot resolve path %q: %w", path, err))
	}
	return abs
}

// expandUserAgent substitutes the {VERSION}, {CURL_VERSION} and {WGET_VERSION}
// placeholders in a user-agent template key. Substituted values are read only
// when the template mentions them, so CURL_USER_AGENT never touches the
// later-declared WGET_VERSION.
func expandUserAgent(c *Snapshot, key string) string {
	ua := c.MustString(key)
	for _, name := range []string{"VERSION", "CURL_VERSION", "WGET_VERSION"} {
		token := "{" + name + "}"
		if strings.Contains(ua, token) {
			ua = strings.ReplaceAll(ua, token, c.MustString(name))
		}
	}
	return ua
}
