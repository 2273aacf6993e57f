// Package config loads the adapter's TOML configuration file, mirroring
// the section layout of the original Python implementation's
// ConfigParser-based loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// SearchPath is checked in order when no explicit path is given,
// matching the original's `search_path`.
var SearchPath = []string{
	"./deimos.toml",
	expandHome("~/.deimos.toml"),
	"/etc/deimos.toml",
	"/usr/etc/deimos.toml",
	"/usr/local/etc/deimos.toml",
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Config is the parsed, defaulted configuration.
type Config struct {
	Docker     Docker     `toml:"docker"`
	Containers Containers `toml:"containers"`
	Hooks      Hooks      `toml:"hooks"`
	URIs       URIs       `toml:"uris"`
	State      State      `toml:"state"`
	Log        Log        `toml:"log"`
}

// Docker carries the runtime binary location and any fixed global
// flags to prepend to every invocation (the adapter's runtimedriver.Driver
// is constructed from these two fields).
type Docker struct {
	Bin     string      `toml:"bin"`
	Options []string    `toml:"options"`
	Index   DockerIndex `toml:"index"`
}

// DockerIndex configures the registry account/index prefix applied to
// bare image names, matching the original's `DockerIndex`.
type DockerIndex struct {
	Index           string `toml:"index"`
	AccountLibmesos string `toml:"account_libmesos"`
	Account         string `toml:"account"`
	Dockercfg       string `toml:"dockercfg"`
}

// Containers groups the image and option override policy.
type Containers struct {
	Image   Image   `toml:"image"`
	Options Options `toml:"options"`
}

// Image resolves the effective image for a launch, matching the
// original's `Image.override`.
type Image struct {
	Default string `toml:"default"`
	Ignore  bool   `toml:"ignore"`
}

// Override returns the launch-supplied image unless the admin has
// pinned Ignore, in which case the configured default always wins.
func (i Image) Override(image string) string {
	if image != "" && !i.Ignore {
		return image
	}
	return i.Default
}

// Options resolves the effective runtime options for a launch,
// matching the original's `Options.override`.
type Options struct {
	Default []string `toml:"default"`
	Append  []string `toml:"append"`
	Ignore  bool     `toml:"ignore"`
}

// Override returns launch-supplied options (or the configured default
// when none were supplied, or Ignore forces the default), with the
// configured Append options always tacked on.
func (o Options) Override(options []string) []string {
	base := options
	if len(options) == 0 || o.Ignore {
		base = o.Default
	}
	out := make([]string, 0, len(base)+len(o.Append))
	out = append(out, base...)
	out = append(out, o.Append...)
	return out
}

// Hooks names external programs invoked around launch/destroy.
type Hooks struct {
	OnLaunch  []string `toml:"onlaunch"`
	OnDestroy []string `toml:"ondestroy"`
}

// URIs configures whether recognized archives are optimistically
// unpacked after download.
type URIs struct {
	Unpack bool `toml:"unpack"`
}

// State configures the root of the on-disk state directory.
type State struct {
	Root string `toml:"root"`
}

// Log configures the two logging sinks the zerolog setup
// supports: a human-readable console writer and syslog.
type Log struct {
	Console string `toml:"console"` // zerolog level name, or "" to disable
	Syslog  string `toml:"syslog"`  // zerolog level name, or "" to disable
}

// Default returns the configuration used when no file is found or
// supplied, matching the original's hardcoded class defaults.
func Default(interactive bool) Config {
	c := Config{
		Docker: Docker{Bin: "docker", Index: DockerIndex{AccountLibmesos: "libmesos"}},
		URIs:   URIs{Unpack: true},
		State:  State{Root: "/tmp/deimos"},
	}
	if interactive {
		c.Log.Console = "debug"
	} else {
		c.Log.Syslog = "info"
	}
	return c
}

// Path returns the first existing file in SearchPath, or "" if none exist.
func Path() string {
	for _, p := range SearchPath {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads and merges a TOML configuration file over the defaults.
// An explicit path is used verbatim; an empty path falls back to
// Path(). It is not an error for no file to be found — Default alone
// is returned in that case, matching the original's "no search path
// hit" branch, which is silent rather than fatal.
func Load(path string, interactive bool) (Config, error) {
	cfg := Default(interactive)
	if path == "" {
		path = Path()
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	if strings.Contains(cfg.State.Root, ":") {
		return cfg, fmt.Errorf("state root %q must not contain ':'", cfg.State.Root)
	}
	return cfg, nil
}
