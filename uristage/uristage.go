// Package uristage fetches the URIs a launch request names into the
// task sandbox before the container starts.
package uristage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// URI is the subset of a launch request's command.uris entry this
// package needs.
type URI struct {
	Value      string
	Executable bool
	Extract    bool
}

// Stager fetches URIs with curl, matching the original's own choice
// of external binary rather than an in-process HTTP client — staying
// consistent with shelling out to
// purpose-built external tools instead of reimplementing them.
type Stager struct {
	Log zerolog.Logger
}

// Place downloads every URI into directory, continuing past a failed
// download or unpack of any single URI (a bad URI should not abort the
// rest of the launch); a failure to mark a file executable is returned
// as an error.
// When optimisticUnpack is set, archives recognized by extension are
// unpacked in place and the archive itself removed afterward,
// matching the original's `place_uris`.
func (s Stager) Place(ctx context.Context, directory string, uris []URI, optimisticUnpack bool) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create sandbox directory %s: %w", directory, err)
	}

	for _, item := range uris {
		base := path.Base(item.Value)
		if base == "" || base == "." || base == "/" {
			s.Log.Info().Str("uri", item.Value).Msg("could not determine basename, skipping")
			continue
		}
		dest := filepath.Join(directory, base)

		s.Log.Info().Str("uri", item.Value).Msg("retrieving uri")
		cmd := exec.CommandContext(ctx, "curl", "-sSfL", item.Value, "--output", dest)
		if out, err := cmd.CombinedOutput(); err != nil {
			s.Log.Warn().Str("uri", item.Value).Err(err).Str("output", strings.TrimSpace(string(out))).Msg("failed to retrieve uri")
			continue
		}

		if item.Executable {
			if err := os.Chmod(dest, 0755); err != nil {
				return fmt.Errorf("failed to mark %s executable: %w", dest, err)
			}
		}

		if optimisticUnpack {
			if unpackArgv := unpacker(item.Value, dest, directory); unpackArgv != nil {
				s.Log.Info().Str("file", dest).Msg("unpacking")
				if out, err := exec.CommandContext(ctx, unpackArgv[0], unpackArgv[1:]...).CombinedOutput(); err != nil {
					s.Log.Warn().Str("file", dest).Err(err).Str("output", strings.TrimSpace(string(out))).Msg("failed to unpack")
					continue
				}
				_ = os.Remove(dest)
			}
		}
	}
	return nil
}

var (
	tarballPattern = regexp.MustCompile(`(?:\.t|\.tar\.)(bz2|xz|gz)$`)
	zipPattern     = regexp.MustCompile(`\.zip$`)
)

// unpacker returns the argv to unpack f into directory, or nil when
// uri's extension is not a recognized archive format, matching the
// original's `unpacker`.
func unpacker(uri, f, directory string) []string {
	switch {
	case tarballPattern.MatchString(uri):
		return []string{"tar", "-C", directory, "-xf", f}
	case zipPattern.MatchString(uri):
		return []string{"unzip", "-d", directory, f}
	default:
		return nil
	}
}
