package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// AppName names the per-user directories the application writes to.
const AppName = "chunkvoice"

const outputDirPerm = 0o755

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// OutputDirs are the candidate directories for rendered files.
type OutputDirs struct {
	// Music is persistent and user visible. It may be empty.
	Music string
	// Private is persistent application storage, used when Music is unusable.
	Private string
	// Cache holds throwaway renders.
	Cache string
}

// ResolveOutputDirs fills unset directories in cfg with platform defaults.
func ResolveOutputDirs(cfg OutputConfig) (OutputDirs, error) {
	dirs := OutputDirs{
		Music:   cfg.MusicDir,
		Private: cfg.PrivateDir,
		Cache:   cfg.CacheDir,
	}
	scope := gap.NewScope(gap.User, AppName)

	if dirs.Music == "" {
		dirs.Music = defaultMusicDir()
	}
	if dirs.Private == "" {
		p, err := scope.DataPath("recordings")
		if err != nil {
			return dirs, fmt.Errorf("locate data directory: %w", err)
		}
		dirs.Private = p
	}
	if dirs.Cache == "" {
		c, err := scope.CacheDir()
		if err != nil {
			return dirs, fmt.Errorf("locate cache directory: %w", err)
		}
		dirs.Cache = filepath.Join(c, "renders")
	}
	return dirs, nil
}

// defaultMusicDir returns XDG_MUSIC_DIR or ~/Music, with an app subdirectory.
// It returns "" when no home directory is known.
func defaultMusicDir() string {
	if d := os.Getenv("XDG_MUSIC_DIR"); d != "" {
		if expanded, err := homedir.Expand(d); err == nil {
			return filepath.Join(expanded, AppName)
		}
	}
	home, err := homedir.Dir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, "Music", AppName)
}

// Select returns the directory a render should be written to, creating it.
// Persistent renders go to Music, falling back to Private when Music is unset
// or cannot be created. Other renders go to Cache.
func (d OutputDirs) Select(persistent bool) (string, error) {
	if !persistent {
		if err := os.MkdirAll(d.Cache, outputDirPerm); err != nil {
			return "", fmt.Errorf("create cache directory: %w", err)
		}
		return d.Cache, nil
	}

	if d.Music != "" {
		if err := os.MkdirAll(d.Music, outputDirPerm); err == nil {
			return d.Music, nil
		}
	}
	if err := os.MkdirAll(d.Private, outputDirPerm); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return d.Private, nil
}

// SanitizeFileName maps a caller supplied name to a safe .wav file name.
// Characters outside [A-Za-z0-9._-] become '_'. A different extension is
// replaced by .wav; names without one get it appended.
func SanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return ""
	}

	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".wav") {
		return name
	}
	if stem := strings.TrimSuffix(name, ext); ext != "" && stem != "" && strings.Trim(stem, ".") != "" {
		if strings.EqualFold(filepath.Ext(stem), ".wav") {
			return stem
		}
		name = stem
	}
	return name + ".wav"
}

// DefaultFileName returns the timestamped name used when no name is given.
func DefaultFileName(now time.Time) string {
	return fmt.Sprintf("tts-%d.wav", now.UnixMilli())
}

// OutputPath returns the absolute path a render with opts should be written to.
func (d OutputDirs) OutputPath(opts SaveOptions, now time.Time) (string, error) {
	dir, err := d.Select(bool(opts.IsSaving))
	if err != nil {
		return "", err
	}

	name := ""
	if opts.FileName != "" {
		name = SanitizeFileName(opts.FileName)
	}
	if name == "" {
		name = DefaultFileName(now)
	}

	abs, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	return abs, nil
}
