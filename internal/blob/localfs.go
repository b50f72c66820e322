package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoArtifact is returned when a job directory holds no matching output.
var ErrNoArtifact = errors.New("no artifact found")

// LocalFS is the shared output directory. Each job writes into its own
// subdirectory named after the job id.
type LocalFS struct {
	Root string
}

// EnsureRoot creates the output directory if it does not exist yet.
func (l LocalFS) EnsureRoot() error {
	return os.MkdirAll(l.Root, 0o755)
}

// JobDir creates and returns the absolute output directory for one job.
func (l LocalFS) JobDir(jobID string) (string, error) {
	clean := filepath.Clean(jobID)
	if clean == "." || clean == ".." || strings.ContainsRune(clean, filepath.Separator) {
		return "", fmt.Errorf("invalid job id for directory: %q", jobID)
	}
	abs, err := filepath.Abs(filepath.Join(l.Root, clean))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// LatestArtifact returns the absolute path of the newest regular file in dir
// whose extension is in exts and that was written at or after since. An empty
// exts accepts any extension. Files are ranked by modification time, not name,
// because the converter picks its own file names.
func (l LocalFS) LatestArtifact(dir string, exts []string, since time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
		}
		return "", err
	}

	cutoff := since.Truncate(time.Second)
	var (
		best     string
		bestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !matchesExt(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if !since.IsZero() && mod.Before(cutoff) {
			continue
		}
		if best == "" || mod.After(bestTime) || (mod.Equal(bestTime) && entry.Name() > filepath.Base(best)) {
			best = filepath.Join(dir, entry.Name())
			bestTime = mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s (extensions %s)", ErrNoArtifact, dir, strings.Join(exts, ","))
	}
	return filepath.Abs(best)
}

func (l LocalFS) Open(path string) (*os.File, error) {
	return os.Open(l.resolve(path))
}

// Exists reports whether path is currently a regular file on disk.
func (l LocalFS) Exists(path string) bool {
	info, err := os.Stat(l.resolve(path))
	return err == nil && info.Mode().IsRegular()
}

// Sweep deletes files under Root last modified before cutoff and then
// removes job directories left empty, unless the directory itself changed
// after cutoff (a job that is still converting). It returns the number of
// files removed.
func (l LocalFS) Sweep(cutoff time.Time) (int, error) {
	removed := 0
	// dir mtimes are read before any file removal bumps them
	var dirs []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path == l.Root {
				return nil
			}
			info, err := d.Info()
			if err == nil && info.ModTime().Before(cutoff) {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	// deepest first so nested empty dirs collapse
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return removed, nil
}

func (l LocalFS) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.Root, filepath.Clean(path))
}

func matchesExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range exts {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
