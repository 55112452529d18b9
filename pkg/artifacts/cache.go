// Package artifacts manages the per-run working directory: deterministic
// artifact names keyed by (workbook, sheet, table, timestamp), the
// logs/{user}/{runId} layout, TTL-based cleanup, and a sqlite ledger of
// runs and the artifacts they produced.
package artifacts

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampFormat is the run timestamp embedded in artifact names. It is
// shared by every artifact of one run, including recursive sub-runs.
const TimestampFormat = "20060102T150405"

// maxNameSegment caps one naming segment before the hash fallback kicks
// in, keeping paths filesystem-safe.
const maxNameSegment = 80

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize makes a naming segment filesystem-safe, hashing it when it
// would exceed the segment cap.
func Sanitize(segment string) string {
	s := unsafeChars.ReplaceAllString(segment, "_")
	if len(s) > maxNameSegment {
		sum := sha1.Sum([]byte(segment))
		s = s[:maxNameSegment-9] + "." + hex.EncodeToString(sum[:4])
	}
	return s
}

// Name builds the canonical artifact name
// {basename}.{sheet}.{table}.{timestamp}.{kind}.{ext}.
func Name(basename, sheet, table, timestamp, kind, ext string) string {
	parts := []string{Sanitize(basename), Sanitize(sheet)}
	if table != "" {
		parts = append(parts, Sanitize(table))
	}
	parts = append(parts, timestamp, kind, ext)
	return strings.Join(parts, ".")
}

// Dir is one run's working directory under logs/{user}/{runId}.
type Dir struct {
	Root string // the logs root
	User string
	Run  string
}

// NewDir creates (if needed) and returns the run directory.
func NewDir(root, user, runID string) (*Dir, error) {
	d := &Dir{Root: root, User: Sanitize(user), Run: Sanitize(runID)}
	if err := os.MkdirAll(d.Path(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return d, nil
}

// Path returns the absolute run directory.
func (d *Dir) Path() string {
	return filepath.Join(d.Root, d.User, d.Run)
}

// File returns the full path of a named artifact inside the run dir.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Path(), name)
}

// WriteFile persists one artifact.
func (d *Dir) WriteFile(name string, data []byte) (string, error) {
	path := d.File(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return path, nil
}

// Exists reports whether a named artifact is present.
func (d *Dir) Exists(name string) bool {
	_, err := os.Stat(d.File(name))
	return err == nil
}

// CleanupExpired removes user run directories whose modification time is
// older than ttl. It runs at the end of each refresh and never fails the
// run: errors are returned for logging only.
func CleanupExpired(root string, ttl time.Duration) error {
	users, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to scan logs root: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	var firstErr error
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		userDir := filepath.Join(root, u.Name())
		runs, err := os.ReadDir(userDir)
		if err != nil {
			continue
		}
		for _, r := range runs {
			if !r.IsDir() {
				continue
			}
			info, err := r.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.RemoveAll(filepath.Join(userDir, r.Name())); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}
