// Package disc implements the persistent tier of the image cache: a
// key->file store under a primary root with a reserve root that takes over
// when the primary is unwritable (read-only media, full volume, missing
// mount).
//
// Files are staged to a temp path and committed with an atomic rename, so a
// reader never observes a partially written cache file.
package disc

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pixload/pixload/internal/logger"
)

const tmpSuffix = ".tmp"

// Cache is the disc cache. Safe for concurrent use; the engine's per-key
// locks guarantee at most one writer per URI.
type Cache struct {
	root        string
	reserveRoot string
}

// New creates a disc cache rooted at root. reserveRoot may be empty, which
// disables the fallback.
func New(root, reserveRoot string) *Cache {
	return &Cache{root: root, reserveRoot: reserveRoot}
}

// fileName derives the cache file name for a URI.
func fileName(uri string) string {
	sum := sha1.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// LocationFor returns the path where the cache file for uri lives or should
// be written. The primary root is used when its directory can be created;
// otherwise the reserve root takes over.
func (c *Cache) LocationFor(uri string) string {
	name := fileName(uri)

	if err := os.MkdirAll(c.root, 0755); err == nil {
		return filepath.Join(c.root, name)
	} else if c.reserveRoot == "" {
		// No fallback configured; the write will surface the real error.
		return filepath.Join(c.root, name)
	} else {
		logger.Warn("primary disc cache unwritable, using reserve",
			"root", c.root, "reserve", c.reserveRoot, "error", err)
	}

	if err := os.MkdirAll(c.reserveRoot, 0755); err != nil {
		logger.Error("reserve disc cache unwritable", "reserve", c.reserveRoot, "error", err)
	}
	return filepath.Join(c.reserveRoot, name)
}

// Lookup returns the existing cache file for uri, checking the primary root
// first and then the reserve.
func (c *Cache) Lookup(uri string) (string, bool) {
	name := fileName(uri)

	primary := filepath.Join(c.root, name)
	if fileExists(primary) {
		return primary, true
	}

	if c.reserveRoot != "" {
		reserve := filepath.Join(c.reserveRoot, name)
		if fileExists(reserve) {
			return reserve, true
		}
	}
	return "", false
}

// StagingFor returns the temp path a writer should stream into before
// Commit.
func (c *Cache) StagingFor(uri string) string {
	return c.LocationFor(uri) + tmpSuffix
}

// Commit atomically publishes a staged file as the cache entry for uri and
// returns the final path.
func (c *Cache) Commit(uri, staged string) (string, error) {
	final := staged
	if filepath.Ext(staged) == tmpSuffix {
		final = staged[:len(staged)-len(tmpSuffix)]
	}
	if err := os.Rename(staged, final); err != nil {
		return "", fmt.Errorf("disc cache commit %s: %w", uri, err)
	}
	return final, nil
}

// Discard deletes a staged file after a failed write. Missing files are
// fine.
func (c *Cache) Discard(staged string) {
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to discard staged cache file", "path", staged, "error", err)
	}
}

// Remove deletes the committed cache entry for uri from both roots.
func (c *Cache) Remove(uri string) error {
	name := fileName(uri)
	var firstErr error
	for _, root := range []string{c.root, c.reserveRoot} {
		if root == "" {
			continue
		}
		if err := os.Remove(filepath.Join(root, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
