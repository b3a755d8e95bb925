// Package scancache lets the backup engine skip re-hashing files whose
// mtime and size haven't changed since the last backup run. The xxh3
// checksum recorded per file is stored but not compared. It is
// a supplemental, off-by-default fast path: see SPEC_FULL.md §3.5. Without
// it, every backup re-reads and SHA-512-hashes every source file, which is
// correct but wasteful for large, mostly-static source trees.
package scancache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/kolpa/bakare/internal/fs"
)

const fileName = ".bakare-scancache"

// ErrCorrupt is returned by Load when the cache file exists but cannot be
// decoded; callers should treat this the same as a cache miss rather than
// failing the backup.
var ErrCorrupt = errors.New("scancache: cache file corrupted")

// Entry records the state of a source file the last time it was hashed.
type Entry struct {
	ModTime  time.Time
	Size     int64
	Checksum uint64 // xxh3 of the file content at ModTime
}

// Cache maps a source path to the scan state it had when last hashed.
type Cache struct {
	Entries map[string]Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{Entries: make(map[string]Entry)}
}

// Load reads a previously saved cache from dir. A missing file is not an
// error: it returns an empty cache, since the fast path degrades
// gracefully to "hash everything" on a cold cache.
func Load(fsys fs.FS, dir string) (*Cache, error) {
	path := dir + "/" + fileName

	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("scancache: checking %q: %w", path, err)
	}

	if !exists {
		return New(), nil
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scancache: opening %q: %w", path, err)
	}
	defer f.Close()

	var cache Cache

	err = gob.NewDecoder(f).Decode(&cache)
	if err != nil {
		return New(), fmt.Errorf("%w: %s", ErrCorrupt, path)
	}

	if cache.Entries == nil {
		cache.Entries = make(map[string]Entry)
	}

	return &cache, nil
}

// Save writes the cache to dir, atomically.
func (c *Cache) Save(fsys fs.FS, dir string) error {
	path := dir + "/" + fileName

	var buf bytes.Buffer

	err := gob.NewEncoder(&buf).Encode(c)
	if err != nil {
		return fmt.Errorf("scancache: encoding: %w", err)
	}

	err = fsys.WriteFileAtomic(path, buf.Bytes(), 0o640)
	if err != nil {
		return fmt.Errorf("scancache: writing %q: %w", path, err)
	}

	return nil
}

// Unchanged reports whether sourcePath's current mtime and size match the
// cache entry recorded at checksum time — a cheap check the backup engine
// uses to decide whether a full content re-hash is even necessary.
func (c *Cache) Unchanged(sourcePath string, modTime time.Time, size int64) (Entry, bool) {
	entry, ok := c.Entries[sourcePath]
	if !ok {
		return Entry{}, false
	}

	return entry, entry.ModTime.Equal(modTime) && entry.Size == size
}

// Remember records sourcePath's current mtime, size, and content checksum.
// checksum is expected to come from the same read that computed the
// file's content id (see [itemid.OfWithChecksum]), so this never triggers
// a second pass over the file's content.
func (c *Cache) Remember(sourcePath string, modTime time.Time, size int64, checksum uint64) {
	c.Entries[sourcePath] = Entry{
		ModTime:  modTime,
		Size:     size,
		Checksum: checksum,
	}
}
