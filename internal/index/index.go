// Package index implements the repository's item index: a crash-consistent,
// mergeable record of the newest known revision of every source path ever
// backed up, plus a lookup from content id back to the item that produced
// it. See spec.md §4 and §6.
package index

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/codec"
	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/itemid"
	"github.com/kolpa/bakare/internal/lock"
	"github.com/kolpa/bakare/internal/version"
)

// fileName is the index document's name within a repository, sitting
// alongside the object store directory.
const fileName = "index"

// lockDirName is the directory two concurrent processes coordinate through
// while saving the index, per spec.md §4.3.
const lockDirName = "index.lock.d"

// Index is the in-memory, mutable view of a repository's item history.
// Index is not safe for concurrent use; callers serialize access to a
// single Index the same way the repository package does around a
// [lock.Lock].
type Index struct {
	newestBySourcePath map[string]Item
	byID               map[string]Item // keyed by itemid.ID.String()
	repositoryPath     string
	version            version.Version
}

// New creates an empty index for a repository rooted at repositoryPath.
func New(repositoryPath string) *Index {
	return &Index{
		newestBySourcePath: make(map[string]Item),
		byID:               make(map[string]Item),
		repositoryPath:     repositoryPath,
		version:            version.Default,
	}
}

// Remember records that sourcePath's current content hashes to id and is
// stored at relativePath, bumping the version for that source path.
func (idx *Index) Remember(sourcePath, relativePath string, id itemid.ID) Item {
	var item Item

	if old, ok := idx.newestBySourcePath[sourcePath]; ok {
		item = old.NextVersion(id, relativePath)
	} else {
		item = Item{
			OriginalSourcePath: sourcePath,
			RelativePath:       relativePath,
			ID:                 id,
			Version:            version.Default,
		}
	}

	idx.byID[item.ID.String()] = item
	idx.newestBySourcePath[sourcePath] = item

	return item
}

// NewestBySourcePath returns the newest known item for sourcePath, and
// whether one exists.
func (idx *Index) NewestBySourcePath(sourcePath string) (Item, bool) {
	item, ok := idx.newestBySourcePath[sourcePath]

	return item, ok
}

// ByID returns the item whose content hash is id, and whether one exists.
func (idx *Index) ByID(id itemid.ID) (Item, bool) {
	item, ok := idx.byID[id.String()]

	return item, ok
}

// NewestItems returns every source path's newest item, sorted by source
// path for deterministic iteration order.
func (idx *Index) NewestItems() []Item {
	items := make([]Item, 0, len(idx.newestBySourcePath))
	for _, item := range idx.newestBySourcePath {
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].OriginalSourcePath < items[j].OriginalSourcePath
	})

	return items
}

// Version reports the index's current version.
func (idx *Index) Version() version.Version { return idx.version }

// Len reports how many distinct source paths the index tracks.
func (idx *Index) Len() int { return len(idx.newestBySourcePath) }

// document is the on-disk JSON shape. Kept separate from Index so the
// in-memory maps can use itemid.ID as part of their Go key (a string) while
// the document round-trips item-by-item.
type document struct {
	NewestItemsBySourcePath map[string]Item `json:"newest_items_by_source_path"`
	ItemsByFileID           map[string]Item `json:"items_by_file_id"`
	Version                 version.Version `json:"version"`
}

func (idx *Index) toDocument() document {
	return document{
		NewestItemsBySourcePath: idx.newestBySourcePath,
		ItemsByFileID:           idx.byID,
		Version:                idx.version,
	}
}

func fromDocument(repositoryPath string, doc document) *Index {
	idx := New(repositoryPath)

	if doc.NewestItemsBySourcePath != nil {
		idx.newestBySourcePath = doc.NewestItemsBySourcePath
	}

	if doc.ItemsByFileID != nil {
		idx.byID = doc.ItemsByFileID
	}

	idx.version = doc.Version

	return idx
}

func indexFilePath(repositoryPath string) string {
	return filepath.Join(repositoryPath, fileName)
}

func lockDirPath(repositoryPath string) string {
	return filepath.Join(repositoryPath, lockDirName)
}

// Load reads the index currently on disk for repositoryPath. If no index
// file exists yet, an empty index is returned without touching disk.
func Load(fsys fs.FS, c *codec.Codec, repositoryPath string) (*Index, error) {
	path := indexFilePath(repositoryPath)

	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("index: checking %q: %w", path, err)
	}

	if !exists {
		return New(repositoryPath), nil
	}

	return loadFromFile(fsys, c, repositoryPath)
}

func loadFromFile(fsys fs.FS, c *codec.Codec, repositoryPath string) (*Index, error) {
	path := indexFilePath(repositoryPath)

	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: reading %q: %w", path, err)
	}

	plain, err := c.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("index: decoding %q: %w", path, err)
	}

	var doc document

	err = json.Unmarshal(plain, &doc)
	if err != nil {
		return nil, fmt.Errorf("index: parsing %q: %w", path, err)
	}

	return fromDocument(repositoryPath, doc), nil
}

// Save merges idx with whatever index is currently on disk, bumps the
// version, and writes the result back — all while holding the repository's
// index lock. This is the read-merge-write protocol from spec.md §4.3:
// concurrent backups never silently lose each other's items.
func (idx *Index) Save(fsys fs.FS, log *zap.Logger, c *codec.Codec, timeout time.Duration) error {
	if log == nil {
		log = zap.NewNop()
	}

	return lock.WithLock(fsys, log, lockDirPath(idx.repositoryPath), timeout, func() error {
		path := indexFilePath(idx.repositoryPath)

		exists, err := fsys.Exists(path)
		if err != nil {
			return fmt.Errorf("index: checking %q: %w", path, err)
		}

		if exists {
			onDisk, err := loadFromFile(fsys, c, idx.repositoryPath)
			if err != nil {
				return err
			}

			idx.mergeFrom(onDisk)
		}

		idx.version = idx.version.Next()

		err = idx.writeToFile(fsys, c)
		if err != nil {
			return err
		}

		log.Debug("saved index",
			zap.String("repository", idx.repositoryPath),
			zap.Stringer("version", idx.version),
			zap.Int("items", len(idx.newestBySourcePath)))

		return nil
	})
}

// mergeFrom folds the on-disk index into idx, matching spec.md §4.3: items
// by content id are unioned (this process's in-memory values take
// precedence on a colliding key, since they reflect work done since the
// last load), the newest item per source path is whichever side's version
// is higher (ties keep the in-memory value), and the version becomes the
// max of both sides.
func (idx *Index) mergeFrom(onDisk *Index) {
	for id, item := range onDisk.byID {
		if _, ours := idx.byID[id]; !ours {
			idx.byID[id] = item
		}
	}

	for path, diskItem := range onDisk.newestBySourcePath {
		ourItem, ok := idx.newestBySourcePath[path]
		if !ok || diskItem.Version > ourItem.Version {
			idx.newestBySourcePath[path] = diskItem
		}
	}

	idx.version = version.Max(idx.version, onDisk.version)
}

func (idx *Index) writeToFile(fsys fs.FS, c *codec.Codec) error {
	path := indexFilePath(idx.repositoryPath)

	plain, err := json.Marshal(idx.toDocument())
	if err != nil {
		return fmt.Errorf("index: encoding: %w", err)
	}

	encoded, err := c.Encode(plain)
	if err != nil {
		return fmt.Errorf("index: encoding %q: %w", path, err)
	}

	err = fsys.WriteFileAtomic(path, encoded, 0o640)
	if err != nil {
		return fmt.Errorf("index: writing %q: %w", path, err)
	}

	return nil
}
