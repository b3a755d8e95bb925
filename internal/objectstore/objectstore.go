// Package objectstore implements the repository's content-addressed blob
// storage: every distinct file content is written once, at a path derived
// from its [itemid.ID], under the repository's data directory. See
// spec.md §5.
package objectstore

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/itemid"
)

// DirName is the data directory's name within a repository.
const DirName = "data"

// Store is a content-addressed blob store rooted at a repository's data
// directory.
type Store struct {
	fsys fs.FS
	root string // repository root; objects live under root/DirName
}

// New builds a Store for the repository rooted at repositoryPath.
func New(fsys fs.FS, repositoryPath string) *Store {
	return &Store{fsys: fsys, root: repositoryPath}
}

// DataDir returns the absolute path of the data directory.
func (s *Store) DataDir() string {
	return filepath.Join(s.root, DirName)
}

// RelativePath returns id's path relative to the repository root — the
// form recorded in the index, per spec.md §6.
func (s *Store) RelativePath(id itemid.ID) string {
	return path.Join(DirName, id.String())
}

// AbsolutePath returns id's absolute on-disk path.
func (s *Store) AbsolutePath(id itemid.ID) string {
	return filepath.Join(s.root, s.RelativePath(id))
}

// Has reports whether content with the given id is already stored.
func (s *Store) Has(id itemid.ID) (bool, error) {
	exists, err := s.fsys.Exists(s.AbsolutePath(id))
	if err != nil {
		return false, fmt.Errorf("objectstore: checking %s: %w", id, err)
	}

	return exists, nil
}

// Put stores the content at sourcePath under id, unless content with that
// id is already present — the dedup step described in spec.md §3.
func (s *Store) Put(id itemid.ID, sourcePath string) error {
	has, err := s.Has(id)
	if err != nil {
		return err
	}

	if has {
		return nil
	}

	dest := s.AbsolutePath(id)

	err = s.fsys.MkdirAll(filepath.Dir(dest), 0o750)
	if err != nil {
		return fmt.Errorf("objectstore: creating data directory: %w", err)
	}

	err = s.fsys.Copy(sourcePath, dest)
	if err != nil {
		return fmt.Errorf("objectstore: storing %s: %w", id, err)
	}

	return nil
}

// Open opens the content stored under id for reading.
func (s *Store) Open(id itemid.ID) (fs.File, error) {
	f, err := s.fsys.Open(s.AbsolutePath(id))
	if err != nil {
		return nil, fmt.Errorf("objectstore: opening %s: %w", id, err)
	}

	return f, nil
}

// Weight returns the total size in bytes of every object currently stored.
func (s *Store) Weight() (uint64, error) {
	entries, err := s.fsys.ReadDir(s.DataDir())
	if err != nil {
		// An uninitialised or empty data directory weighs nothing.
		exists, existsErr := s.fsys.Exists(s.DataDir())
		if existsErr == nil && !exists {
			return 0, nil
		}

		return 0, fmt.Errorf("objectstore: listing data directory: %w", err)
	}

	var total uint64

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, statErr := s.fsys.Stat(filepath.Join(s.DataDir(), e.Name()))
		if statErr != nil {
			return 0, fmt.Errorf("objectstore: stat %s: %w", e.Name(), statErr)
		}

		total += uint64(info.Size())
	}

	return total, nil
}
