package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/itemid"
	"github.com/kolpa/bakare/internal/version"
)

// ErrCorrupted is returned when an index entry points at a repository
// object that no longer exists on disk.
var ErrCorrupted = errors.New("repository: corrupted repository, missing object")

// ErrTargetNotAbsolute is returned when a restore target root is not an
// absolute path, matching spec.md §8's edge case E3.
var ErrTargetNotAbsolute = errors.New("repository: target path not absolute")

// Item is a fully resolved view of one index entry: the original source
// path it was backed up from, where its content lives in the repository,
// and which revision it is.
type Item struct {
	OriginalSourcePath string
	AbsolutePath       string
	RelativePath       string
	ID                 itemid.ID
	Version            version.Version

	// ScanChecksum is the fast xxh3 checksum computed alongside the
	// content id during Store. It is never persisted to the index; it
	// exists only so the backup engine's scan-cache fast path can record
	// it without re-reading the file. Zero when the item came from the
	// index rather than a fresh Store call.
	ScanChecksum uint64
}

// String renders the item the way a verify/list command would display it:
// the source path and its content id.
func (i Item) String() string {
	return fmt.Sprintf("'%s' : %s", i.OriginalSourcePath, i.ID)
}

// Save copies the item's content from the repository to its original
// location under targetRoot, recreating the source's directory structure.
// targetRoot must be absolute, per spec.md's restore invariant that
// restored files land at an unambiguous location.
func (i Item) Save(fsys fs.FS, targetRoot string) error {
	if !filepath.IsAbs(targetRoot) {
		return ErrTargetNotAbsolute
	}

	relSourcePath := strings.TrimPrefix(i.OriginalSourcePath, "/")
	target := filepath.Join(targetRoot, relSourcePath)

	if !filepath.IsAbs(target) {
		return ErrTargetNotAbsolute
	}

	exists, err := fsys.Exists(i.AbsolutePath)
	if err != nil {
		return fmt.Errorf("repository: checking object %s: %w", i.ID, err)
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrCorrupted, i.AbsolutePath)
	}

	err = fsys.Copy(i.AbsolutePath, target)
	if err != nil {
		return fmt.Errorf("repository: restoring %s: %w", i.OriginalSourcePath, err)
	}

	return nil
}
