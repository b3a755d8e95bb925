// Package backupengine drives a full backup of a source directory into a
// repository. See spec.md §3.
package backupengine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/repository"
	"github.com/kolpa/bakare/internal/scancache"
	"github.com/kolpa/bakare/internal/walker"
)

// SaveIndexEvery controls how often the engine persists the index during a
// long-running backup, so a crash partway through loses at most this many
// stored items of progress rather than the whole run. See spec.md §4's
// crash-consistency requirement.
const SaveIndexEvery = 16

// Repository is the subset of *repository.Repository the engine needs,
// narrowed so tests can substitute a stub.
type Repository interface {
	Store(sourcePath string) (repository.Item, error)
	NewestBySourcePath(sourcePath string) (repository.Item, bool)
	SaveIndex() error
}

// Engine walks a source directory and stores every regular file it finds
// into a repository.
type Engine struct {
	fsys     fs.FS
	repo     Repository
	walk     walker.Walker
	log      *zap.Logger
	every    int
	cache    *scancache.Cache // nil disables the scan-cache fast path
	cacheDir string
}

// New builds an Engine that stores into repo using walk to enumerate the
// source tree. The scan-cache fast path is disabled; use
// [Engine.WithScanCache] to enable it.
func New(repo Repository, walk walker.Walker, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{repo: repo, walk: walk, log: log, every: SaveIndexEvery}
}

// WithScanCache enables the scan-cache fast path: files whose mtime and
// size match the cache entry from a previous backup are assumed unchanged
// and skipped entirely, rather than re-read and re-hashed. fsys is used to
// load and save the cache file alongside the repository; cacheDir is
// typically the repository path.
func (e *Engine) WithScanCache(fsys fs.FS, cacheDir string) (*Engine, error) {
	cache, err := scancache.Load(fsys, cacheDir)
	if err != nil && !errors.Is(err, scancache.ErrCorrupt) {
		return nil, fmt.Errorf("backup: loading scan cache: %w", err)
	}

	e.fsys = fsys
	e.cache = cache
	e.cacheDir = cacheDir

	return e, nil
}

// Backup walks sourcePath and stores every regular file under it,
// skipping directories and other non-regular files silently (spec.md's
// Non-goals exclude preserving anything but file content). The index is
// saved periodically during the walk and always once more at the end.
func (e *Engine) Backup(sourcePath string) error {
	stored := 0
	skipped := 0

	err := e.walk.Walk(sourcePath, func(path string, info fs.FileInfo) error {
		if info.IsDir() {
			return nil
		}

		if e.unchangedSinceLastScan(path, info) {
			skipped++

			return nil
		}

		item, storeErr := e.repo.Store(path)
		if storeErr != nil {
			if errors.Is(storeErr, repository.ErrNotRegularFile) {
				e.log.Debug("skipping non-regular file", zap.String("path", path))

				return nil
			}

			return fmt.Errorf("backup: storing %q: %w", path, storeErr)
		}

		if e.cache != nil {
			e.cache.Remember(path, info.ModTime(), info.Size(), item.ScanChecksum)
		}

		stored++

		if stored%e.every == 0 {
			if saveErr := e.repo.SaveIndex(); saveErr != nil {
				return fmt.Errorf("backup: saving index: %w", saveErr)
			}

			e.log.Debug("checkpointed index", zap.Int("stored_so_far", stored))
		}

		return nil
	})
	if err != nil {
		return err
	}

	err = e.repo.SaveIndex()
	if err != nil {
		return fmt.Errorf("backup: saving final index: %w", err)
	}

	if e.cache != nil {
		err = e.cache.Save(e.fsys, e.cacheDir)
		if err != nil {
			return fmt.Errorf("backup: saving scan cache: %w", err)
		}
	}

	e.log.Info("backup complete",
		zap.String("source", sourcePath),
		zap.Int("files_stored", stored),
		zap.Int("files_skipped_unchanged", skipped))

	return nil
}

// unchangedSinceLastScan reports whether path can skip hashing entirely:
// the scan cache must be enabled, must have seen this exact mtime/size
// before, and the repository must already have an index entry for path
// (otherwise there is nothing for "unchanged" to mean).
func (e *Engine) unchangedSinceLastScan(path string, info fs.FileInfo) bool {
	if e.cache == nil {
		return false
	}

	_, matches := e.cache.Unchanged(path, info.ModTime(), info.Size())
	if !matches {
		return false
	}

	_, hasPriorItem := e.repo.NewestBySourcePath(path)

	return hasPriorItem
}
