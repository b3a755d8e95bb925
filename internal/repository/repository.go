// Package repository binds together the lock, index, and object store
// components into the place backups are stored and restored from. See
// spec.md §6.
package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kolpa/bakare/internal/codec"
	"github.com/kolpa/bakare/internal/fs"
	"github.com/kolpa/bakare/internal/index"
	"github.com/kolpa/bakare/internal/itemid"
	"github.com/kolpa/bakare/internal/objectstore"
)

// ErrSourceInsideRepository is returned when the requested source path is
// itself inside the repository, which would make a backup try to back up
// its own data directory.
var ErrSourceInsideRepository = errors.New("repository: source path is inside the repository")

// ErrNotRegularFile is returned by Store when asked to store something
// that is not a regular file (a directory, device, symlink, ...).
// spec.md's Non-goals exclude preserving these, so the backup engine
// simply skips them rather than treating this as a hard failure.
var ErrNotRegularFile = errors.New("repository: not a regular file")

// DefaultLockTimeout bounds how long Repository operations wait to acquire
// the index lock before giving up.
const DefaultLockTimeout = 8192 * time.Millisecond

// Repository is a content-addressed, deduplicating, versioning store of
// backed-up files. A Repository is not safe for concurrent use from a
// single process; concurrent processes coordinate through the index lock.
type Repository struct {
	fsys        fs.FS
	log         *zap.Logger
	codec       *codec.Codec
	path        string
	lockTimeout time.Duration
	idx         *index.Index
	store       *objectstore.Store
}

// Options configures a Repository beyond its required path.
type Options struct {
	Log         *zap.Logger
	Codec       *codec.Codec
	LockTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}

	return o
}

// Init creates a new, empty repository at path: the directory, its data
// subdirectory, and an initial saved index.
func Init(fsys fs.FS, path string, opts Options) (*Repository, error) {
	opts = opts.withDefaults()

	err := fsys.MkdirAll(path, 0o750)
	if err != nil {
		return nil, fmt.Errorf("repository: creating %q: %w", path, err)
	}

	idx := index.New(path)

	err = idx.Save(fsys, opts.Log, opts.Codec, opts.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("repository: saving initial index: %w", err)
	}

	repo := newRepository(fsys, path, opts, idx)

	err = fsys.MkdirAll(repo.store.DataDir(), 0o750)
	if err != nil {
		return nil, fmt.Errorf("repository: creating data directory: %w", err)
	}

	return repo, nil
}

// Open loads an existing repository's index from path.
func Open(fsys fs.FS, path string, opts Options) (*Repository, error) {
	opts = opts.withDefaults()

	idx, err := index.Load(fsys, opts.Codec, path)
	if err != nil {
		return nil, fmt.Errorf("repository: loading index: %w", err)
	}

	opts.Log.Debug("opened repository",
		zap.String("path", path),
		zap.Stringer("version", idx.Version()),
		zap.Int("items", idx.Len()))

	return newRepository(fsys, path, opts, idx), nil
}

func newRepository(fsys fs.FS, path string, opts Options, idx *index.Index) *Repository {
	return &Repository{
		fsys:        fsys,
		log:         opts.Log,
		codec:       opts.Codec,
		path:        path,
		lockTimeout: opts.LockTimeout,
		idx:         idx,
		store:       objectstore.New(fsys, path),
	}
}

// Path returns the repository's root directory.
func (r *Repository) Path() string { return r.path }

// SaveIndex persists the in-memory index, merging with whatever is
// currently on disk. Callers should call this periodically during long
// backup/restore runs and always at the end, per spec.md §4.
func (r *Repository) SaveIndex() error {
	return r.idx.Save(r.fsys, r.log, r.codec, r.lockTimeout)
}

// Store backs up sourcePath's current content: computes its id, writes it
// into the object store (deduplicating against existing content), and
// records a new index entry. Non-regular files are skipped and reported
// via [ErrNotRegularFile], which callers (see the backup engine) treat as
// non-fatal.
func (r *Repository) Store(sourcePath string) (Item, error) {
	if r.isInsideRepository(sourcePath) {
		return Item{}, fmt.Errorf("%w: %s", ErrSourceInsideRepository, sourcePath)
	}

	// Lstat, not Stat: a symlink must be rejected as-is rather than
	// silently resolved to whatever regular file it happens to point at.
	info, err := r.fsys.Lstat(sourcePath)
	if err != nil {
		return Item{}, fmt.Errorf("repository: stat %q: %w", sourcePath, err)
	}

	if !info.Mode().IsRegular() {
		return Item{}, fmt.Errorf("%w: %s", ErrNotRegularFile, sourcePath)
	}

	f, err := r.fsys.Open(sourcePath)
	if err != nil {
		return Item{}, fmt.Errorf("repository: opening %q: %w", sourcePath, err)
	}

	id, checksum, err := itemid.OfWithChecksum(f)

	closeErr := f.Close()
	if err != nil {
		return Item{}, fmt.Errorf("repository: hashing %q: %w", sourcePath, err)
	}

	if closeErr != nil {
		return Item{}, fmt.Errorf("repository: closing %q: %w", sourcePath, closeErr)
	}

	err = r.store.Put(id, sourcePath)
	if err != nil {
		return Item{}, err
	}

	indexItem := r.idx.Remember(sourcePath, r.store.RelativePath(id), id)

	item := r.toItem(indexItem)
	item.ScanChecksum = checksum

	return item, nil
}

// NewestBySourcePath returns the newest backed-up revision of sourcePath.
func (r *Repository) NewestBySourcePath(sourcePath string) (Item, bool) {
	indexItem, ok := r.idx.NewestBySourcePath(sourcePath)
	if !ok {
		return Item{}, false
	}

	return r.toItem(indexItem), true
}

// ByID returns the item whose content hash is id.
func (r *Repository) ByID(id itemid.ID) (Item, bool) {
	indexItem, ok := r.idx.ByID(id)
	if !ok {
		return Item{}, false
	}

	return r.toItem(indexItem), true
}

// NewestItems returns the newest revision of every source path the
// repository has ever backed up, sorted by source path.
func (r *Repository) NewestItems() []Item {
	indexItems := r.idx.NewestItems()
	items := make([]Item, 0, len(indexItems))

	for _, ii := range indexItems {
		items = append(items, r.toItem(ii))
	}

	return items
}

// DataWeight returns the total size in bytes of all stored content.
func (r *Repository) DataWeight() (uint64, error) {
	weight, err := r.store.Weight()
	if err != nil {
		return 0, fmt.Errorf("repository: computing data weight: %w", err)
	}

	return weight, nil
}

// Verify performs a read-only consistency pass: the newest item of every
// source path must have a corresponding object on disk. Older revisions
// that the index records only by content id are not checked, and object
// content is not re-hashed. It returns one error per missing object,
// wrapped in [ErrCorrupted], and does not stop at the first failure so a
// single verify run reports everything broken.
func (r *Repository) Verify() []error {
	var problems []error

	for _, item := range r.NewestItems() {
		exists, err := r.fsys.Exists(item.AbsolutePath)
		if err != nil {
			problems = append(problems, fmt.Errorf("repository: checking %s: %w", item.OriginalSourcePath, err))

			continue
		}

		if !exists {
			problems = append(problems, fmt.Errorf("%w: %s -> %s", ErrCorrupted, item.OriginalSourcePath, item.AbsolutePath))
		}
	}

	return problems
}

func (r *Repository) toItem(ii index.Item) Item {
	return Item{
		OriginalSourcePath: ii.OriginalSourcePath,
		AbsolutePath:       filepath.Join(r.path, ii.RelativePath),
		RelativePath:       ii.RelativePath,
		ID:                 ii.ID,
		Version:            ii.Version,
	}
}

func (r *Repository) isInsideRepository(sourcePath string) bool {
	rel, err := filepath.Rel(r.path, sourcePath)
	if err != nil {
		return false
	}

	if rel == "." {
		return true
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
