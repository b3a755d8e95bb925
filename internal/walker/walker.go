// Package walker enumerates the files under a source directory for the
// backup engine to store. See spec.md §3.
package walker

import (
	"path/filepath"

	"github.com/kolpa/bakare/internal/fs"
)

// Walker yields every file system entry under a source path.
type Walker interface {
	// Walk calls visit once for every entry found under root, including
	// root itself. Directories and other non-regular files are passed
	// through unfiltered — the backup engine decides what to store.
	Walk(root string, visit func(path string, info fs.FileInfo) error) error
}

// FS walks a [fs.FS], so the same walker works against the real filesystem
// in production and against [fs.Fake] in tests.
type FS struct {
	Filesystem fs.FS
}

// New builds a [FS] walker over fsys.
func New(fsys fs.FS) FS { return FS{Filesystem: fsys} }

// Walk implements [Walker] by recursively listing directories through the
// fs.FS capability set, rather than calling the os package directly.
func (w FS) Walk(root string, visit func(path string, info fs.FileInfo) error) error {
	// Lstat, not Stat: a symlinked directory must not be followed into,
	// matching spec.md's treatment of symlinks as ignored entries.
	info, err := w.Filesystem.Lstat(root)
	if err != nil {
		return err
	}

	err = visit(root, info)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return nil
	}

	entries, err := w.Filesystem.ReadDir(root)
	if err != nil {
		return err
	}

	for _, e := range entries {
		err = w.Walk(filepath.Join(root, e.Name()), visit)
		if err != nil {
			return err
		}
	}

	return nil
}
