package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Real is the production [FS], backed directly by the os package.
type Real struct{}

// NewReal creates a production filesystem.
func NewReal() *Real { return &Real{} }

// realFile adapts [os.File] to [File].
type realFile struct{ f *os.File }

func (r realFile) Read(p []byte) (int, error)          { return r.f.Read(p) }
func (r realFile) Write(p []byte) (int, error)          { return r.f.Write(p) }
func (r realFile) Seek(off int64, w int) (int64, error) { return r.f.Seek(off, w) }
func (r realFile) Close() error                         { return r.f.Close() }
func (r realFile) Sync() error                          { return r.f.Sync() }

func (r realFile) Stat() (FileInfo, error) {
	info, err := r.f.Stat()
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (*Real) Open(path string) (File, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled by design
	if err != nil {
		return nil, err
	}

	return realFile{f}, nil
}

func (*Real) Create(path string) (File, error) {
	f, err := os.Create(path) //nolint:gosec // path is caller-controlled by design
	if err != nil {
		return nil, err
	}

	return realFile{f}, nil
}

func (*Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(path, flag, perm) //nolint:gosec // path is caller-controlled by design
	if err != nil {
		return nil, err
	}

	return realFile{f}, nil
}

func (*Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // path is caller-controlled by design
}

func (*Real) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = e
	}

	return out, nil
}

func (*Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (*Real) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path) //nolint:gosec // path is caller-controlled by design
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (*Real) Lstat(path string) (FileInfo, error) {
	info, err := os.Lstat(path) //nolint:gosec // path is caller-controlled by design
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (r *Real) Exists(path string) (bool, error) {
	_, err := r.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (*Real) Remove(path string) error {
	return os.Remove(path)
}

func (*Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (r *Real) Copy(src, dst string) error {
	in, err := r.Open(src)
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	parent := filepath.Dir(dst)

	err = r.MkdirAll(parent, 0o750)
	if err != nil {
		return fmt.Errorf("create parent %q: %w", parent, err)
	}

	out, err := r.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination %q: %w", dst, err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %q: %w", dst, closeErr)
	}

	return nil
}

// ErrDirSync indicates the parent directory could not be synced after an
// atomic rename. The new file is in place, but durability across a power
// loss is not guaranteed.
var ErrDirSync = errors.New("dir sync failed")

var atomicWriteCounter atomic.Uint64

const atomicWriteMaxAttempts = 10000

// WriteFileAtomic writes data to a temp file in the same directory as path,
// syncs it, renames it over path, then syncs the parent directory.
func (r *Real) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	err := r.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("create parent %q: %w", dir, err)
	}

	tmpFile, tmpPath, err := createTempFile(r, dir, filepath.Base(path), perm)
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = tmpFile.Close()
		_ = r.Remove(tmpPath)
	}

	_, writeErr := tmpFile.Write(data)
	if writeErr != nil {
		cleanup()

		return fmt.Errorf("write temp file %q: %w", tmpPath, writeErr)
	}

	syncErr := tmpFile.Sync()
	if syncErr != nil {
		cleanup()

		return fmt.Errorf("sync temp file %q: %w", tmpPath, syncErr)
	}

	closeErr := tmpFile.Close()
	if closeErr != nil {
		_ = r.Remove(tmpPath)

		return fmt.Errorf("close temp file %q: %w", tmpPath, closeErr)
	}

	renameErr := r.Rename(tmpPath, path)
	if renameErr != nil {
		_ = r.Remove(tmpPath)

		return fmt.Errorf("rename %q to %q: %w", tmpPath, path, renameErr)
	}

	syncDirErr := fsyncDir(dir)
	if syncDirErr != nil {
		return errors.Join(ErrDirSync, syncDirErr)
	}

	return nil
}

func createTempFile(r *Real, dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := r.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir) //nolint:gosec // dir is caller-controlled by design
	if err != nil {
		return fmt.Errorf("open dir %q: %w", dir, err)
	}

	defer func() { _ = f.Close() }()

	syncErr := f.Sync()
	if syncErr != nil {
		return fmt.Errorf("sync dir %q: %w", dir, syncErr)
	}

	return nil
}
