package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Store gives access to the mirror tree. All paths are relative to the root.
type Store struct {
	fs   afero.Fs
	root string
}

func New(root string) *Store {
	return NewWithFs(afero.NewOsFs(), root)
}

func NewWithFs(fs afero.Fs, root string) *Store {
	return &Store{
		fs:   fs,
		root: filepath.Clean(root),
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Fs() afero.Fs {
	return s.fs
}

func (s *Store) abs(path string) string {
	return filepath.Join(s.root, path)
}

func (s *Store) EnsureDir(path string) error {
	if err := s.fs.MkdirAll(s.abs(path), dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func (s *Store) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, s.abs(path))
}

// Size returns the size of a regular file and whether it exists.
func (s *Store) Size(path string) (int64, bool, error) {
	fi, err := s.fs.Stat(s.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if fi.IsDir() {
		return 0, false, fmt.Errorf("%s is a directory", path)
	}
	return fi.Size(), true, nil
}

// WriteAtomic streams r into a temporary file next to path and renames it into
// place. On failure the temporary file is removed and path is left untouched.
func (s *Store) WriteAtomic(path string, r io.Reader) (int64, error) {
	dst := s.abs(path)
	tmp, err := afero.TempFile(s.fs, filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(tmpName, fileMode)
	}
	if err == nil {
		err = s.fs.Rename(tmpName, dst)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}

func (s *Store) WriteFileAtomic(path string, data []byte) error {
	_, err := s.WriteAtomic(path, bytes.NewReader(data))
	return err
}

func (s *Store) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, s.abs(path))
}

func (s *Store) Open(path string) (afero.File, error) {
	return s.fs.Open(s.abs(path))
}

// Remove deletes a single file. A missing file is not an error.
func (s *Store) Remove(path string) error {
	err := s.fs.Remove(s.abs(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) RemoveAll(path string) error {
	return s.fs.RemoveAll(s.abs(path))
}

// ListDirs returns the sorted names of the immediate subdirectories of path.
func (s *Store) ListDirs(path string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.abs(path))
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ListFiles returns the regular files directly inside path.
func (s *Store) ListFiles(path string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, s.abs(path))
	if err != nil {
		return nil, err
	}
	files := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() {
			files = append(files, e)
		}
	}
	return files, nil
}

// Walk calls fn for every regular file below the root with its path relative
// to the root, using forward slashes.
func (s *Store) Walk(fn func(rel string, fi os.FileInfo) error) error {
	return afero.Walk(s.fs, s.root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), fi)
	})
}
