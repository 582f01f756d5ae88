package fshelper

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Resolver resolves relative paths against an explicit base directory.
// The process working directory is never changed.
type Resolver struct {
	base string
}

// NewResolver creates a resolver rooted at base. An empty base resolves
// relative paths against the working directory.
func NewResolver(base string) *Resolver {
	return &Resolver{base: base}
}

// Resolve returns path joined to the base directory unless it is absolute
func (r *Resolver) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || r == nil || r.base == "" {
		return path
	}
	return filepath.Join(r.base, path)
}

// Open opens a resolved path for reading
func (r *Resolver) Open(path string) (*os.File, error) {
	return os.Open(r.Resolve(path))
}

// ReadFile reads a resolved path
func (r *Resolver) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(r.Resolve(path))
}

// WriteFileAtomic writes the output of fn to a temporary file next to path
// and renames it into place. The temporary file is removed on failure.
func (r *Resolver) WriteFileAtomic(path string, fn func(w io.Writer) error) error {
	target := r.Resolve(path)
	dir := filepath.Dir(target)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("error accessing output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := fn(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error renaming into place: %w", err)
	}
	return nil
}

// SamePath reports whether a and b resolve to the same file
func (r *Resolver) SamePath(a, b string) bool {
	absA, errA := filepath.Abs(r.Resolve(a))
	absB, errB := filepath.Abs(r.Resolve(b))
	if errA != nil || errB != nil {
		return false
	}
	if absA == absB {
		return true
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// Exists checks if a resolved path exists
func (r *Resolver) Exists(path string) (bool, error) {
	_, err := os.Stat(r.Resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
