package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileExclusive publishes data at path only if nothing exists there yet.
// The content is staged in a temp file in the same directory, synced, and then
// hard-linked into place, so readers never observe a partial file. When path
// already exists the returned error satisfies errors.Is(err, fs.ErrExist).
func WriteFileExclusive(path string, data []byte, mode os.FileMode) error {
	tmp, err := stageTemp(path, data, mode)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		return err
	}
	syncDir(filepath.Dir(path))
	return nil
}

// WriteFileAtomic replaces path with data using a temp file and rename.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := stageTemp(path, data, mode)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	syncDir(filepath.Dir(path))
	return nil
}

// IsTempName reports whether name looks like a staging file created by this package.
func IsTempName(name string) bool {
	return len(name) > 0 && name[0] == '.' && filepath.Ext(name) == ".tmp"
}

func stageTemp(path string, data []byte, mode os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := f.Chmod(mode); err != nil {
		return fail(fmt.Errorf("chmod temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// syncDir flushes directory metadata so a rename or link survives a crash.
// Some filesystems reject fsync on directories; that is not treated as fatal.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
