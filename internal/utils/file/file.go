// Package file provides file utility functions for whole-record rewrites and
// additive file creation.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// tmpPattern is the pattern of the temporary files used for atomic writes.
// They start with a dot so directory watchers can ignore them.
const tmpPattern = ".devagent-tmp-*"

// IsTemp returns true if the file name belongs to a temporary atomic write file.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	return len(base) > 0 && base[0] == '.'
}

// AtomicWrite replaces the file at path with content. Readers will either see
// the old content or the new one, never a partial write.
func AtomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	tmpName, err := writeTemp(dir, content)
	if err != nil {
		return err
	}
	// After the rename this is a no-op.
	defer os.Remove(tmpName)

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not rename temp file: %w", err)
	}

	return nil
}

// WriteIfAbsent creates the file at path with content only if it doesn't exist.
// It returns true when the file has been written, false if it already existed.
// The file appears with its full content or not at all, so a failed or
// interrupted write never leaves a partial file that later calls would keep.
func WriteIfAbsent(path string, content []byte) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("could not create directory: %w", err)
	}

	exists, err := Exists(path)
	if err != nil {
		return false, fmt.Errorf("could not check file: %w", err)
	}
	if exists {
		return false, nil
	}

	tmpName, err := writeTemp(dir, content)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmpName)

	// Link fails if path exists, unlike rename that would replace it.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("could not link file: %w", err)
	}

	return true, nil
}

// writeTemp writes content to a new synced temp file in dir and returns its name.
func writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeSynced(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("could not write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("could not close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("could not set file permissions: %w", err)
	}

	return tmpName, nil
}

var writeSynced = func(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		return err
	}
	return f.Sync()
}

// Exists returns true if something exists at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
