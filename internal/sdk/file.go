package sdk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadFile reads a manifest from path. A missing or empty file yields a
// fresh manifest.
func LoadFile(path string) (*Manifest, error) {
	m := New()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}

	if err := m.LoadFromText(data); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// WriteFile replaces path with the serialized manifest. The document is
// staged in a temporary file in the same directory and renamed over path,
// so readers see either the old or the new file.
func WriteFile(path string, m *Manifest) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Save writes the manifest to path, or to w when path is empty.
func Save(w io.Writer, path string, m *Manifest) error {
	if path != "" {
		return WriteFile(path, m)
	}
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
