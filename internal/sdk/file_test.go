package sdk

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFileMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile(missing) error = %v", err)
	}
	if len(m.Bundles) != 0 || m.ManifestVersion != ManifestVersion {
		t.Errorf("expected fresh manifest, got %+v", m)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(empty); err != nil {
		t.Fatalf("LoadFile(empty) error = %v", err)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "naclsdk_manifest.json")
	if err := os.WriteFile(path, []byte("old content"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New()
	if err := m.LoadFromText([]byte(exampleManifest)); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, m); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := m.Serialize()
	if !bytes.Equal(data, want) {
		t.Errorf("file content = %q, want %q", data, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the manifest in %s, found %v", dir, names)
	}

	reloaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, ok := reloaded.Bundle("sdk"); !ok {
		t.Error("reloaded manifest lost bundle sdk")
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "manifest.json")
	if err := WriteFile(path, New()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSaveToWriter(t *testing.T) {
	var out bytes.Buffer
	if err := Save(&out, "", New()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "{\n  \"manifest_version\": 1") {
		t.Errorf("unexpected output: %q", out.String())
	}
}
