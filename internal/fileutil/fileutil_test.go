package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileExclusive(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "v1.json")

	if err := WriteFileExclusive(target, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("content mismatch: got %q", got)
	}

	err = WriteFileExclusive(target, []byte(`{"a":2}`), 0o644)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
	got, _ = os.ReadFile(target)
	if string(got) != `{"a":1}` {
		t.Fatalf("existing file was overwritten: %q", got)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "v1.json")

	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(target, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("content mismatch: got %q", got)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %o, want 600", info.Mode().Perm())
	}
	assertNoTempFiles(t, dir)
}

func TestIsTempName(t *testing.T) {
	cases := map[string]bool{
		".v1.json.123.tmp": true,
		"v1.json":          false,
		".hidden":          false,
		"":                 false,
	}
	for name, want := range cases {
		if got := IsTempName(name); got != want {
			t.Errorf("IsTempName(%q) = %v, want %v", name, got, want)
		}
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if IsTempName(e.Name()) {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}
