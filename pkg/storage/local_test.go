package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirOpenReadsRegularFile(t *testing.T) {
	root := t.TempDir()
	content := []byte("twelve bytes")
	if err := os.WriteFile(filepath.Join(root, "data.bin"), content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := NewDir(root).Open("data.bin")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	if f.Size() != int64(len(content)) {
		t.Fatalf("size = %d, want %d", f.Size(), len(content))
	}
	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 7); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "bytes" {
		t.Fatalf("read mismatch: %q", buf)
	}
}

func TestDirOpenMissingFile(t *testing.T) {
	_, err := NewDir(t.TempDir()).Open("nope.bin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDirOpenFlattensTraversal(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "passwd"), []byte("inside"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := NewDir(root).Open("../../etc/passwd")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	buf := make([]byte, f.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "inside" {
		t.Fatalf("traversal escaped the root: %q", buf)
	}
}

func TestDirOpenRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := NewDir(root).Open("sub"); err == nil {
		t.Fatal("expected error opening a directory")
	}
}

func TestGenerateBytesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen", "sample.txt")
	const n = 3*generateBlock/2 + 13

	if err := GenerateBytes(path, n); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != n {
		t.Fatalf("size = %d, want %d", len(data), n)
	}
	for i, b := range data {
		if !isAlnum(b) {
			t.Fatalf("byte %d is %q, want alphanumeric", i, b)
		}
	}
}

func TestGenerateBytesZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := GenerateBytes(path, 0); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("size = %d, want 0", info.Size())
	}
}

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
