package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteImages creates n small image files below dir, spread over nested
// subdirectories, and returns their paths in creation order. Names are zero
// padded so lexical walk order matches creation order.
func WriteImages(t testing.TB, dir string, n int) []string {
	t.Helper()

	exts := []string{".jpg", ".png", ".jpeg"}
	paths := make([]string, 0, n)
	for i := range n {
		sub := filepath.Join(dir, fmt.Sprintf("set_%03d", i/50))
		path := filepath.Join(sub, fmt.Sprintf("img_%05d%s", i, exts[i%len(exts)]))
		WriteFile(t, path, 16)
		paths = append(paths, path)
	}
	return paths
}

// BuildZip returns an in-memory archive holding the named entries. Names
// ending in "/" become directory entries.
func BuildZip(t testing.TB, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
