package extract_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"spritebatch/internal/discovery"
	"spritebatch/internal/extract"
	"spritebatch/internal/services"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func TestExtractDetectsMarkerFolder(t *testing.T) {
	tempDir := t.TempDir()
	outputRoot := filepath.Join(t.TempDir(), "out")
	payload := buildZip(t, map[string]string{
		"annotated_a.jpg":                  "a",
		"annotated_b.jpg":                  "b",
		"sprites_detected/annotated_b.jpg": "b",
		"batch_grid.jpg":                   "grid",
	})

	outcome, err := extract.New(tempDir).Extract(payload, 1, outputRoot)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !outcome.Detected {
		t.Fatal("expected detection")
	}
	if outcome.Dir != filepath.Join(outputRoot, "batch_1") {
		t.Fatalf("unexpected dir %q", outcome.Dir)
	}
	if outcome.Files != 4 {
		t.Fatalf("expected 4 files, got %d", outcome.Files)
	}
	data, err := os.ReadFile(filepath.Join(outcome.Dir, "sprites_detected", "annotated_b.jpg"))
	if err != nil || string(data) != "b" {
		t.Fatalf("expected extracted marker file, got %q %v", data, err)
	}
	assertEmptyDir(t, tempDir)
}

func TestExtractWithoutMarkerIsClean(t *testing.T) {
	tempDir := t.TempDir()
	outputRoot := t.TempDir()
	payload := buildZip(t, map[string]string{
		"annotated_a.jpg":                "a",
		"sprites_detected.jpg":           "not a folder",
		"sprites_detected/readme.txt":    "no image extension",
		"other/sprites_detected_x/a.png": "segment is not exact",
	})

	outcome, err := extract.New(tempDir).Extract(payload, 2, outputRoot)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if outcome.Detected {
		t.Fatal("expected clean batch")
	}
	if _, err := os.Stat(filepath.Join(outputRoot, "batch_2", "annotated_a.jpg")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	assertEmptyDir(t, tempDir)
}

func TestExtractCorruptPayload(t *testing.T) {
	tempDir := t.TempDir()
	outputRoot := t.TempDir()

	_, err := extract.New(tempDir).Extract([]byte("this is not a zip"), 3, outputRoot)
	if !errors.Is(err, services.ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
	if idx, ok := services.BatchIndex(err); !ok || idx != 3 {
		t.Fatalf("expected batch index 3, got %d %v", idx, ok)
	}
	assertEmptyDir(t, outputRoot)
	assertEmptyDir(t, tempDir)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"../evil.jpg", "nested/../../evil.jpg", "/abs/evil.jpg"} {
		t.Run(name, func(t *testing.T) {
			parent := t.TempDir()
			outputRoot := filepath.Join(parent, "out")
			payload := buildZip(t, map[string]string{
				"fine.jpg": "ok",
				name:       "evil",
			})

			_, err := extract.New(t.TempDir()).Extract(payload, 1, outputRoot)
			if !errors.Is(err, services.ErrArchiveCorrupt) {
				t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(parent, "evil.jpg")); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("entry escaped output root: %v", err)
			}
			assertEmptyDir(t, outputRoot)
		})
	}
}

func TestExtractReplacesPreviousBatchDirectory(t *testing.T) {
	outputRoot := t.TempDir()
	extractor := extract.New(t.TempDir())

	if _, err := extractor.Extract(buildZip(t, map[string]string{"old.jpg": "old"}), 1, outputRoot); err != nil {
		t.Fatalf("first Extract returned error: %v", err)
	}
	outcome, err := extractor.Extract(buildZip(t, map[string]string{"sprites_detected/new.png": "new"}), 1, outputRoot)
	if err != nil {
		t.Fatalf("second Extract returned error: %v", err)
	}
	if !outcome.Detected {
		t.Fatal("expected detection on second extraction")
	}
	if _, err := os.Stat(filepath.Join(outcome.Dir, "old.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected old contents to be replaced, stat err=%v", err)
	}
	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		t.Fatalf("read output root: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "batch_1" {
		t.Fatalf("expected only batch_1 in output root, got %v", entries)
	}
}

func TestExtractCustomMarker(t *testing.T) {
	extractor := &extract.Extractor{TempDir: t.TempDir(), Marker: "hits"}
	outcome, err := extractor.Extract(buildZip(t, map[string]string{"hits/a.jpg": "a"}), 1, t.TempDir())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !outcome.Detected {
		t.Fatal("expected custom marker to be honoured")
	}
}

func TestIsDetection(t *testing.T) {
	exts := discovery.NewExtensionSet(nil)
	cases := map[string]bool{
		"sprites_detected/x.jpg":          true,
		"run/sprites_detected/x.JPEG":     true,
		"a/b/sprites_detected/c/x.png":    true,
		"sprites_detected/":               false,
		"sprites_detected/x.gif":          false,
		"x.jpg":                           false,
		"sprites_detected.png":            false,
		"Sprites_Detected/x.jpg":          false,
		"prefix_sprites_detected/x.jpg":   false,
		"sprites_detected/sprites_detect": false,
	}
	for name, want := range cases {
		if got := extract.IsDetection(name, extract.DetectionMarker, exts); got != want {
			t.Errorf("IsDetection(%q) = %v, want %v", name, got, want)
		}
	}
}
