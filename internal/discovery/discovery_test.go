package discovery_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"spritebatch/internal/discovery"
	"spritebatch/internal/services"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestImagesMatchesRecognisedExtensionsAtAnyDepth(t *testing.T) {
	root := t.TempDir()
	want := []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "b.PNG"),
		filepath.Join(root, "nested", "d.jpeg"),
		filepath.Join(root, "nested", "deeper", "c.JpEg"),
	}
	for _, p := range want {
		touch(t, p)
	}
	for _, p := range []string{
		filepath.Join(root, "notes.txt"),
		filepath.Join(root, "nested", "clip.gif"),
		filepath.Join(root, "jpg"),
		filepath.Join(root, "nested", "archive.jpg.zip"),
	} {
		touch(t, p)
	}
	if err := os.MkdirAll(filepath.Join(root, "folder.png"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := discovery.Images(root, nil)
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Images = %v, want %v", got, want)
	}
}

func TestImagesRespectsCustomExtensions(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.webp"))
	touch(t, filepath.Join(root, "b.jpg"))

	got, err := discovery.Images(root, []string{"WEBP"})
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "a.webp" {
		t.Fatalf("unexpected images: %v", got)
	}
}

func TestImagesFollowsFileSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "real.png")
	touch(t, outside)
	if err := os.Symlink(outside, filepath.Join(root, "link.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "missing.png"), filepath.Join(root, "dangling.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	got, err := discovery.Images(root, nil)
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "link.png" {
		t.Fatalf("unexpected images: %v", got)
	}
}

func TestImagesEmptyTreeIsNotAnError(t *testing.T) {
	got, err := discovery.Images(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no images, got %v", got)
	}
}

func TestImagesMissingRoot(t *testing.T) {
	_, err := discovery.Images(filepath.Join(t.TempDir(), "absent"), nil)
	if !errors.Is(err, services.ErrDirectoryNotFound) {
		t.Fatalf("expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestImagesRootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.jpg")
	touch(t, file)
	_, err := discovery.Images(file, nil)
	if !errors.Is(err, services.ErrDirectoryNotFound) {
		t.Fatalf("expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestExtensionSetMatch(t *testing.T) {
	set := discovery.NewExtensionSet([]string{"jpg", ".PNG", " ", "."})
	cases := map[string]bool{
		"photo.JPG":  true,
		"photo.png":  true,
		"photo.jpeg": false,
		"jpg":        false,
		"":           false,
	}
	for name, want := range cases {
		if got := set.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScanSkipsUnreadableSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	readable := filepath.Join(root, "a.jpg")
	touch(t, readable)
	locked := filepath.Join(root, "locked")
	touch(t, filepath.Join(locked, "b.jpg"))
	touch(t, filepath.Join(root, "z", "c.png"))
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	listing, err := discovery.Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	want := []string{readable, filepath.Join(root, "z", "c.png")}
	if !slices.Equal(listing.Images, want) {
		t.Fatalf("Images = %v, want %v", listing.Images, want)
	}
	if !slices.Equal(listing.Skipped, []string{locked}) {
		t.Fatalf("Skipped = %v, want [%s]", listing.Skipped, locked)
	}

	images, err := discovery.Images(root, nil)
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if !slices.Equal(images, want) {
		t.Fatalf("Images = %v, want %v", images, want)
	}
}
