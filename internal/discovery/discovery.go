// Package discovery finds the image files a run will submit.
package discovery

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"spritebatch/internal/services"
)

// DefaultExtensions is the recognised image set used when the caller passes none.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// ExtensionSet is a case-insensitive lookup of recognised extensions.
type ExtensionSet map[string]struct{}

// NewExtensionSet builds a lookup from entries such as "jpg" or ".PNG".
func NewExtensionSet(exts []string) ExtensionSet {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Match reports whether name ends in a recognised extension.
func (s ExtensionSet) Match(name string) bool {
	_, ok := s[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Listing is the outcome of a scan. Skipped holds paths beneath the root that
// could not be read; their subtrees are left out of Images.
type Listing struct {
	Images  []string
	Skipped []string
}

// Images walks root and returns every regular file with a recognised
// extension. Unreadable subtrees are skipped silently; use Scan to learn which.
func Images(root string, exts []string) ([]string, error) {
	listing, err := Scan(root, exts)
	if err != nil {
		return nil, err
	}
	return listing.Images, nil
}

// Scan walks root in traversal order (lexical within each directory). Symlinks
// are followed only when they point at regular files. Only a missing,
// unreadable, or non-directory root is an error.
func Scan(root string, exts []string) (Listing, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Listing{}, services.Wrap(services.ErrDirectoryNotFound, "discovery", "stat root", root, nil)
		}
		return Listing{}, services.Wrap(services.ErrDirectoryNotFound, "discovery", "stat root", root, err)
	}
	if !info.IsDir() {
		return Listing{}, services.Wrap(services.ErrDirectoryNotFound, "discovery", "stat root", root+" is not a directory", nil)
	}

	set := NewExtensionSet(exts)
	var listing Listing
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			listing.Skipped = append(listing.Skipped, path)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !set.Match(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			if d.Type()&fs.ModeSymlink == 0 {
				return nil
			}
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
		}
		listing.Images = append(listing.Images, path)
		return nil
	})
	if err != nil {
		return Listing{}, services.Wrap(services.ErrDirectoryNotFound, "discovery", "read root", root, err)
	}
	return listing, nil
}
