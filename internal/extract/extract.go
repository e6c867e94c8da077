// Package extract unpacks a batch's response archive into the run output tree
// and classifies whether the batch contained positive detections.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"spritebatch/internal/discovery"
	"spritebatch/internal/services"
)

// DetectionMarker is the archive folder the detection service places copies of
// positive images under. Its presence is part of the wire contract.
const DetectionMarker = "sprites_detected"

// BatchDirName returns the output subdirectory name for a batch index.
func BatchDirName(index int) string {
	return "batch_" + strconv.Itoa(index)
}

// Outcome is the result of a successful extraction.
type Outcome struct {
	Detected bool
	Dir      string
	Files    int
}

// Extractor persists and unpacks batch archives.
type Extractor struct {
	// TempDir holds the transient payload file. Empty uses os.TempDir.
	TempDir string
	// Marker overrides DetectionMarker.
	Marker string
	// Extensions are the image extensions that count toward detection.
	Extensions []string
}

// New returns an extractor with the default marker and extensions.
func New(tempDir string) *Extractor {
	return &Extractor{TempDir: tempDir}
}

// Extract writes payload to a transient file, unpacks it into
// outputRoot/batch_<index>, and reports whether any entry sits under the
// marker folder with an image extension. The batch directory is either fully
// populated or untouched: entries are written to a staging directory that is
// renamed into place only after every entry succeeded. The transient file is
// always removed.
func (e *Extractor) Extract(payload []byte, index int, outputRoot string) (Outcome, error) {
	marker := DetectionMarker
	if e != nil && strings.TrimSpace(e.Marker) != "" {
		marker = strings.TrimSpace(e.Marker)
	}
	var exts []string
	var tempDir string
	if e != nil {
		exts = e.Extensions
		tempDir = e.TempDir
	}

	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "create output root", err)
	}

	archivePath, err := writeTransient(tempDir, index, payload)
	if err != nil {
		return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "persist payload", err)
	}
	defer os.Remove(archivePath)

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "open archive", err)
	}
	defer reader.Close()

	staging, err := os.MkdirTemp(outputRoot, "."+BatchDirName(index)+"-staging-")
	if err != nil {
		return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "create staging directory", err)
	}
	promoted := false
	defer func() {
		if !promoted {
			os.RemoveAll(staging)
		}
	}()

	set := discovery.NewExtensionSet(exts)
	outcome := Outcome{}
	for _, file := range reader.File {
		name, err := entryName(file.Name)
		if err != nil {
			return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "unsafe entry", err)
		}
		if name == "" {
			continue
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(staging, filepath.FromSlash(name)), 0o755); err != nil {
				return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "create directory "+name, err)
			}
			continue
		}
		if !file.Mode().IsRegular() {
			return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "unsupported entry type", fmt.Errorf("%s: %s", name, file.Mode().Type()))
		}
		if err := writeEntry(file, filepath.Join(staging, filepath.FromSlash(name))); err != nil {
			return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "extract "+name, err)
		}
		outcome.Files++
		if !outcome.Detected && IsDetection(name, marker, set) {
			outcome.Detected = true
		}
	}

	target := filepath.Join(outputRoot, BatchDirName(index))
	if err := promote(staging, target); err != nil {
		return Outcome{}, services.NewBatchError(services.ErrArchiveCorrupt, index, "promote staging directory", err)
	}
	promoted = true
	outcome.Dir = target
	return outcome, nil
}

// IsDetection reports whether a slash-separated archive entry lies beneath a
// directory named marker and carries a recognised image extension.
func IsDetection(name, marker string, exts discovery.ExtensionSet) bool {
	segments := strings.Split(strings.Trim(name, "/"), "/")
	if len(segments) < 2 || !exts.Match(segments[len(segments)-1]) {
		return false
	}
	for _, segment := range segments[:len(segments)-1] {
		if segment == marker {
			return true
		}
	}
	return false
}

// entryName normalises a zip entry name and rejects absolute or escaping paths.
func entryName(raw string) (string, error) {
	name := strings.ReplaceAll(raw, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("absolute path %q", raw)
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", nil
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("path %q escapes batch directory", raw)
	}
	return cleaned, nil
}

func writeTransient(dir string, index int, payload []byte) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	file, err := os.CreateTemp(dir, fmt.Sprintf("sprite_batch%d-*.zip", index))
	if err != nil {
		return "", err
	}
	name := file.Name()
	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(name)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func writeEntry(file *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// promote moves staging to target. An existing target is moved aside first and
// removed only after the rename succeeded, so a failed promote leaves the
// previous batch directory in place.
func promote(staging, target string) error {
	var previous string
	if _, err := os.Lstat(target); err == nil {
		previous = target + ".previous-" + filepath.Base(staging)
		if err := os.Rename(target, previous); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(staging, target); err != nil {
		if previous != "" {
			_ = os.Rename(previous, target)
		}
		return err
	}
	if previous != "" {
		return os.RemoveAll(previous)
	}
	return nil
}
