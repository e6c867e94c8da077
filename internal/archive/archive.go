// Package archive consolidates a run's output tree into one timestamped zip.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spritebatch/internal/services"
)

const (
	namePrefix      = "run_"
	nameExt         = ".zip"
	timestampLayout = "20060102_150405"
	maxSuffix       = 1000
)

// Archiver writes run archives.
type Archiver struct {
	// Now supplies the archive timestamp. Defaults to time.Now.
	Now func() time.Time
}

// New returns an archiver using the wall clock.
func New() *Archiver {
	return &Archiver{Now: time.Now}
}

// Name returns the archive file name for ts, without collision suffix.
func Name(ts time.Time) string {
	return namePrefix + ts.Format(timestampLayout) + nameExt
}

// IsRunArchive reports whether name looks like a run archive file name.
func IsRunArchive(name string) bool {
	return strings.HasPrefix(name, namePrefix) && strings.HasSuffix(name, nameExt)
}

// Write creates run_<YYYYMMDD_HHMMSS>.zip inside outputRoot containing every
// regular file beneath it, with root-relative slash-separated entry names.
// The archive being written is never included; earlier run archives are. A
// numeric suffix is appended when the timestamped name is taken. On failure
// the partial archive is removed.
func (a *Archiver) Write(outputRoot string) (string, error) {
	now := time.Now
	if a != nil && a.Now != nil {
		now = a.Now
	}
	info, err := os.Stat(outputRoot)
	if err != nil {
		return "", services.Wrap(services.ErrArchiveWriteFailed, "archiving", "stat output root", outputRoot, err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrArchiveWriteFailed, "archiving", "stat output root", outputRoot+" is not a directory", nil)
	}

	file, archivePath, err := create(outputRoot, now())
	if err != nil {
		return "", services.Wrap(services.ErrArchiveWriteFailed, "archiving", "create archive", outputRoot, err)
	}

	if err := writeTree(file, outputRoot, archivePath); err != nil {
		file.Close()
		os.Remove(archivePath)
		return "", services.Wrap(services.ErrArchiveWriteFailed, "archiving", "write archive", archivePath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(archivePath)
		return "", services.Wrap(services.ErrArchiveWriteFailed, "archiving", "close archive", archivePath, err)
	}
	return archivePath, nil
}

// create opens a fresh archive file, adding _1, _2, ... until a free name is found.
func create(root string, ts time.Time) (*os.File, string, error) {
	base := strings.TrimSuffix(Name(ts), nameExt)
	for attempt := 0; attempt < maxSuffix; attempt++ {
		name := base + nameExt
		if attempt > 0 {
			name = base + "_" + strconv.Itoa(attempt) + nameExt
		}
		target := filepath.Join(root, name)
		file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return file, target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free archive name for %s after %d attempts", base, maxSuffix)
}

func writeTree(file *os.File, root, archivePath string) error {
	self, err := file.Stat()
	if err != nil {
		return err
	}
	zw := zip.NewWriter(file)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == archivePath {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || os.SameFile(info, self) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel), info)
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
