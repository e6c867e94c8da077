package testsupport

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
)

// FakeDetector is an httptest server speaking the detection endpoint's wire
// contract: it accepts a multipart upload under the "files" field and answers
// with a zip archive. Uploaded files whose names satisfy Detect are echoed
// under a sprites_detected/ folder; the rest are echoed at the archive root.
type FakeDetector struct {
	Server *httptest.Server

	// Detect decides whether an uploaded file name counts as a detection.
	Detect func(name string) bool
	// Fail returns a non-zero HTTP status to reject a request.
	Fail func(names []string) int
	// Corrupt returns true when the response body should not be a valid zip.
	Corrupt func(names []string) bool
	// Hold, when set, is called before responding and may block.
	Hold func(names []string)

	mu       sync.Mutex
	requests [][]string
}

// NewFakeDetector starts a fake detection server and registers cleanup.
func NewFakeDetector(t testing.TB) *FakeDetector {
	t.Helper()

	fd := &FakeDetector{}
	fd.Server = httptest.NewServer(http.HandlerFunc(fd.handle))
	t.Cleanup(fd.Server.Close)
	return fd
}

// URL returns the endpoint URL clients should post to.
func (fd *FakeDetector) URL() string {
	return fd.Server.URL + "/predict-annotated/"
}

// Requests returns the uploaded file names per request in arrival order.
func (fd *FakeDetector) Requests() [][]string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	out := make([][]string, len(fd.requests))
	for i, names := range fd.requests {
		out[i] = slices.Clone(names)
	}
	return out
}

// FailWhenContains rejects any request that includes the named file.
func FailWhenContains(name string, status int) func([]string) int {
	return func(names []string) int {
		if slices.Contains(names, name) {
			return status
		}
		return 0
	}
}

// DetectPrefix flags uploaded names that start with prefix.
func DetectPrefix(prefix string) func(string) bool {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

func (fd *FakeDetector) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var names []string
	var bodies [][]byte
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if part.FormName() != "files" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		names = append(names, path.Base(part.FileName()))
		bodies = append(bodies, data)
	}

	fd.mu.Lock()
	fd.requests = append(fd.requests, slices.Clone(names))
	fd.mu.Unlock()

	if fd.Hold != nil {
		fd.Hold(names)
	}
	if fd.Fail != nil {
		if status := fd.Fail(names); status != 0 {
			http.Error(w, "rejected", status)
			return
		}
	}
	if fd.Corrupt != nil && fd.Corrupt(names) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("not a zip archive"))
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, name := range names {
		entry := name
		if fd.Detect != nil && fd.Detect(name) {
			entry = "sprites_detected/" + name
		}
		fw, err := zw.Create(entry)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := fw.Write(bodies[i]); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if err := zw.Close(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(buf.Bytes())
}
