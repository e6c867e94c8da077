package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spritebatch/internal/config"
	"spritebatch/internal/services/detector"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRootDir(t *testing.T) {
	if result := CheckRootDir(t.TempDir()); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckRootDir(filepath.Join(t.TempDir(), "missing")); result.Passed {
		t.Fatal("expected failure for missing root")
	}
}

func TestCheckOutputRoot_NotYetCreated(t *testing.T) {
	parent := t.TempDir()
	target := filepath.Join(parent, "results", "from_recursive_upload")
	result := CheckOutputRoot(target)
	if !result.Passed {
		t.Fatalf("expected pass for creatable output root, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, parent) {
		t.Fatalf("expected detail to name existing ancestor, got %q", result.Detail)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("check must not create the output root")
	}
}

func TestCheckOutputRoot_FileInTheWay(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckOutputRoot(filepath.Join(f, "out")); result.Passed {
		t.Fatal("expected failure when an ancestor is a file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace(dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace(dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure with impossible minimum")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	result := CheckEndpoint(context.Background(), detector.New(srv.URL+"/predict-annotated/"))
	if !result.Passed {
		t.Fatalf("expected reachable endpoint, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "405") {
		t.Fatalf("expected status in detail, got %q", result.Detail)
	}

	srv.Close()
	result = CheckEndpoint(context.Background(), detector.New(srv.URL+"/predict-annotated/"))
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestCheckBroker_MissingURL(t *testing.T) {
	if result := CheckBroker(config.Notifications{Enabled: true}); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, Options{})
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Paths.StateDir = t.TempDir()
	cfg.Detector.Endpoint = srv.URL + "/predict-annotated/"
	cfg.Publish.Enabled = false
	cfg.Notifications.Enabled = false

	results := RunAll(context.Background(), &cfg, Options{RootDir: t.TempDir()})
	// root, output, free space, state, endpoint
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Name == "Free space" {
			continue
		}
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesPublishWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/storage/v1/object/list/") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Detector.Endpoint = srv.URL + "/predict-annotated/"
	cfg.Publish.Enabled = true
	cfg.Publish.URL = srv.URL
	cfg.Publish.APIKey = "test"
	cfg.Publish.Bucket = "runs"

	results := RunAll(context.Background(), &cfg, Options{})
	found := false
	for _, r := range results {
		if r.Name == "Archive publishing" {
			found = true
			if !r.Passed {
				t.Errorf("publish check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected publish check in results")
	}
}

func TestFailed(t *testing.T) {
	results := []Result{{Name: "a", Passed: true}, {Name: "b"}, {Name: "c"}}
	failed := Failed(results)
	if len(failed) != 2 || failed[0].Name != "b" || failed[1].Name != "c" {
		t.Fatalf("unexpected failed results %+v", failed)
	}
}
