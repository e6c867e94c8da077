package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"spritebatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrArchiveWriteFailed, "archive", "write", "disk full", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrArchiveWriteFailed) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"archive", "write", "disk full"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestBatchErrorUnwrapsMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("process: %w", services.NewBatchError(services.ErrUploadFailed, 2, "status 502", cause))

	if !errors.Is(err, services.ErrUploadFailed) {
		t.Fatalf("expected upload marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be retained, got %v", err)
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatalf("did not expect timeout marker, got %v", err)
	}
	index, ok := services.BatchIndex(err)
	if !ok || index != 2 {
		t.Fatalf("unexpected batch index: %d %v", index, ok)
	}
	if !strings.Contains(err.Error(), "batch 2") || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestBatchErrorFlagsTimeouts(t *testing.T) {
	err := services.NewBatchError(services.ErrUploadFailed, 1, "", context.DeadlineExceeded)
	if !err.Timeout {
		t.Fatal("expected timeout flag")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if got := services.Classify(err); got != "timeout" {
		t.Fatalf("expected timeout classification, got %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.NewBatchError(services.ErrUploadFailed, 1, "status 500", nil), "upload_failed"},
		{services.NewBatchError(services.ErrArchiveCorrupt, 1, "", errors.New("zip: not a valid zip file")), "archive_corrupt"},
		{services.Wrap(services.ErrArchiveWriteFailed, "archive", "", "", nil), "archive_write_failed"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
