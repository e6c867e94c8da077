package batch_test

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"spritebatch/internal/batch"
	"spritebatch/internal/services"
)

func images(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("img_%03d.jpg", i)
	}
	return out
}

func TestPlanCeilAndConcatenation(t *testing.T) {
	for _, n := range []int{0, 1, 5, 99, 100, 101, 250} {
		for _, size := range []int{1, 3, 100, 1000} {
			input := images(n)
			batches, err := batch.Plan(input, size)
			if err != nil {
				t.Fatalf("Plan(%d, %d) returned error: %v", n, size, err)
			}
			wantCount := (n + size - 1) / size
			if len(batches) != wantCount {
				t.Fatalf("Plan(%d, %d) = %d batches, want %d", n, size, len(batches), wantCount)
			}
			var joined []string
			for i, b := range batches {
				if b.Index != i+1 {
					t.Fatalf("batch %d has index %d", i, b.Index)
				}
				if i < len(batches)-1 && len(b.Images) != size {
					t.Fatalf("Plan(%d, %d): batch %d has %d images", n, size, b.Index, len(b.Images))
				}
				if len(b.Images) == 0 || len(b.Images) > size {
					t.Fatalf("Plan(%d, %d): batch %d has invalid size %d", n, size, b.Index, len(b.Images))
				}
				joined = append(joined, b.Images...)
			}
			if !slices.Equal(joined, input) {
				t.Fatalf("Plan(%d, %d): concatenation differs from input", n, size)
			}
		}
	}
}

func TestPlan250By100(t *testing.T) {
	batches, err := batch.Plan(images(250), 100)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b.Images)
	}
	if !slices.Equal(sizes, []int{100, 100, 50}) {
		t.Fatalf("unexpected batch sizes: %v", sizes)
	}
}

func TestPlanBatchesDoNotAlias(t *testing.T) {
	batches, err := batch.Plan(images(4), 2)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	first := append(batches[0].Images, "extra.jpg")
	if first[2] != "extra.jpg" || batches[1].Images[0] != "img_002.jpg" {
		t.Fatalf("appending to one batch must not overwrite the next: %v", batches[1].Images)
	}
}

func TestPlanRejectsNonPositiveSize(t *testing.T) {
	for _, n := range []int{0, 1, 10} {
		for _, size := range []int{0, -1, -100} {
			_, err := batch.Plan(images(n), size)
			if !errors.Is(err, services.ErrInvalidBatchSize) {
				t.Fatalf("Plan(%d, %d) error = %v, want ErrInvalidBatchSize", n, size, err)
			}
		}
	}
}

func TestResultConstructorsAndIndices(t *testing.T) {
	b1 := batch.Batch{Index: 1, Images: images(3)}
	b2 := batch.Batch{Index: 2, Images: images(2)}
	b3 := batch.Batch{Index: 3, Images: images(1)}
	b4 := batch.Batch{Index: 4, Images: images(1)}
	results := []batch.Result{
		batch.Completed(b1, true, "/out/batch_1"),
		batch.Failed(b2, errors.New("boom")),
		batch.Completed(b3, false, "/out/batch_3"),
		batch.Skipped(b4, nil),
	}
	if results[0].Status != batch.StatusDetected || !results[0].Detected || results[0].ImageCount != 3 {
		t.Fatalf("unexpected detected result: %+v", results[0])
	}
	if results[2].Status != batch.StatusClean || results[2].Detected {
		t.Fatalf("unexpected clean result: %+v", results[2])
	}
	if got := batch.Indices(results, batch.StatusFailed); !slices.Equal(got, []int{2}) {
		t.Fatalf("failed indices = %v", got)
	}
	if got := batch.Indices(results, batch.StatusSkipped); !slices.Equal(got, []int{4}) {
		t.Fatalf("skipped indices = %v", got)
	}
	if !batch.StatusFailed.Retryable() || !batch.StatusSkipped.Retryable() || batch.StatusClean.Retryable() {
		t.Fatal("unexpected retryable classification")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []batch.Status{batch.StatusDetected, batch.StatusClean, batch.StatusFailed, batch.StatusSkipped} {
		got, err := batch.ParseStatus(" " + string(s) + " ")
		if err != nil || got != s {
			t.Fatalf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := batch.ParseStatus("pending"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
