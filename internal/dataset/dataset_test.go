package dataset

import (
	"errors"
	"math/rand"
	"testing"

	"iceflow/internal/errs"
)

func rowsOf(n, width int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, width)
		for j := range row {
			row[j] = float64(i*width + j)
		}
		rows[i] = row
	}
	return rows
}

func TestSequenceDatasetValidation(t *testing.T) {
	tests := []struct {
		name     string
		features [][]float64
		labels   []float64
		seqLen   int
	}{
		{name: "empty", features: nil, labels: nil, seqLen: 3},
		{name: "zero-seq-len", features: rowsOf(4, 2), labels: nil, seqLen: 0},
		{name: "ragged", features: [][]float64{{1, 2}, {3}}, labels: nil, seqLen: 2},
		{name: "label-mismatch", features: rowsOf(4, 2), labels: []float64{1, 2}, seqLen: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSequenceDataset(tc.features, tc.labels, tc.seqLen)
			if !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestWindowPadding(t *testing.T) {
	ds, err := NewSequenceDataset(rowsOf(5, 2), nil, 3)
	if err != nil {
		t.Fatalf("new dataset: %v", err)
	}
	if ds.Len() != 5 {
		t.Fatalf("one window per row expected, got %d", ds.Len())
	}

	first := ds.Window(0)
	if len(first) != 3 {
		t.Fatalf("window length: got=%d want=3", len(first))
	}
	for t0 := 0; t0 < 2; t0++ {
		for j, v := range first[t0] {
			if v != 0 {
				t.Fatalf("expected zero padding at step %d col %d, got %f", t0, j, v)
			}
		}
	}
	if first[2][0] != 0 || first[2][1] != 1 {
		t.Fatalf("final step must be row 0, got %v", first[2])
	}

	last := ds.Window(4)
	if last[0][0] != 4 || last[2][0] != 8 {
		t.Fatalf("window 4 must span rows 2..4, got %v", last)
	}
}

func TestBatchAlignsLabels(t *testing.T) {
	labels := []float64{10, 11, 12, 13}
	ds, err := NewSequenceDataset(rowsOf(4, 2), labels, 2)
	if err != nil {
		t.Fatalf("new dataset: %v", err)
	}

	windows, got, err := ds.Batch([]int{2, 0})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("unexpected batch size: %d", len(windows))
	}
	if got[0] != 12 || got[1] != 10 {
		t.Fatalf("labels must follow indices, got %v", got)
	}

	if _, _, err := ds.Batch([]int{9}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for out-of-range index, got %v", err)
	}
}

func TestLoaderCoversAllIndices(t *testing.T) {
	loader, err := NewLoader(10, 3, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	batches := loader.Batches()
	if len(batches) != 4 {
		t.Fatalf("unexpected batch count: %d", len(batches))
	}
	seen := make(map[int]bool)
	for _, batch := range batches {
		for _, i := range batch {
			if seen[i] {
				t.Fatalf("index %d repeated", i)
			}
			seen[i] = true
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 unique indices, got %d", len(seen))
	}
}

func TestLoaderNoShuffleKeepsOrder(t *testing.T) {
	loader, err := NewLoader(5, 2, nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	batches := loader.Batches()
	want := [][]int{{0, 1}, {2, 3}, {4}}
	for i, batch := range batches {
		for j, idx := range batch {
			if idx != want[i][j] {
				t.Fatalf("unexpected order: got=%v", batches)
			}
		}
	}
}
