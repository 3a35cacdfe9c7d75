package tensor

import (
	"errors"
	"math"
	"testing"

	"iceflow/internal/errs"
)

func TestFromRowsRoundTrip(t *testing.T) {
	rows := [][]float64{{1, 2, 3}, {4, 5, 6}}
	m, err := FromRows(rows)
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	r, c := m.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("unexpected dims: %dx%d", r, c)
	}
	back := Rows(m)
	for i := range rows {
		for j := range rows[i] {
			if back[i][j] != rows[i][j] {
				t.Fatalf("round trip mismatch at (%d,%d): got=%f want=%f", i, j, back[i][j], rows[i][j])
			}
		}
	}
}

func TestFromRowsRagged(t *testing.T) {
	_, err := FromRows([][]float64{{1, 2}, {3}})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestConcatColumns(t *testing.T) {
	a := [][]float64{{1, 2}, {3, 4}}
	b := [][]float64{{5}, {6}}
	out, err := ConcatColumns(a, b)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	want := [][]float64{{1, 2, 5}, {3, 4, 6}}
	for i := range want {
		for j := range want[i] {
			if out[i][j] != want[i][j] {
				t.Fatalf("unexpected value at (%d,%d): got=%f want=%f", i, j, out[i][j], want[i][j])
			}
		}
	}

	if _, err := ConcatColumns(a, b[:1]); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for row mismatch, got %v", err)
	}
}

func TestMeanStdAcross(t *testing.T) {
	stack := [][]float64{
		{1, 10},
		{3, 10},
	}
	means, stds, err := MeanStdAcross(stack)
	if err != nil {
		t.Fatalf("mean/std: %v", err)
	}
	if math.Abs(means[0]-2) > 1e-9 || math.Abs(means[1]-10) > 1e-9 {
		t.Fatalf("unexpected means: %v", means)
	}
	if math.Abs(stds[0]-math.Sqrt2) > 1e-9 {
		t.Fatalf("unexpected std for differing members: %f", stds[0])
	}
	if stds[1] != 0 {
		t.Fatalf("identical members must have zero std, got %f", stds[1])
	}
}

func TestRowPopStds(t *testing.T) {
	stds := RowPopStds([][]float64{{2, 2, 2}, {1, 3}})
	if stds[0] != 0 {
		t.Fatalf("constant row must have zero std, got %f", stds[0])
	}
	if math.Abs(stds[1]-1) > 1e-9 {
		t.Fatalf("unexpected population std: %f", stds[1])
	}
}

func TestColumnStats(t *testing.T) {
	m, err := FromRows([][]float64{{1, 0}, {3, 0}})
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	means := ColumnMeans(m)
	if math.Abs(means[0]-2) > 1e-9 || means[1] != 0 {
		t.Fatalf("unexpected means: %v", means)
	}
	stds := ColumnStds(m)
	if math.Abs(stds[0]-1) > 1e-9 {
		t.Fatalf("unexpected std: %v", stds)
	}
	if stds[1] != 0 {
		t.Fatalf("constant column must have zero spread, got %v", stds)
	}
}
