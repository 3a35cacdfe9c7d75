// Package tensor holds the small dense-matrix plumbing shared by the
// emulator packages: conversions between row slices and gonum
// matrices, column-wise statistics and feature concatenation.
package tensor

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"iceflow/internal/errs"
)

// FromRows builds a dense matrix from row-major sample data. Every
// row must have the same width.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errs.InvalidArgumentf("no rows")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errs.InvalidArgumentf("rows have zero width")
	}
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, errs.InvalidArgumentf("row %d has width %d, want %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

// Rows converts a matrix back to row slices.
func Rows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		copy(row, m.RawRowView(i))
		out[i] = row
	}
	return out
}

// ConcatColumns joins two sample matrices side by side. Row counts
// must agree.
func ConcatColumns(a, b [][]float64) ([][]float64, error) {
	if len(a) != len(b) {
		return nil, errs.InvalidArgumentf("row count mismatch: %d vs %d", len(a), len(b))
	}
	out := make([][]float64, len(a))
	for i := range a {
		row := make([]float64, 0, len(a[i])+len(b[i]))
		row = append(row, a[i]...)
		row = append(row, b[i]...)
		out[i] = row
	}
	return out, nil
}

// ColumnMeans returns the per-column mean of m.
func ColumnMeans(m *mat.Dense) []float64 {
	r, c := m.Dims()
	means := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		means[j] = stat.Mean(col, nil)
	}
	return means
}

// ColumnStds returns the per-column population standard deviation of
// m. Scaling statistics divide by n, not n-1, so a single-row fit
// yields zero spread instead of an undefined one.
func ColumnStds(m *mat.Dense) []float64 {
	r, c := m.Dims()
	stds := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		stds[j] = stat.PopStdDev(col, nil)
	}
	return stds
}

// MeanStdAcross reduces a [members][samples] prediction stack to the
// per-sample mean and sample standard deviation across members.
func MeanStdAcross(stack [][]float64) (means, stds []float64, err error) {
	if len(stack) == 0 {
		return nil, nil, errs.InvalidArgumentf("empty prediction stack")
	}
	n := len(stack[0])
	for i, member := range stack {
		if len(member) != n {
			return nil, nil, errs.InvalidArgumentf("member %d has %d predictions, want %d", i, len(member), n)
		}
	}
	means = make([]float64, n)
	stds = make([]float64, n)
	buf := make([]float64, len(stack))
	for i := 0; i < n; i++ {
		for m := range stack {
			buf[m] = stack[m][i]
		}
		if len(buf) == 1 {
			means[i] = buf[0]
			stds[i] = 0
			continue
		}
		means[i], stds[i] = stat.MeanStdDev(buf, nil)
	}
	return means, stds, nil
}

// RowPopStds returns the population standard deviation of each row.
// Used for aleatoric spread over repeated conditional samples.
func RowPopStds(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		mean := stat.Mean(row, nil)
		var ss float64
		for _, v := range row {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(len(row)))
	}
	return out
}
