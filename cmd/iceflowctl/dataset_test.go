package main

import (
	"math"
	"testing"
)

func TestReadMatrixCSV(t *testing.T) {
	path := writeTempFile(t, "data.csv", "1,2,3\n4,5,6\n")

	rows, err := readMatrixCSV(path)
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("unexpected shape %dx%d", len(rows), len(rows[0]))
	}
	if rows[1][2] != 6 {
		t.Fatalf("rows[1][2] = %g", rows[1][2])
	}
}

func TestReadMatrixCSVSkipsHeader(t *testing.T) {
	path := writeTempFile(t, "data.csv", "a,b\n1.5,-2\n")

	rows, err := readMatrixCSV(path)
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 data row, got %d", len(rows))
	}
	if math.Abs(rows[0][0]-1.5) > 1e-12 || rows[0][1] != -2 {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestReadMatrixCSVRejectsGarbage(t *testing.T) {
	path := writeTempFile(t, "data.csv", "1,2\n3,oops\n")
	if _, err := readMatrixCSV(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestReadMatrixCSVHeaderOnly(t *testing.T) {
	path := writeTempFile(t, "data.csv", "a,b\n")
	if _, err := readMatrixCSV(path); err == nil {
		t.Fatal("expected error for header-only file")
	}
}

func TestReadVectorCSV(t *testing.T) {
	path := writeTempFile(t, "targets.csv", "sle\n0.1\n0.2\n0.3\n")

	v, err := readVectorCSV(path)
	if err != nil {
		t.Fatalf("read vector: %v", err)
	}
	if len(v) != 3 || v[2] != 0.3 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestReadVectorCSVRejectsWideRows(t *testing.T) {
	path := writeTempFile(t, "targets.csv", "1,2\n")
	if _, err := readVectorCSV(path); err == nil {
		t.Fatal("expected error for multi-column vector file")
	}
}
