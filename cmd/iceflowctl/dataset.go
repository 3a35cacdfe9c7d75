package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// readMatrixCSV loads a numeric CSV into rows of floats. A single
// non-numeric leading row is treated as a header and skipped.
func readMatrixCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	start := 0
	if !numericRecord(records[0]) {
		start = 1
	}
	if start >= len(records) {
		return nil, fmt.Errorf("%s: no data rows", path)
	}

	rows := make([][]float64, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		row := make([]float64, len(records[i]))
		for j, field := range records[i] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d column %d: %w", path, i+1, j+1, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readVectorCSV loads a one-column CSV into a float slice.
func readVectorCSV(path string) ([]float64, error) {
	rows, err := readMatrixCSV(path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("%s: row %d has %d columns, expected 1", path, i+1, len(row))
		}
		out[i] = row[0]
	}
	return out, nil
}

func numericRecord(fields []string) bool {
	for _, field := range fields {
		if _, err := strconv.ParseFloat(field, 64); err != nil {
			return false
		}
	}
	return true
}
