// Package dataset turns index-aligned tabular data into the windowed
// sequence batches the recurrent models consume. Every input row
// yields exactly one window: rows earlier than the window length are
// left-padded with zero rows so predictions stay index-aligned with
// the inputs.
package dataset

import (
	"math/rand"

	"iceflow/internal/errs"
)

// SequenceDataset is a sliding-window view over a feature matrix and
// an optional target vector.
type SequenceDataset struct {
	features       [][]float64
	labels         []float64
	sequenceLength int
	width          int
}

// NewSequenceDataset validates the inputs and builds the view.
// labels may be nil for inference datasets.
func NewSequenceDataset(features [][]float64, labels []float64, sequenceLength int) (*SequenceDataset, error) {
	if len(features) == 0 {
		return nil, errs.InvalidArgumentf("dataset has no samples")
	}
	if sequenceLength < 1 {
		return nil, errs.InvalidArgumentf("sequence length must be >= 1, got %d", sequenceLength)
	}
	width := len(features[0])
	if width == 0 {
		return nil, errs.InvalidArgumentf("samples have zero width")
	}
	for i, row := range features {
		if len(row) != width {
			return nil, errs.InvalidArgumentf("sample %d has width %d, want %d", i, len(row), width)
		}
	}
	if labels != nil && len(labels) != len(features) {
		return nil, errs.InvalidArgumentf("labels length %d does not match %d samples", len(labels), len(features))
	}
	return &SequenceDataset{
		features:       features,
		labels:         labels,
		sequenceLength: sequenceLength,
		width:          width,
	}, nil
}

func (d *SequenceDataset) Len() int { return len(d.features) }

func (d *SequenceDataset) Width() int { return d.width }

func (d *SequenceDataset) SequenceLength() int { return d.sequenceLength }

func (d *SequenceDataset) HasLabels() bool { return d.labels != nil }

// Window returns the sequence ending at row i, zero-padded on the
// left when i+1 < sequenceLength.
func (d *SequenceDataset) Window(i int) [][]float64 {
	window := make([][]float64, d.sequenceLength)
	start := i - d.sequenceLength + 1
	for t := 0; t < d.sequenceLength; t++ {
		src := start + t
		row := make([]float64, d.width)
		if src >= 0 {
			copy(row, d.features[src])
		}
		window[t] = row
	}
	return window
}

// Batch materializes windows (and labels when present) for the given
// global indices.
func (d *SequenceDataset) Batch(indices []int) (windows [][][]float64, labels []float64, err error) {
	windows = make([][][]float64, 0, len(indices))
	if d.labels != nil {
		labels = make([]float64, 0, len(indices))
	}
	for _, i := range indices {
		if i < 0 || i >= len(d.features) {
			return nil, nil, errs.InvalidArgumentf("index %d out of range [0,%d)", i, len(d.features))
		}
		windows = append(windows, d.Window(i))
		if d.labels != nil {
			labels = append(labels, d.labels[i])
		}
	}
	return windows, labels, nil
}

// Loader slices a dataset into minibatches of indices, reshuffling on
// every call to Batches when a random source is supplied.
type Loader struct {
	size      int
	batchSize int
	rng       *rand.Rand
}

// NewLoader builds a loader over n samples. rng == nil disables
// shuffling (inference order).
func NewLoader(n, batchSize int, rng *rand.Rand) (*Loader, error) {
	if n <= 0 {
		return nil, errs.InvalidArgumentf("loader needs at least one sample")
	}
	if batchSize < 1 {
		return nil, errs.InvalidArgumentf("batch size must be >= 1, got %d", batchSize)
	}
	return &Loader{size: n, batchSize: batchSize, rng: rng}, nil
}

// Batches returns index batches covering every sample exactly once.
func (l *Loader) Batches() [][]int {
	indices := make([]int, l.size)
	for i := range indices {
		indices[i] = i
	}
	if l.rng != nil {
		l.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	batches := make([][]int, 0, (l.size+l.batchSize-1)/l.batchSize)
	for start := 0; start < l.size; start += l.batchSize {
		end := start + l.batchSize
		if end > l.size {
			end = l.size
		}
		batches = append(batches, indices[start:end])
	}
	return batches
}
