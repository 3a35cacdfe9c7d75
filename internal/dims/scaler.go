package dims

import (
	"iceflow/internal/errs"
	"iceflow/internal/model"
	"iceflow/internal/tensor"
)

// StandardScaler standardizes features to zero mean and unit
// variance. Fit populates Mean/Scale; Transform and InverseTransform
// require a prior Fit.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// near-zero spread would blow up the division; sklearn snaps it to 1
const minScale = 1e-8

func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

func (s *StandardScaler) Fitted() bool {
	return s.Mean != nil && s.Scale != nil
}

// Fit computes per-feature mean and standard deviation. Re-fit
// overwrites previous state.
func (s *StandardScaler) Fit(X [][]float64) error {
	m, err := tensor.FromRows(X)
	if err != nil {
		return err
	}
	s.Mean = tensor.ColumnMeans(m)
	s.Scale = tensor.ColumnStds(m)
	for j, sc := range s.Scale {
		if sc < minScale {
			s.Scale[j] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, errs.NotFittedf("standard scaler has no statistics")
	}
	return s.apply(X, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) InverseTransform(X [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, errs.NotFittedf("standard scaler has no statistics")
	}
	return s.apply(X, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

func (s *StandardScaler) apply(X [][]float64, f func(v float64, j int) float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, errs.InvalidArgumentf("row %d has width %d, scaler was fit on %d features", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = f(v, j)
		}
		out[i] = scaled
	}
	return out, nil
}

// Checkpoint serializes the fitted state.
func (s *StandardScaler) Checkpoint() (model.Checkpoint, error) {
	if !s.Fitted() {
		return model.Checkpoint{}, errs.NotFittedf("standard scaler has no statistics")
	}
	return model.Checkpoint{
		VersionedRecord: currentVersion(),
		Kind:            "scaler",
		Tensors: map[string]model.Tensor{
			"mean":  vectorTensor(s.Mean),
			"scale": vectorTensor(s.Scale),
		},
		Scalars: map[string]float64{},
	}, nil
}

// ScalerFromCheckpoint rebuilds a fitted scaler from a checkpoint.
func ScalerFromCheckpoint(cp model.Checkpoint) (*StandardScaler, error) {
	if cp.Kind != "scaler" {
		return nil, errs.CorruptArtifactf("checkpoint kind %q, want scaler", cp.Kind)
	}
	mean, err := requireVector(cp, "mean")
	if err != nil {
		return nil, err
	}
	scale, err := requireVector(cp, "scale")
	if err != nil {
		return nil, err
	}
	if len(mean) != len(scale) {
		return nil, errs.CorruptArtifactf("mean width %d does not match scale width %d", len(mean), len(scale))
	}
	return &StandardScaler{Mean: mean, Scale: scale}, nil
}
