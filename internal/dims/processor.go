package dims

import (
	"fmt"

	"iceflow/internal/errs"
)

// ScalerSource names where a DimensionProcessor gets its scaler:
// an already-built instance or a checkpoint file path. The zero value
// is invalid.
type ScalerSource struct {
	instance *StandardScaler
	path     string
}

func ScalerFromInstance(s *StandardScaler) ScalerSource {
	return ScalerSource{instance: s}
}

func ScalerFromPath(path string) ScalerSource {
	return ScalerSource{path: path}
}

// PCASource is the PCA counterpart of ScalerSource.
type PCASource struct {
	instance *PCA
	path     string
}

func PCAFromInstance(p *PCA) PCASource {
	return PCASource{instance: p}
}

func PCAFromPath(path string) PCASource {
	return PCASource{path: path}
}

// DimensionProcessor composes a fitted scaler and a fitted PCA into a
// single transform between raw grid space and component space.
type DimensionProcessor struct {
	scaler *StandardScaler
	pca    *PCA
}

// NewDimensionProcessor resolves both sources and validates that the
// components are fit. Sources are resolved through each component's
// own load routine.
func NewDimensionProcessor(scaler ScalerSource, pca PCASource) (*DimensionProcessor, error) {
	s, err := scaler.resolve()
	if err != nil {
		return nil, err
	}
	p, err := pca.resolve()
	if err != nil {
		return nil, err
	}
	if !s.Fitted() {
		return nil, errs.NotFittedf("scaler must be fit before building a dimension processor")
	}
	if !p.Fitted() {
		return nil, errs.NotFittedf("pca must be fit before building a dimension processor")
	}
	if len(s.Mean) != len(p.Mean) {
		return nil, errs.InvalidArgumentf("scaler width %d does not match pca width %d", len(s.Mean), len(p.Mean))
	}
	return &DimensionProcessor{scaler: s, pca: p}, nil
}

func (src ScalerSource) resolve() (*StandardScaler, error) {
	switch {
	case src.instance != nil:
		return src.instance, nil
	case src.path != "":
		cp, err := ReadCheckpointFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("load scaler: %w", err)
		}
		return ScalerFromCheckpoint(cp)
	default:
		return nil, errs.InvalidArgumentf("scaler source must be an instance or a path")
	}
}

func (src PCASource) resolve() (*PCA, error) {
	switch {
	case src.instance != nil:
		return src.instance, nil
	case src.path != "":
		cp, err := ReadCheckpointFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("load pca: %w", err)
		}
		return PCAFromCheckpoint(cp)
	default:
		return nil, errs.InvalidArgumentf("pca source must be an instance or a path")
	}
}

// ToPCA scales the raw grid data and projects it onto the fitted
// component basis.
func (d *DimensionProcessor) ToPCA(data [][]float64) ([][]float64, error) {
	scaled, err := d.scaler.Transform(data)
	if err != nil {
		return nil, err
	}
	return d.pca.Transform(scaled)
}

// ToGrid inverse-projects component scores back to grid space and,
// when unscale is set, undoes the standardization too.
func (d *DimensionProcessor) ToGrid(pcs [][]float64, unscale bool) ([][]float64, error) {
	grid, err := d.pca.InverseTransform(pcs)
	if err != nil {
		return nil, err
	}
	if !unscale {
		return grid, nil
	}
	return d.scaler.InverseTransform(grid)
}

// Scaler exposes the owned scaler for persistence.
func (d *DimensionProcessor) Scaler() *StandardScaler { return d.scaler }

// PCA exposes the owned PCA for persistence.
func (d *DimensionProcessor) PCA() *PCA { return d.pca }
