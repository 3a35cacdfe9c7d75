package dims

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"iceflow/internal/errs"
	"iceflow/internal/model"
	"iceflow/internal/tensor"
)

// DefaultRankCap bounds the internal randomized SVD rank. The value
// comes from the spatial-grid use case where a few hundred modes
// capture the ice-sheet fields; override RankCap for wider inputs.
const DefaultRankCap = 301

const powerIterations = 2

// ComponentCount selects how many principal components to keep:
// either an exact count or the smallest prefix reaching a cumulative
// explained-variance fraction. The zero value is invalid.
type ComponentCount struct {
	exact int
	frac  float64
}

// Exact keeps k components, capped at the available rank.
func Exact(k int) ComponentCount {
	return ComponentCount{exact: k}
}

// ExplainedVariance keeps the smallest prefix of components whose
// cumulative explained-variance ratio reaches frac in (0, 1).
func ExplainedVariance(frac float64) ComponentCount {
	return ComponentCount{frac: frac}
}

func (c ComponentCount) validate() error {
	if c.exact > 0 {
		return nil
	}
	if c.frac > 0 && c.frac < 1 {
		return nil
	}
	return errs.InvalidArgumentf("n_components must be a positive count or a fraction in (0, 1)")
}

// PCA fits an orthogonal projection onto the leading principal
// components via randomized low-rank SVD.
type PCA struct {
	// RankCap bounds the internal decomposition rank independently of
	// the requested component count. Zero means DefaultRankCap.
	RankCap int

	// Rand drives the randomized range finder. Nil falls back to a
	// fixed-seed source; power iterations make the fit insensitive to
	// the draw.
	Rand *rand.Rand

	count ComponentCount

	NComponents            int
	Mean                   []float64
	Components             *mat.Dense // features x NComponents
	SingularValues         []float64
	ExplainedVariance      []float64
	ExplainedVarianceRatio []float64
}

func NewPCA(count ComponentCount) *PCA {
	return &PCA{count: count}
}

func (p *PCA) Fitted() bool {
	return p.Mean != nil && p.Components != nil
}

// Fit centers X and computes the truncated decomposition. Re-fit
// overwrites all state.
func (p *PCA) Fit(X [][]float64) error {
	if err := p.count.validate(); err != nil {
		return err
	}
	m, err := tensor.FromRows(X)
	if err != nil {
		return err
	}
	n, f := m.Dims()

	mean := tensor.ColumnMeans(m)
	centered := mat.NewDense(n, f, nil)
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		out := centered.RawRowView(i)
		for j := range row {
			out[j] = row[j] - mean[j]
		}
	}

	rank := p.RankCap
	if rank <= 0 {
		rank = DefaultRankCap
	}
	if rank > f {
		rank = f
	}
	if rank > n {
		rank = n
	}

	singular, components, err := randomizedSVD(centered, rank, p.rand())
	if err != nil {
		return err
	}

	total := 0.0
	explained := make([]float64, len(singular))
	for i, s := range singular {
		explained[i] = s * s
		total += explained[i]
	}
	ratio := make([]float64, len(explained))
	if total > 0 {
		for i, v := range explained {
			ratio[i] = v / total
		}
	}

	k := p.resolveComponents(ratio, len(singular))

	p.NComponents = k
	p.Mean = mean
	p.Components = truncateColumns(components, k)
	p.SingularValues = append([]float64(nil), singular[:k]...)
	p.ExplainedVariance = append([]float64(nil), explained[:k]...)
	p.ExplainedVarianceRatio = append([]float64(nil), ratio[:k]...)
	return nil
}

// resolveComponents maps the requested count onto the available rank.
// Fraction mode keeps the smallest k with cumulative ratio >= frac.
func (p *PCA) resolveComponents(ratio []float64, rank int) int {
	if p.count.exact > 0 {
		if p.count.exact < rank {
			return p.count.exact
		}
		return rank
	}
	cumulative := 0.0
	for i, r := range ratio {
		cumulative += r
		if cumulative >= p.count.frac {
			return i + 1
		}
	}
	return rank
}

func (p *PCA) Transform(X [][]float64) ([][]float64, error) {
	if !p.Fitted() {
		return nil, errs.NotFittedf("pca has no components")
	}
	m, err := tensor.FromRows(X)
	if err != nil {
		return nil, err
	}
	n, f := m.Dims()
	if f != len(p.Mean) {
		return nil, errs.InvalidArgumentf("input width %d, pca was fit on %d features", f, len(p.Mean))
	}
	centered := mat.NewDense(n, f, nil)
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		out := centered.RawRowView(i)
		for j := range row {
			out[j] = row[j] - p.Mean[j]
		}
	}
	var projected mat.Dense
	projected.Mul(centered, p.Components)
	return tensor.Rows(&projected), nil
}

// InverseTransform maps component space back to the original feature
// space; lossy once NComponents is below full rank.
func (p *PCA) InverseTransform(Z [][]float64) ([][]float64, error) {
	if !p.Fitted() {
		return nil, errs.NotFittedf("pca has no components")
	}
	m, err := tensor.FromRows(Z)
	if err != nil {
		return nil, err
	}
	n, k := m.Dims()
	if k != p.NComponents {
		return nil, errs.InvalidArgumentf("input width %d, pca keeps %d components", k, p.NComponents)
	}
	var restored mat.Dense
	restored.Mul(m, p.Components.T())
	for i := 0; i < n; i++ {
		row := restored.RawRowView(i)
		for j := range row {
			row[j] += p.Mean[j]
		}
	}
	return tensor.Rows(&restored), nil
}

// Checkpoint serializes all five state fields atomically.
func (p *PCA) Checkpoint() (model.Checkpoint, error) {
	if !p.Fitted() {
		return model.Checkpoint{}, errs.NotFittedf("pca has no components")
	}
	f, k := p.Components.Dims()
	flat := make([]float64, 0, f*k)
	for i := 0; i < f; i++ {
		flat = append(flat, p.Components.RawRowView(i)...)
	}
	return model.Checkpoint{
		VersionedRecord: currentVersion(),
		Kind:            "pca",
		Tensors: map[string]model.Tensor{
			"mean":                     vectorTensor(p.Mean),
			"components":               {Shape: []int{f, k}, Data: flat},
			"singular_values":          vectorTensor(p.SingularValues),
			"explained_variance":       vectorTensor(p.ExplainedVariance),
			"explained_variance_ratio": vectorTensor(p.ExplainedVarianceRatio),
		},
		Scalars: map[string]float64{
			"n_components": float64(p.NComponents),
		},
	}, nil
}

// PCAFromCheckpoint rebuilds a fitted PCA from a checkpoint.
func PCAFromCheckpoint(cp model.Checkpoint) (*PCA, error) {
	if cp.Kind != "pca" {
		return nil, errs.CorruptArtifactf("checkpoint kind %q, want pca", cp.Kind)
	}
	nc, ok := cp.Scalars["n_components"]
	if !ok {
		return nil, errs.CorruptArtifactf("missing scalar n_components")
	}
	k := int(nc)
	if k <= 0 {
		return nil, errs.CorruptArtifactf("n_components must be positive, got %d", k)
	}

	mean, err := requireVector(cp, "mean")
	if err != nil {
		return nil, err
	}
	components, ok := cp.Tensors["components"]
	if !ok {
		return nil, errs.CorruptArtifactf("missing tensor components")
	}
	if len(components.Shape) != 2 || components.NumElements() != len(components.Data) {
		return nil, errs.CorruptArtifactf("components tensor is malformed")
	}
	f := components.Shape[0]
	if components.Shape[1] != k || f != len(mean) {
		return nil, errs.CorruptArtifactf("components shape %v does not match n_components=%d features=%d", components.Shape, k, len(mean))
	}

	singular, err := requireVector(cp, "singular_values")
	if err != nil {
		return nil, err
	}
	explained, err := requireVector(cp, "explained_variance")
	if err != nil {
		return nil, err
	}
	ratio, err := requireVector(cp, "explained_variance_ratio")
	if err != nil {
		return nil, err
	}

	p := NewPCA(Exact(k))
	p.NComponents = k
	p.Mean = mean
	p.Components = mat.NewDense(f, k, append([]float64(nil), components.Data...))
	p.SingularValues = singular
	p.ExplainedVariance = explained
	p.ExplainedVarianceRatio = ratio
	return p, nil
}

func (p *PCA) rand() *rand.Rand {
	if p.Rand != nil {
		return p.Rand
	}
	return rand.New(rand.NewSource(1))
}

// randomizedSVD approximates the leading rank singular triplets of a
// via a Gaussian range finder with subspace power iterations, then an
// exact thin SVD of the projected matrix.
func randomizedSVD(a *mat.Dense, rank int, rng *rand.Rand) (singular []float64, components *mat.Dense, err error) {
	n, f := a.Dims()

	omega := mat.NewDense(f, rank, nil)
	for i := 0; i < f; i++ {
		row := omega.RawRowView(i)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
	}

	var y mat.Dense
	y.Mul(a, omega)
	q := orthonormalize(&y)
	for iter := 0; iter < powerIterations; iter++ {
		var z mat.Dense
		z.Mul(a.T(), q)
		qz := orthonormalize(&z)
		var y2 mat.Dense
		y2.Mul(a, qz)
		q = orthonormalize(&y2)
	}

	// b is rank x features; its exact SVD shares right singular
	// vectors with the projected a.
	var b mat.Dense
	b.Mul(q.T(), a)

	var svd mat.SVD
	if ok := svd.Factorize(&b, mat.SVDThinV); !ok {
		return nil, nil, errs.InvalidArgumentf("svd failed to converge on %dx%d matrix", n, f)
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)
	if len(values) > rank {
		values = values[:rank]
	}
	return values, truncateColumns(&v, len(values)), nil
}

func orthonormalize(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)
	if c > r {
		c = r
	}
	return truncateColumns(&q, c)
}

func truncateColumns(a *mat.Dense, k int) *mat.Dense {
	r, c := a.Dims()
	if k >= c {
		out := mat.NewDense(r, c, nil)
		out.Copy(a)
		return out
	}
	out := mat.NewDense(r, k, nil)
	out.Copy(a.Slice(0, r, 0, k))
	return out
}
