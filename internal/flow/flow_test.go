package flow

import (
	"errors"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"

	"iceflow/internal/errs"
	"iceflow/internal/nn"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// noisyLinearData draws targets around a linear function of the
// features, so the conditional density is genuinely learnable.
func noisyLinearData(rng *rand.Rand, rows, width int) ([][]float64, []float64) {
	X := make([][]float64, rows)
	y := make([]float64, rows)
	for i := range X {
		row := make([]float64, width)
		var sum float64
		for j := range row {
			row[j] = rng.NormFloat64()
			sum += row[j]
		}
		X[i] = row
		y[i] = sum + 0.1*rng.NormFloat64()
	}
	return X, y
}

func newTestFlow(t *testing.T, features int, seed int64) *Flow {
	t.Helper()
	f, err := New(Config{
		Features: features,
		Rand:     rand.New(rand.NewSource(seed)),
		Log:      quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero features", Config{}},
		{"negative depth", Config{Features: 3, Depth: -1}},
		{"negative hidden", Config{Features: 3, HiddenSize: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	f := newTestFlow(t, 4, 1)
	if f.Depth() != defaultDepth {
		t.Fatalf("expected default depth %d, got %d", defaultDepth, f.Depth())
	}
	if f.Trained() {
		t.Fatalf("fresh flow must not report trained")
	}
}

func TestNegLogLikGradientCheck(t *testing.T) {
	f := newTestFlow(t, 3, 7)

	x := []float64{0.4, -1.1, 0.8}
	y := 0.6

	objective := func() float64 {
		z, _, logDet := f.forward(x, y)
		base := f.enc.Forward(x)
		return negLogLik(z, base[0], base[1], logDet)
	}

	nn.ZeroGrads(f.params())
	z, caches, _ := f.forward(x, y)
	base := f.enc.Forward(x)
	f.backwardSample(x, z, caches, base[0], base[1])

	const eps = 1e-6
	const tol = 1e-4
	for _, p := range f.params() {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + eps
			plus := objective()
			p.Value[i] = orig - eps
			minus := objective()
			p.Value[i] = orig
			numeric := (plus - minus) / (2 * eps)
			if math.Abs(numeric-p.Grad[i]) > tol {
				t.Fatalf("%s[%d]: analytic=%g numeric=%g", p.Name, i, p.Grad[i], numeric)
			}
		}
	}
}

func TestFitReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	X, y := noisyLinearData(rng, 120, 2)

	f := newTestFlow(t, 2, 11)
	if err := f.Fit(X, y, FitOptions{Epochs: 25, BatchSize: 32}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !f.Trained() {
		t.Fatalf("flow must report trained after fit")
	}
	hist := f.LossHistory()
	if len(hist) != 25 {
		t.Fatalf("expected 25 epoch losses, got %d", len(hist))
	}
	if hist[len(hist)-1] >= hist[0] {
		t.Fatalf("nll did not decrease: first=%g last=%g", hist[0], hist[len(hist)-1])
	}
}

func TestFitValidation(t *testing.T) {
	f := newTestFlow(t, 2, 13)
	if err := f.Fit([][]float64{{1, 2, 3}}, []float64{1}, FitOptions{Epochs: 1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for width mismatch, got %v", err)
	}
	if err := f.Fit([][]float64{{1, 2}}, []float64{1, 2}, FitOptions{Epochs: 1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for label length mismatch, got %v", err)
	}
}

func TestSampleFormats(t *testing.T) {
	f := newTestFlow(t, 2, 17)
	X := [][]float64{{0.1, 0.2}, {0.3, -0.4}, {1, 1}}

	s, err := f.Sample(X, 7, SampleRows)
	if err != nil {
		t.Fatalf("Sample rows: %v", err)
	}
	if len(s.Rows) != 3 {
		t.Fatalf("expected 3 sample rows, got %d", len(s.Rows))
	}
	for i, r := range s.Rows {
		if len(r) != 7 {
			t.Fatalf("row %d has %d draws, expected 7", i, len(r))
		}
	}

	s, err = f.Sample(X, 7, SampleTensor)
	if err != nil {
		t.Fatalf("Sample tensor: %v", err)
	}
	if len(s.Tensor.Shape) != 2 || s.Tensor.Shape[0] != 3 || s.Tensor.Shape[1] != 7 {
		t.Fatalf("unexpected tensor shape %v", s.Tensor.Shape)
	}
	if len(s.Tensor.Data) != 21 {
		t.Fatalf("unexpected tensor data length %d", len(s.Tensor.Data))
	}
}

func TestSampleRejectsBadArguments(t *testing.T) {
	f := newTestFlow(t, 2, 19)
	X := [][]float64{{1, 2}}

	if _, err := f.Sample(X, 5, SampleFormat(99)); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown format, got %v", err)
	}
	if _, err := f.Sample(X, 0, SampleRows); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero draws, got %v", err)
	}
}

func TestLatent(t *testing.T) {
	f := newTestFlow(t, 3, 23)
	X := [][]float64{{1, 0, -1}, {0.5, 0.5, 0.5}}

	latent, err := f.Latent(X, 0)
	if err != nil {
		t.Fatalf("Latent: %v", err)
	}
	if len(latent) != 2 {
		t.Fatalf("expected one latent row per input, got %d", len(latent))
	}
	for i, row := range latent {
		if len(row) != 1 {
			t.Fatalf("latent row %d has width %d, expected 1", i, len(row))
		}
	}

	again, err := f.Latent(X, 0)
	if err != nil {
		t.Fatalf("Latent: %v", err)
	}
	for i := range latent {
		if latent[i][0] != again[i][0] {
			t.Fatalf("latent must be deterministic, row %d diverged", i)
		}
	}

	shifted, err := f.Latent(X, 1)
	if err != nil {
		t.Fatalf("Latent: %v", err)
	}
	if shifted[0][0] == latent[0][0] {
		t.Fatalf("different latent constants must induce different codes")
	}
}

func TestAleatoric(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	X, y := noisyLinearData(rng, 60, 2)

	f := newTestFlow(t, 2, 29)
	if err := f.Fit(X, y, FitOptions{Epochs: 3, BatchSize: 16}); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	stds, err := f.Aleatoric(X[:5], 50)
	if err != nil {
		t.Fatalf("Aleatoric: %v", err)
	}
	if len(stds) != 5 {
		t.Fatalf("expected 5 spreads, got %d", len(stds))
	}
	for i, s := range stds {
		if s < 0 || math.IsNaN(s) {
			t.Fatalf("spread %d must be non-negative, got %g", i, s)
		}
	}

	if _, err := f.Aleatoric(X[:2], 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero draws, got %v", err)
	}
}
