package ensemble

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"

	"iceflow/internal/errs"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// rampData builds rows whose label tracks a smoothed feature mean, so
// a few epochs are enough to pull the loss down.
func rampData(rng *rand.Rand, rows, width int) ([][]float64, []float64) {
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
		y[i] = sum / float64(width)
	}
	return X, y
}

func smallPredictor(t *testing.T, inputSize int, seed int64) *WeakPredictor {
	t.Helper()
	w, err := NewWeakPredictor(WeakPredictorConfig{
		InputSize:  inputSize,
		HiddenSize: 8,
		Rand:       rand.New(rand.NewSource(seed)),
		Log:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWeakPredictor: %v", err)
	}
	return w
}

func TestWeakPredictorConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  WeakPredictorConfig
	}{
		{"zero input size", WeakPredictorConfig{}},
		{"negative layers", WeakPredictorConfig{InputSize: 3, LSTMLayers: -1}},
		{"negative hidden", WeakPredictorConfig{InputSize: 3, HiddenSize: -4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewWeakPredictor(tc.cfg); !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestWeakPredictorDefaults(t *testing.T) {
	w, err := NewWeakPredictor(WeakPredictorConfig{InputSize: 4})
	if err != nil {
		t.Fatalf("NewWeakPredictor: %v", err)
	}
	if w.Layers() != 1 {
		t.Fatalf("expected 1 recurrent layer, got %d", w.Layers())
	}
	if w.HiddenSize() != 64 {
		t.Fatalf("expected hidden size 64, got %d", w.HiddenSize())
	}
	if w.Trained() {
		t.Fatalf("fresh predictor must not report trained")
	}
}

func TestWeakPredictorPredictBeforeFit(t *testing.T) {
	w := smallPredictor(t, 3, 1)
	if _, err := w.Predict([][]float64{{1, 2, 3}}, 0, 0); !errors.Is(err, errs.ErrNotFitted) {
		t.Fatalf("expected not fitted, got %v", err)
	}
}

func TestWeakPredictorFitAndPredict(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	X, y := rampData(rng, 60, 3)

	w := smallPredictor(t, 3, 5)
	if err := w.Fit(X, y, FitOptions{Epochs: 4, BatchSize: 16}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !w.Trained() {
		t.Fatalf("predictor must report trained after fit")
	}
	if got := len(w.LossHistory()); got != 4 {
		t.Fatalf("expected 4 epoch losses, got %d", got)
	}

	preds, err := w.Predict(X, 0, 0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != len(X) {
		t.Fatalf("expected one prediction per row, got %d for %d rows", len(preds), len(X))
	}
}

func TestWeakPredictorLossDecreases(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	X, y := rampData(rng, 80, 2)

	w := smallPredictor(t, 2, 9)
	if err := w.Fit(X, y, FitOptions{Epochs: 30, BatchSize: 16}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	hist := w.LossHistory()
	if hist[len(hist)-1] >= hist[0] {
		t.Fatalf("loss did not decrease: first=%g last=%g", hist[0], hist[len(hist)-1])
	}
}

func TestWeakPredictorValidationLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	X, y := rampData(rng, 40, 3)
	valX, valY := rampData(rng, 10, 3)

	w := smallPredictor(t, 3, 13)
	err := w.Fit(X, y, FitOptions{Epochs: 2, BatchSize: 16, ValX: valX, ValY: valY})
	if err != nil {
		t.Fatalf("Fit with validation: %v", err)
	}
}

func TestWeakPredictorHalfValidationPair(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	X, y := rampData(rng, 20, 2)
	valX, valY := rampData(rng, 6, 2)

	w := smallPredictor(t, 2, 31)
	err := w.Fit(X, y, FitOptions{Epochs: 1, ValX: valX})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for features without labels, got %v", err)
	}
	err = w.Fit(X, y, FitOptions{Epochs: 1, ValY: valY})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for labels without features, got %v", err)
	}
}

func TestWeakPredictorWidthMismatch(t *testing.T) {
	w := smallPredictor(t, 3, 17)
	X, y := rampData(rand.New(rand.NewSource(17)), 20, 5)
	if err := w.Fit(X, y, FitOptions{Epochs: 1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for width mismatch, got %v", err)
	}
}

func TestWeakPredictorFitRequiresLabels(t *testing.T) {
	w := smallPredictor(t, 3, 19)
	X, _ := rampData(rand.New(rand.NewSource(19)), 20, 3)
	if err := w.Fit(X, nil, FitOptions{Epochs: 1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil labels, got %v", err)
	}
}
