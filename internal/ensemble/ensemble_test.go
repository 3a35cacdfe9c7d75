package ensemble

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"iceflow/internal/errs"
)

func TestNewDeepEnsembleValidation(t *testing.T) {
	if _, err := NewDeepEnsemble(nil, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty member list, got %v", err)
	}

	a := smallPredictor(t, 3, 1)
	if _, err := NewDeepEnsemble([]*WeakPredictor{a, nil}, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil member, got %v", err)
	}

	b := smallPredictor(t, 4, 2)
	if _, err := NewDeepEnsemble([]*WeakPredictor{a, b}, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for mismatched widths, got %v", err)
	}
}

func TestNewRandomDeepEnsemble(t *testing.T) {
	e, err := NewRandomDeepEnsemble(RandomEnsembleConfig{
		InputSize: 5,
		Rand:      rand.New(rand.NewSource(21)),
		Log:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewRandomDeepEnsemble: %v", err)
	}
	if e.Size() != defaultEnsembleSize {
		t.Fatalf("expected default size %d, got %d", defaultEnsembleSize, e.Size())
	}
	if e.Trained() {
		t.Fatalf("fresh ensemble must not report trained")
	}
	for i, m := range e.Members() {
		if m.Layers() < 1 || m.Layers() > 2 {
			t.Fatalf("member %d has depth %d outside [1,2]", i, m.Layers())
		}
		var known bool
		for _, w := range memberWidths {
			if m.HiddenSize() == w {
				known = true
			}
		}
		if !known {
			t.Fatalf("member %d width %d not drawn from pool", i, m.HiddenSize())
		}
	}
}

func TestNewRandomDeepEnsembleRequiresInputSize(t *testing.T) {
	if _, err := NewRandomDeepEnsemble(RandomEnsembleConfig{}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestEnsembleTrainedIsDerived(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	X, y := rampData(rng, 40, 3)

	a := smallPredictor(t, 3, 23)
	b := smallPredictor(t, 3, 24)
	e, err := NewDeepEnsemble([]*WeakPredictor{a, b}, quietLogger())
	if err != nil {
		t.Fatalf("NewDeepEnsemble: %v", err)
	}

	if err := a.Fit(X, y, FitOptions{Epochs: 1, BatchSize: 16}); err != nil {
		t.Fatalf("member fit: %v", err)
	}
	if e.Trained() {
		t.Fatalf("ensemble with one untrained member must not report trained")
	}

	if _, err := e.Fit(X, y, FitOptions{Epochs: 1, BatchSize: 16}); err != nil {
		t.Fatalf("ensemble fit: %v", err)
	}
	if !e.Trained() {
		t.Fatalf("ensemble must report trained after fitting every member")
	}
}

func TestEnsembleRetrainOutcome(t *testing.T) {
	rng := rand.New(rand.NewSource(27))
	X, y := rampData(rng, 30, 2)

	e, err := NewDeepEnsemble([]*WeakPredictor{
		smallPredictor(t, 2, 27),
		smallPredictor(t, 2, 28),
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewDeepEnsemble: %v", err)
	}

	outcome, err := e.Fit(X, y, FitOptions{Epochs: 1, BatchSize: 8})
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	if outcome.Retrained {
		t.Fatalf("first fit must not report a retrain")
	}

	outcome, err = e.Fit(X, y, FitOptions{Epochs: 1, BatchSize: 8})
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	if !outcome.Retrained {
		t.Fatalf("second fit must report a retrain")
	}
}

func TestEnsembleEpistemicSpread(t *testing.T) {
	X, _ := rampData(rand.New(rand.NewSource(31)), 12, 3)

	// Same seed, same architecture: members agree exactly and the
	// spread collapses to zero.
	same, err := NewDeepEnsemble([]*WeakPredictor{
		smallPredictor(t, 3, 31),
		smallPredictor(t, 3, 31),
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewDeepEnsemble: %v", err)
	}
	means, stds, err := same.Predict(X, 0, 0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(means) != len(X) || len(stds) != len(X) {
		t.Fatalf("expected %d means and stds, got %d and %d", len(X), len(means), len(stds))
	}
	for i, s := range stds {
		if s != 0 {
			t.Fatalf("identical members must have zero spread, row %d has %g", i, s)
		}
	}

	// Different seeds disagree, so the spread is strictly positive
	// somewhere.
	mixed, err := NewDeepEnsemble([]*WeakPredictor{
		smallPredictor(t, 3, 41),
		smallPredictor(t, 3, 42),
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewDeepEnsemble: %v", err)
	}
	_, stds, err = mixed.Predict(X, 0, 0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	var maxStd float64
	for _, s := range stds {
		maxStd = math.Max(maxStd, s)
	}
	if maxStd <= 0 {
		t.Fatalf("differing members must produce a positive spread")
	}
}
