package ensemble

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"iceflow/internal/errs"
	"iceflow/internal/tensor"
)

const defaultEnsembleSize = 3

// memberWidths is the pool of hidden sizes a randomized ensemble
// draws from.
var memberWidths = []int{512, 256, 128, 64}

// DeepEnsemble fuses independently initialized weak predictors. The
// member mean is the point estimate; the sample standard deviation
// across members is the epistemic spread.
type DeepEnsemble struct {
	members []*WeakPredictor
	log     *logrus.Logger
}

// NewDeepEnsemble wraps an explicit member list. Every slot must hold
// a constructed predictor and all members must share an input width.
func NewDeepEnsemble(members []*WeakPredictor, log *logrus.Logger) (*DeepEnsemble, error) {
	if len(members) == 0 {
		return nil, errs.InvalidArgumentf("ensemble requires at least one member")
	}
	for i, m := range members {
		if m == nil {
			return nil, errs.InvalidArgumentf("ensemble member %d is nil", i)
		}
		if m.InputSize() != members[0].InputSize() {
			return nil, errs.InvalidArgumentf("ensemble member %d expects input width %d, member 0 expects %d",
				i, m.InputSize(), members[0].InputSize())
		}
	}
	return &DeepEnsemble{members: members, log: log}, nil
}

// RandomEnsembleConfig sizes a randomized ensemble. InputSize is
// required.
type RandomEnsembleConfig struct {
	InputSize int

	// Size is the member count (default 3).
	Size int

	// LearningRate is shared by every member's optimizer.
	LearningRate float64

	// Rand drives architecture draws and member weight init. Nil uses
	// a time-seeded source.
	Rand *rand.Rand

	Log *logrus.Logger
}

// NewRandomDeepEnsemble synthesizes members with randomized depth
// (1 or 2 recurrent layers) and hidden width drawn from a fixed pool,
// so the members disagree where the data does not pin them down.
func NewRandomDeepEnsemble(cfg RandomEnsembleConfig) (*DeepEnsemble, error) {
	if cfg.InputSize <= 0 {
		return nil, errs.InvalidArgumentf("ensemble input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.Size < 0 {
		return nil, errs.InvalidArgumentf("ensemble size must be positive, got %d", cfg.Size)
	}
	if cfg.Size == 0 {
		cfg.Size = defaultEnsembleSize
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	members := make([]*WeakPredictor, cfg.Size)
	for i := range members {
		m, err := NewWeakPredictor(WeakPredictorConfig{
			InputSize:    cfg.InputSize,
			LSTMLayers:   1 + rng.Intn(2),
			HiddenSize:   memberWidths[rng.Intn(len(memberWidths))],
			LearningRate: cfg.LearningRate,
			Rand:         rng,
			Log:          cfg.Log,
		})
		if err != nil {
			return nil, err
		}
		members[i] = m
	}
	return &DeepEnsemble{members: members, log: cfg.Log}, nil
}

func (e *DeepEnsemble) Size() int { return len(e.members) }

func (e *DeepEnsemble) Members() []*WeakPredictor {
	return append([]*WeakPredictor(nil), e.members...)
}

func (e *DeepEnsemble) InputSize() int { return e.members[0].InputSize() }

// Trained reports whether every member has been fit. It is derived,
// never stored, so a partially fit ensemble cannot misreport.
func (e *DeepEnsemble) Trained() bool {
	for _, m := range e.members {
		if !m.Trained() {
			return false
		}
	}
	return true
}

func (e *DeepEnsemble) logger() *logrus.Logger {
	if e.log != nil {
		return e.log
	}
	return logrus.StandardLogger()
}

// FitOutcome reports what a fit call actually did.
type FitOutcome struct {
	// Retrained is set when the ensemble was already fully trained
	// and the call overwrote member weights.
	Retrained bool
}

// Fit trains every member on the same data in sequence. Refitting a
// trained ensemble is allowed; the outcome flags it and a warning is
// logged.
func (e *DeepEnsemble) Fit(X [][]float64, y []float64, opts FitOptions) (FitOutcome, error) {
	var outcome FitOutcome
	if e.Trained() {
		outcome.Retrained = true
		e.logger().Warn("ensemble already trained, overwriting member weights")
	}
	for i, m := range e.members {
		e.logger().WithFields(logrus.Fields{
			"member": i,
			"total":  len(e.members),
		}).Info("fitting ensemble member")
		if err := m.Fit(X, y, opts); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// Predict returns the member mean and epistemic standard deviation
// for each input row. An untrained ensemble predicts anyway with a
// warning; the spread is then pure initialization noise.
func (e *DeepEnsemble) Predict(X [][]float64, sequenceLength, batchSize int) (means, stds []float64, err error) {
	if !e.Trained() {
		e.logger().Warn("ensemble has untrained members, predictions are unreliable")
	}
	stack := make([][]float64, len(e.members))
	for i, m := range e.members {
		preds, err := m.predict(X, sequenceLength, batchSize)
		if err != nil {
			return nil, nil, err
		}
		stack[i] = preds
	}
	return tensor.MeanStdAcross(stack)
}
