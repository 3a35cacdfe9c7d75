// Package hybrid orchestrates the two-stage emulator: a conditional
// normalizing flow fit on (features, target) and a deep ensemble fit
// on the features augmented with the flow's latent code. Inference
// returns a point estimate plus decomposed uncertainty.
package hybrid

import (
	"github.com/sirupsen/logrus"

	"iceflow/internal/ensemble"
	"iceflow/internal/errs"
	"iceflow/internal/flow"
	"iceflow/internal/tensor"
)

// aleatoricDraws is the sample count behind the aleatoric spread
// reported by Forward.
const aleatoricDraws = 100

// Emulator owns exactly one flow and one ensemble. The flow trains
// first; the ensemble only ever sees features concatenated with the
// flow's latent code.
type Emulator struct {
	flow     *flow.Flow
	ensemble *ensemble.DeepEnsemble
	log      *logrus.Logger

	// latentConstant is the value pushed through the transform stack
	// to derive the per-sample latent code.
	latentConstant float64

	// seqLen and batchSize are the windowing knobs the ensemble was
	// fit with; Forward must window the same way. Zero means the
	// ensemble defaults.
	seqLen    int
	batchSize int
}

// New wires an already-constructed flow and ensemble. The ensemble
// input width must equal the flow's feature width plus the one-column
// latent code.
func New(f *flow.Flow, e *ensemble.DeepEnsemble, log *logrus.Logger) (*Emulator, error) {
	if f == nil {
		return nil, errs.InvalidArgumentf("hybrid emulator requires a normalizing flow")
	}
	if e == nil {
		return nil, errs.InvalidArgumentf("hybrid emulator requires a deep ensemble")
	}
	if e.InputSize() != f.Features()+1 {
		return nil, errs.InvalidArgumentf("ensemble input width %d does not fit %d features plus latent code",
			e.InputSize(), f.Features())
	}
	return &Emulator{flow: f, ensemble: e, log: log}, nil
}

func (h *Emulator) Flow() *flow.Flow { return h.flow }

func (h *Emulator) Ensemble() *ensemble.DeepEnsemble { return h.ensemble }

// SequenceLength reports the window length recorded at fit time.
func (h *Emulator) SequenceLength() int { return h.seqLen }

// BatchSize reports the batch size recorded at fit time.
func (h *Emulator) BatchSize() int { return h.batchSize }

// Trained reports whether both sub-models have been fit.
func (h *Emulator) Trained() bool {
	return h.flow.Trained() && h.ensemble.Trained()
}

func (h *Emulator) logger() *logrus.Logger {
	if h.log != nil {
		return h.log
	}
	return logrus.StandardLogger()
}

// augment concatenates the raw features with the latent code the
// fitted flow induces for them.
func (h *Emulator) augment(X [][]float64) ([][]float64, error) {
	latent, err := h.flow.Latent(X, h.latentConstant)
	if err != nil {
		return nil, err
	}
	return tensor.ConcatColumns(X, latent)
}

// FitOptions carries the training knobs for one Fit call. FlowEpochs
// and EnsembleEpochs default to Epochs when zero.
type FitOptions struct {
	Epochs         int
	FlowEpochs     int
	EnsembleEpochs int
	BatchSize      int
	SequenceLength int
}

// FitOutcome reports what a fit call actually did. A sub-model that
// was already trained is skipped, so its epoch count is zero.
type FitOutcome struct {
	// Retrained is set when the emulator was already fully trained
	// and the call had nothing to do.
	Retrained      bool
	FlowEpochs     int
	EnsembleEpochs int
}

// Fit trains the flow, derives the latent code and trains the
// ensemble on the augmented features, skipping any sub-model that is
// already trained.
func (h *Emulator) Fit(X [][]float64, y []float64, opts FitOptions) (FitOutcome, error) {
	if opts.FlowEpochs <= 0 {
		opts.FlowEpochs = opts.Epochs
	}
	if opts.EnsembleEpochs <= 0 {
		opts.EnsembleEpochs = opts.Epochs
	}

	var outcome FitOutcome
	if h.Trained() {
		outcome.Retrained = true
		h.logger().Warn("hybrid emulator already trained, nothing to fit")
	}

	if !h.flow.Trained() {
		if err := h.flow.Fit(X, y, flow.FitOptions{Epochs: opts.FlowEpochs, BatchSize: opts.BatchSize}); err != nil {
			return outcome, err
		}
		outcome.FlowEpochs = len(h.flow.LossHistory())
	}

	if !h.ensemble.Trained() {
		h.seqLen = opts.SequenceLength
		h.batchSize = opts.BatchSize
		aug, err := h.augment(X)
		if err != nil {
			return outcome, err
		}
		if _, err := h.ensemble.Fit(aug, y, ensemble.FitOptions{
			Epochs:         opts.EnsembleEpochs,
			BatchSize:      opts.BatchSize,
			SequenceLength: opts.SequenceLength,
		}); err != nil {
			return outcome, err
		}
		outcome.EnsembleEpochs = len(h.ensemble.Members()[0].LossHistory())
	}

	return outcome, nil
}

// Forward returns one (prediction, epistemic, aleatoric) triple per
// input row. An untrained emulator predicts anyway with a warning.
func (h *Emulator) Forward(X [][]float64) (preds, epistemic, aleatoric []float64, err error) {
	if !h.Trained() {
		h.logger().Warn("hybrid emulator is not fully trained, predictions are unreliable")
	}

	aug, err := h.augment(X)
	if err != nil {
		return nil, nil, nil, err
	}
	preds, epistemic, err = h.ensemble.Predict(aug, h.seqLen, h.batchSize)
	if err != nil {
		return nil, nil, nil, err
	}
	aleatoric, err = h.flow.Aleatoric(X, aleatoricDraws)
	if err != nil {
		return nil, nil, nil, err
	}
	return preds, epistemic, aleatoric, nil
}
