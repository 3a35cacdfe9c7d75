// Package ensemble implements the recurrent weak predictor and the
// deep ensemble that fuses independently initialized members into a
// point estimate with an epistemic spread.
package ensemble

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"iceflow/internal/dataset"
	"iceflow/internal/errs"
	"iceflow/internal/nn"
)

const (
	defaultEpochs         = 100
	defaultSequenceLength = 5
	defaultBatchSize      = 64
	headWidth             = 32
)

// WeakPredictorConfig sizes one member network. InputSize is
// required; everything else has defaults.
type WeakPredictorConfig struct {
	// InputSize is the forcing feature width baked into the input
	// layer; it cannot change post-construction.
	InputSize int

	// LSTMLayers is the recurrent depth (default 1).
	LSTMLayers int

	// HiddenSize is the recurrent width (default 64).
	HiddenSize int

	// LearningRate for the owned Adam optimizer (default 1e-3).
	LearningRate float64

	// Loss is the training criterion (default MSE).
	Loss nn.Loss

	// Rand seeds weight init and epoch shuffling. Nil uses a
	// time-seeded source.
	Rand *rand.Rand

	// Log receives per-epoch training losses. Nil uses the standard
	// logger.
	Log *logrus.Logger
}

// WeakPredictor is a sequence-to-scalar regressor: stacked LSTM over
// a forcing window, final-step hidden state through a two-layer head.
type WeakPredictor struct {
	inputSize  int
	hiddenSize int
	numLayers  int

	lstm    *nn.LSTMStack
	hidden  *nn.Linear
	out     *nn.Linear
	opt     *nn.Adam
	loss    nn.Loss
	rng     *rand.Rand
	log     *logrus.Logger
	trained bool

	lossHistory []float64
}

// NewWeakPredictor builds and initializes the network.
func NewWeakPredictor(cfg WeakPredictorConfig) (*WeakPredictor, error) {
	if cfg.InputSize <= 0 {
		return nil, errs.InvalidArgumentf("weak predictor input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.LSTMLayers == 0 {
		cfg.LSTMLayers = 1
	}
	if cfg.LSTMLayers < 0 {
		return nil, errs.InvalidArgumentf("lstm layers must be positive, got %d", cfg.LSTMLayers)
	}
	if cfg.HiddenSize == 0 {
		cfg.HiddenSize = 64
	}
	if cfg.HiddenSize < 0 {
		return nil, errs.InvalidArgumentf("hidden size must be positive, got %d", cfg.HiddenSize)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	loss := cfg.Loss
	if loss == nil {
		loss = nn.MSE{}
	}

	w := &WeakPredictor{
		inputSize:  cfg.InputSize,
		hiddenSize: cfg.HiddenSize,
		numLayers:  cfg.LSTMLayers,
		lstm:       nn.NewLSTMStack("lstm", cfg.InputSize, cfg.HiddenSize, cfg.LSTMLayers, rng),
		hidden:     nn.NewLinear("head.hidden", cfg.HiddenSize, headWidth, rng),
		out:        nn.NewLinear("head.out", headWidth, 1, rng),
		loss:       loss,
		rng:        rng,
		log:        cfg.Log,
	}
	w.opt = nn.NewAdam(w.params(), cfg.LearningRate)
	return w, nil
}

func (w *WeakPredictor) params() []*nn.Param {
	params := w.lstm.Params()
	params = append(params, w.hidden.Params()...)
	params = append(params, w.out.Params()...)
	return params
}

// Params exposes the named weight tensors for checkpointing. Callers
// must not mutate them outside a checkpoint restore.
func (w *WeakPredictor) Params() []*nn.Param {
	return w.params()
}

// MarkTrained flags the predictor as fit. Used when restoring weights
// from a checkpoint.
func (w *WeakPredictor) MarkTrained() { w.trained = true }

func (w *WeakPredictor) Trained() bool { return w.trained }

func (w *WeakPredictor) InputSize() int { return w.inputSize }

func (w *WeakPredictor) HiddenSize() int { return w.hiddenSize }

func (w *WeakPredictor) Layers() int { return w.numLayers }

// LossHistory returns the average batch loss per epoch of the most
// recent Fit.
func (w *WeakPredictor) LossHistory() []float64 {
	return append([]float64(nil), w.lossHistory...)
}

func (w *WeakPredictor) logger() *logrus.Logger {
	if w.log != nil {
		return w.log
	}
	return logrus.StandardLogger()
}

// FitOptions carries the optional training knobs for one Fit call.
type FitOptions struct {
	Epochs         int
	SequenceLength int
	BatchSize      int
	// Loss overrides the constructor criterion for this and later
	// calls.
	Loss nn.Loss
	// ValX/ValY enable a per-epoch held-out loss.
	ValX [][]float64
	ValY []float64
}

func (o *FitOptions) defaults() {
	if o.Epochs <= 0 {
		o.Epochs = defaultEpochs
	}
	if o.SequenceLength <= 0 {
		o.SequenceLength = defaultSequenceLength
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
}

// Fit trains on sliding windows of X against y. Re-fit overwrites
// weights; the ensemble layer owns the warn-on-retrain policy.
func (w *WeakPredictor) Fit(X [][]float64, y []float64, opts FitOptions) error {
	opts.defaults()
	if opts.Loss != nil {
		w.loss = opts.Loss
	}
	if w.loss == nil {
		return errs.InvalidArgumentf("no loss criterion resolvable")
	}
	if y == nil {
		return errs.InvalidArgumentf("fit requires labels")
	}
	if (opts.ValX == nil) != (opts.ValY == nil) {
		return errs.InvalidArgumentf("validation features and labels must be supplied together")
	}

	ds, err := dataset.NewSequenceDataset(X, y, opts.SequenceLength)
	if err != nil {
		return err
	}
	if ds.Width() != w.inputSize {
		return errs.InvalidArgumentf("input width %d, network expects %d", ds.Width(), w.inputSize)
	}
	loader, err := dataset.NewLoader(ds.Len(), opts.BatchSize, w.rng)
	if err != nil {
		return err
	}

	validate := opts.ValX != nil && opts.ValY != nil

	w.lossHistory = make([]float64, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		var epochLoss float64
		var batches int
		for _, indices := range loader.Batches() {
			windows, labels, err := ds.Batch(indices)
			if err != nil {
				return err
			}
			epochLoss += w.trainBatch(windows, labels)
			batches++
		}
		avg := epochLoss / float64(batches)
		w.lossHistory = append(w.lossHistory, avg)

		fields := logrus.Fields{"epoch": epoch, "loss": avg}
		if validate {
			valLoss, err := w.validationLoss(opts)
			if err != nil {
				return err
			}
			fields["val_loss"] = valLoss
		}
		w.logger().WithFields(fields).Info("weak predictor epoch")
	}

	w.trained = true
	return nil
}

// trainBatch accumulates gradients over the batch, averages them and
// applies one Adam step. Returns the average example loss.
func (w *WeakPredictor) trainBatch(windows [][][]float64, labels []float64) float64 {
	w.opt.ZeroGrad()
	var total float64
	for i, window := range windows {
		pred, caches, lastHidden, preHead, actHead := w.forwardCached(window)
		total += w.loss.Value(pred, labels[i])

		dPred := w.loss.Grad(pred, labels[i])
		dAct := w.out.Backward(actHead, []float64{dPred})
		for j := range dAct {
			dAct[j] *= nn.ReLUDeriv(preHead[j])
		}
		dLast := w.hidden.Backward(lastHidden, dAct)
		w.lstm.Backward(caches, dLast)
	}
	nn.ScaleGrads(w.params(), 1/float64(len(windows)))
	w.opt.Step()
	return total / float64(len(windows))
}

func (w *WeakPredictor) validationLoss(opts FitOptions) (float64, error) {
	preds, err := w.predict(opts.ValX, opts.SequenceLength, opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(preds) != len(opts.ValY) {
		return 0, errs.InvalidArgumentf("validation labels length %d does not match %d predictions", len(opts.ValY), len(preds))
	}
	var total float64
	for i, p := range preds {
		total += w.loss.Value(p, opts.ValY[i])
	}
	return total / float64(len(preds)), nil
}

// forwardCached runs one window and keeps the intermediates needed by
// the backward pass. Hidden state starts at zero; only the final
// timestep feeds the head.
func (w *WeakPredictor) forwardCached(window [][]float64) (pred float64, caches []*nn.LSTMCache, lastHidden, preHead, actHead []float64) {
	lastHidden, caches = w.lstm.Forward(window)
	preHead = w.hidden.Forward(lastHidden)
	actHead = make([]float64, len(preHead))
	copy(actHead, preHead)
	nn.ReLUVec(actHead)
	out := w.out.Forward(actHead)
	return out[0], caches, lastHidden, preHead, actHead
}

// Predict returns one prediction per input row, in input order.
// Requires a prior Fit.
func (w *WeakPredictor) Predict(X [][]float64, sequenceLength, batchSize int) ([]float64, error) {
	if !w.trained {
		return nil, errs.NotFittedf("weak predictor has not been fit")
	}
	return w.predict(X, sequenceLength, batchSize)
}

// predict skips the trained guard; the ensemble warns instead of
// blocking and reaches members through this path.
func (w *WeakPredictor) predict(X [][]float64, sequenceLength, batchSize int) ([]float64, error) {
	if sequenceLength <= 0 {
		sequenceLength = defaultSequenceLength
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	ds, err := dataset.NewSequenceDataset(X, nil, sequenceLength)
	if err != nil {
		return nil, err
	}
	if ds.Width() != w.inputSize {
		return nil, errs.InvalidArgumentf("input width %d, network expects %d", ds.Width(), w.inputSize)
	}
	loader, err := dataset.NewLoader(ds.Len(), batchSize, nil)
	if err != nil {
		return nil, err
	}

	preds := make([]float64, 0, ds.Len())
	for _, indices := range loader.Batches() {
		windows, _, err := ds.Batch(indices)
		if err != nil {
			return nil, err
		}
		for _, window := range windows {
			pred, _, _, _, _ := w.forwardCached(window)
			preds = append(preds, pred)
		}
	}
	return preds, nil
}
