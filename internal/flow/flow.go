// Package flow implements a conditional normalizing flow over a
// scalar target. A stack of affine transforms, each conditioned on
// the forcing features, maps the target into the latent space of a
// diagonal Gaussian base whose parameters come from a linear context
// encoder. Training maximizes the conditional log-likelihood.
package flow

import (
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"iceflow/internal/dataset"
	"iceflow/internal/errs"
	"iceflow/internal/model"
	"iceflow/internal/nn"
	"iceflow/internal/tensor"
)

const (
	defaultDepth     = 5
	defaultEpochs    = 100
	defaultBatchSize = 64

	// targetDim is fixed: the emulated quantity is a scalar per
	// sample. The permutation half of each flow block is the identity
	// at order one, so the stack carries only the affine transforms.
	targetDim = 1
)

const log2Pi = 1.8378770664093453

// SampleFormat selects the container Sample fills.
type SampleFormat int

const (
	// SampleRows returns one slice of draws per feature row.
	SampleRows SampleFormat = iota + 1
	// SampleTensor returns a flat tensor of shape (rows, draws).
	SampleTensor
)

// Samples holds conditional draws in the requested format; only the
// field matching the format passed to Sample is populated.
type Samples struct {
	Rows   [][]float64
	Tensor model.Tensor
}

// affineLayer is one conditional transform: shift and log-scale come
// from a two-layer conditioner over the features.
type affineLayer struct {
	hidden *nn.Linear // features -> conditioner width
	out    *nn.Linear // conditioner width -> (shift, logScale)
}

// condCache keeps one layer's conditioner intermediates for backward.
type condCache struct {
	pre, act        []float64
	shift, logScale float64
	in              float64 // z entering the layer
}

func (l *affineLayer) condition(x []float64) condCache {
	pre := l.hidden.Forward(x)
	act := make([]float64, len(pre))
	copy(act, pre)
	nn.ReLUVec(act)
	out := l.out.Forward(act)
	return condCache{pre: pre, act: act, shift: out[0], logScale: out[1]}
}

// Config sizes the flow. Features is required.
type Config struct {
	// Features is the conditioning width baked into every
	// conditioner and the base encoder.
	Features int

	// Depth is the number of affine transforms (default 5).
	Depth int

	// HiddenSize is the conditioner width (default 2x the target
	// dimensionality).
	HiddenSize int

	// LearningRate for the owned Adam optimizer (default 1e-3).
	LearningRate float64

	// Rand seeds weight init, epoch shuffling and sampling. Nil uses
	// a time-seeded source.
	Rand *rand.Rand

	// Log receives per-epoch losses. Nil uses the standard logger.
	Log *logrus.Logger
}

// Flow is the conditional normalizing flow. The forward direction
// maps a target value to base-space noise; sampling inverts it.
type Flow struct {
	features int
	layers   []*affineLayer
	enc      *nn.Linear // features -> (mu, logSigma)
	opt      *nn.Adam
	rng      *rand.Rand
	log      *logrus.Logger
	trained  bool

	lossHistory []float64
}

// New builds and initializes the flow.
func New(cfg Config) (*Flow, error) {
	if cfg.Features <= 0 {
		return nil, errs.InvalidArgumentf("flow feature width must be positive, got %d", cfg.Features)
	}
	if cfg.Depth == 0 {
		cfg.Depth = defaultDepth
	}
	if cfg.Depth < 0 {
		return nil, errs.InvalidArgumentf("flow depth must be positive, got %d", cfg.Depth)
	}
	if cfg.HiddenSize == 0 {
		cfg.HiddenSize = 2 * targetDim
	}
	if cfg.HiddenSize < 0 {
		return nil, errs.InvalidArgumentf("conditioner width must be positive, got %d", cfg.HiddenSize)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	f := &Flow{
		features: cfg.Features,
		layers:   make([]*affineLayer, cfg.Depth),
		enc:      nn.NewLinear("base.encoder", cfg.Features, 2, rng),
		rng:      rng,
		log:      cfg.Log,
	}
	for i := range f.layers {
		name := "flow." + layerName(i)
		f.layers[i] = &affineLayer{
			hidden: nn.NewLinear(name+".hidden", cfg.Features, cfg.HiddenSize, rng),
			out:    nn.NewLinear(name+".out", cfg.HiddenSize, 2, rng),
		}
	}
	f.opt = nn.NewAdam(f.params(), cfg.LearningRate)
	return f, nil
}

func layerName(i int) string {
	return strconv.Itoa(i)
}

func (f *Flow) params() []*nn.Param {
	params := f.enc.Params()
	for _, l := range f.layers {
		params = append(params, l.hidden.Params()...)
		params = append(params, l.out.Params()...)
	}
	return params
}

func (f *Flow) Trained() bool { return f.trained }

// Params exposes the named weight tensors for checkpointing. Callers
// must not mutate them outside a checkpoint restore.
func (f *Flow) Params() []*nn.Param {
	return f.params()
}

// MarkTrained flags the flow as fit. Used when restoring weights from
// a checkpoint.
func (f *Flow) MarkTrained() { f.trained = true }

func (f *Flow) Features() int { return f.features }

func (f *Flow) Depth() int { return len(f.layers) }

// LossHistory returns the average negative log-likelihood per epoch
// of the most recent Fit.
func (f *Flow) LossHistory() []float64 {
	return append([]float64(nil), f.lossHistory...)
}

func (f *Flow) logger() *logrus.Logger {
	if f.log != nil {
		return f.log
	}
	return logrus.StandardLogger()
}

func (f *Flow) checkWidth(X [][]float64) error {
	if len(X) == 0 {
		return errs.InvalidArgumentf("flow requires at least one row")
	}
	for i, row := range X {
		if len(row) != f.features {
			return errs.InvalidArgumentf("row %d has width %d, flow expects %d", i, len(row), f.features)
		}
	}
	return nil
}

// forward pushes the target through the transform stack conditioned
// on x, returning base-space noise, the cached intermediates and the
// accumulated log-determinant.
func (f *Flow) forward(x []float64, y float64) (z float64, caches []condCache, logDet float64) {
	caches = make([]condCache, len(f.layers))
	z = y
	for i, l := range f.layers {
		c := l.condition(x)
		c.in = z
		z = z*math.Exp(c.logScale) + c.shift
		logDet += c.logScale
		caches[i] = c
	}
	return z, caches, logDet
}

// negLogLik is the per-sample loss given the forward pass outputs.
func negLogLik(z, mu, logSigma, logDet float64) float64 {
	u := (z - mu) * math.Exp(-logSigma)
	return 0.5*u*u + logSigma + 0.5*log2Pi - logDet
}

// backwardSample accumulates parameter gradients for one sample.
func (f *Flow) backwardSample(x []float64, z float64, caches []condCache, mu, logSigma float64) {
	sigma := math.Exp(logSigma)
	u := (z - mu) / sigma

	// base distribution terms
	dz := u / sigma
	dMu := -u / sigma
	dLogSigma := 1 - u*u
	f.enc.Backward(x, []float64{dMu, dLogSigma})

	// transform stack, top down
	for i := len(f.layers) - 1; i >= 0; i-- {
		l := f.layers[i]
		c := caches[i]
		scale := math.Exp(c.logScale)

		dShift := dz
		dLogScale := dz*c.in*scale - 1
		dz = dz * scale

		dOut := []float64{dShift, dLogScale}
		dAct := l.out.Backward(c.act, dOut)
		for j := range dAct {
			dAct[j] *= nn.ReLUDeriv(c.pre[j])
		}
		l.hidden.Backward(x, dAct)
	}
}

// FitOptions carries the optional training knobs for one Fit call.
type FitOptions struct {
	Epochs    int
	BatchSize int
}

func (o *FitOptions) defaults() {
	if o.Epochs <= 0 {
		o.Epochs = defaultEpochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
}

// Fit minimizes the conditional negative log-likelihood of y given X
// batch-by-batch. Re-fit overwrites weights.
func (f *Flow) Fit(X [][]float64, y []float64, opts FitOptions) error {
	opts.defaults()
	if err := f.checkWidth(X); err != nil {
		return err
	}
	if len(y) != len(X) {
		return errs.InvalidArgumentf("labels length %d does not match %d rows", len(y), len(X))
	}
	loader, err := dataset.NewLoader(len(X), opts.BatchSize, f.rng)
	if err != nil {
		return err
	}

	f.lossHistory = make([]float64, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		var epochLoss float64
		var batches int
		for _, indices := range loader.Batches() {
			f.opt.ZeroGrad()
			var total float64
			for _, idx := range indices {
				x := X[idx]
				z, caches, logDet := f.forward(x, y[idx])
				base := f.enc.Forward(x)
				total += negLogLik(z, base[0], base[1], logDet)
				f.backwardSample(x, z, caches, base[0], base[1])
			}
			nn.ScaleGrads(f.params(), 1/float64(len(indices)))
			f.opt.Step()
			epochLoss += total / float64(len(indices))
			batches++
		}
		avg := epochLoss / float64(batches)
		f.lossHistory = append(f.lossHistory, avg)
		f.logger().WithFields(logrus.Fields{"epoch": epoch, "nll": avg}).Info("flow epoch")
	}

	f.trained = true
	return nil
}

// sampleRow draws one conditional sample for feature row x by drawing
// base noise and inverting the transform stack.
func (f *Flow) sampleRow(x []float64, caches []condCache, mu, sigma float64) float64 {
	z := mu + sigma*f.rng.NormFloat64()
	for i := len(f.layers) - 1; i >= 0; i-- {
		c := caches[i]
		z = (z - c.shift) * math.Exp(-c.logScale)
	}
	return z
}

func (f *Flow) sampleRows(X [][]float64, num int) [][]float64 {
	rows := make([][]float64, len(X))
	for i, x := range X {
		caches := make([]condCache, len(f.layers))
		for j, l := range f.layers {
			caches[j] = l.condition(x)
		}
		base := f.enc.Forward(x)
		sigma := math.Exp(base[1])

		draws := make([]float64, num)
		for d := range draws {
			draws[d] = f.sampleRow(x, caches, base[0], sigma)
		}
		rows[i] = draws
	}
	return rows
}

// Sample draws num conditional samples per feature row from the
// fitted distribution.
func (f *Flow) Sample(X [][]float64, num int, format SampleFormat) (Samples, error) {
	if num <= 0 {
		return Samples{}, errs.InvalidArgumentf("sample count must be positive, got %d", num)
	}
	if format != SampleRows && format != SampleTensor {
		return Samples{}, errs.InvalidArgumentf("unsupported sample format %d", format)
	}
	if err := f.checkWidth(X); err != nil {
		return Samples{}, err
	}

	rows := f.sampleRows(X, num)
	if format == SampleRows {
		return Samples{Rows: rows}, nil
	}

	data := make([]float64, 0, len(rows)*num)
	for _, r := range rows {
		data = append(data, r...)
	}
	return Samples{Tensor: model.Tensor{Shape: []int{len(rows), num}, Data: data}}, nil
}

// Latent pushes latentConstant through the transform stack
// conditioned on each row, returning a one-column latent code that
// depends on the features but not on any target value.
func (f *Flow) Latent(X [][]float64, latentConstant float64) ([][]float64, error) {
	if err := f.checkWidth(X); err != nil {
		return nil, err
	}
	latent := make([][]float64, len(X))
	for i, x := range X {
		z := latentConstant
		for _, l := range f.layers {
			c := l.condition(x)
			z = z*math.Exp(c.logScale) + c.shift
		}
		latent[i] = []float64{z}
	}
	return latent, nil
}

// Aleatoric draws num conditional samples per row and returns their
// per-row standard deviation, the irreducible spread of the fitted
// predictive distribution.
func (f *Flow) Aleatoric(X [][]float64, num int) ([]float64, error) {
	if num <= 0 {
		return nil, errs.InvalidArgumentf("sample count must be positive, got %d", num)
	}
	if err := f.checkWidth(X); err != nil {
		return nil, err
	}
	rows := f.sampleRows(X, num)
	return tensor.RowPopStds(rows), nil
}
