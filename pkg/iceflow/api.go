// Package iceflow is the public facade over the hybrid sea-level
// emulator: training pipelines, persisted checkpoints and training
// run records, and checkpoint-backed inference.
package iceflow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"iceflow/internal/dims"
	"iceflow/internal/ensemble"
	"iceflow/internal/flow"
	"iceflow/internal/hybrid"
	"iceflow/internal/model"
	"iceflow/internal/storage"
)

const defaultDBPath = "iceflow.db"

type Options struct {
	StoreKind string
	DBPath    string
	Log       *logrus.Logger
}

type Client struct {
	store storage.Store
	log   *logrus.Logger
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, log: opts.Log}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) logger() *logrus.Logger {
	if c.log != nil {
		return c.log
	}
	return logrus.StandardLogger()
}

type TrainRequest struct {
	Features [][]float64
	Targets  []float64

	Seed int64

	// Epochs is the shared default for both sub-models; FlowEpochs
	// and EnsembleEpochs override it individually.
	Epochs         int
	FlowEpochs     int
	EnsembleEpochs int

	EnsembleSize   int
	BatchSize      int
	SequenceLength int
}

type TrainSummary struct {
	RunID          string
	CheckpointID   string
	Retrained      bool
	FlowEpochs     int
	EnsembleEpochs int
	FinalFlowLoss  float64
	FinalEnsLoss   float64
}

// buildEmulator constructs architecturally reproducible shells: the
// same seed, feature width and ensemble size always yield the same
// layer shapes, so a persisted checkpoint can be reloaded later.
func buildEmulator(features, size int, seed int64, log *logrus.Logger) (*hybrid.Emulator, error) {
	f, err := flow.New(flow.Config{
		Features: features,
		Rand:     rand.New(rand.NewSource(seed + 1000)),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	e, err := ensemble.NewRandomDeepEnsemble(ensemble.RandomEnsembleConfig{
		InputSize: features + 1,
		Size:      size,
		Rand:      rand.New(rand.NewSource(seed + 2000)),
		Log:       log,
	})
	if err != nil {
		return nil, err
	}
	return hybrid.New(f, e, log)
}

// Train runs the full pipeline: fit the flow and ensemble on the
// supplied data, persist the combined checkpoint and record the run.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if len(req.Features) == 0 {
		return TrainSummary{}, fmt.Errorf("train requires a feature matrix")
	}
	if len(req.Targets) != len(req.Features) {
		return TrainSummary{}, fmt.Errorf("targets length %d does not match %d feature rows", len(req.Targets), len(req.Features))
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	width := len(req.Features[0])
	h, err := buildEmulator(width, req.EnsembleSize, req.Seed, c.log)
	if err != nil {
		return TrainSummary{}, err
	}

	outcome, err := h.Fit(req.Features, req.Targets, hybrid.FitOptions{
		Epochs:         req.Epochs,
		FlowEpochs:     req.FlowEpochs,
		EnsembleEpochs: req.EnsembleEpochs,
		BatchSize:      req.BatchSize,
		SequenceLength: req.SequenceLength,
	})
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	checkpointID := uuid.NewString()

	cp := h.Checkpoint(checkpointID)
	if err := c.store.SaveCheckpoint(ctx, cp); err != nil {
		return TrainSummary{}, err
	}

	flowLoss := h.Flow().LossHistory()
	var ensLoss []float64
	if members := h.Ensemble().Members(); len(members) > 0 {
		ensLoss = members[0].LossHistory()
	}

	run := model.TrainingRun{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:             runID,
		CreatedAtUTC:   time.Now().UTC().Format(time.RFC3339),
		Seed:           req.Seed,
		Samples:        len(req.Features),
		Features:       width,
		FlowEpochs:     outcome.FlowEpochs,
		EnsembleSize:   h.Ensemble().Size(),
		EnsembleEpochs: outcome.EnsembleEpochs,
		SequenceLength: h.SequenceLength(),
		BatchSize:      h.BatchSize(),
		Retrained:      outcome.Retrained,
		CheckpointID:   checkpointID,
		FlowLoss:       flowLoss,
		EnsembleLoss:   ensLoss,
	}
	if err := c.store.SaveTrainingRun(ctx, run); err != nil {
		return TrainSummary{}, err
	}

	summary := TrainSummary{
		RunID:          runID,
		CheckpointID:   checkpointID,
		Retrained:      outcome.Retrained,
		FlowEpochs:     outcome.FlowEpochs,
		EnsembleEpochs: outcome.EnsembleEpochs,
	}
	if len(flowLoss) > 0 {
		summary.FinalFlowLoss = flowLoss[len(flowLoss)-1]
	}
	if len(ensLoss) > 0 {
		summary.FinalEnsLoss = ensLoss[len(ensLoss)-1]
	}

	c.logger().WithFields(logrus.Fields{
		"run_id":        runID,
		"checkpoint_id": checkpointID,
		"samples":       run.Samples,
		"features":      run.Features,
	}).Info("training run complete")
	return summary, nil
}

type PredictRequest struct {
	RunID    string
	Features [][]float64
}

type PredictSummary struct {
	Predictions []float64
	Epistemic   []float64
	Aleatoric   []float64
}

// Predict rebuilds the emulator shells recorded by a training run,
// restores the persisted weights and runs inference.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (PredictSummary, error) {
	if req.RunID == "" {
		return PredictSummary{}, fmt.Errorf("predict requires a run id")
	}
	if len(req.Features) == 0 {
		return PredictSummary{}, fmt.Errorf("predict requires a feature matrix")
	}

	run, ok, err := c.store.GetTrainingRun(ctx, req.RunID)
	if err != nil {
		return PredictSummary{}, err
	}
	if !ok {
		return PredictSummary{}, fmt.Errorf("training run %s not found", req.RunID)
	}
	if len(req.Features[0]) != run.Features {
		return PredictSummary{}, fmt.Errorf("feature width %d does not match run's %d", len(req.Features[0]), run.Features)
	}

	cp, ok, err := c.store.GetCheckpoint(ctx, run.CheckpointID)
	if err != nil {
		return PredictSummary{}, err
	}
	if !ok {
		return PredictSummary{}, fmt.Errorf("checkpoint %s not found", run.CheckpointID)
	}

	h, err := buildEmulator(run.Features, run.EnsembleSize, run.Seed, c.log)
	if err != nil {
		return PredictSummary{}, err
	}
	if err := h.LoadCheckpoint(cp); err != nil {
		return PredictSummary{}, err
	}

	preds, epistemic, aleatoric, err := h.Forward(req.Features)
	if err != nil {
		return PredictSummary{}, err
	}
	return PredictSummary{Predictions: preds, Epistemic: epistemic, Aleatoric: aleatoric}, nil
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Seed           int64
	Samples        int
	Features       int
	FlowEpochs     int
	EnsembleSize   int
	EnsembleEpochs int
	SequenceLength int
	Retrained      bool
	CheckpointID   string
}

// Runs lists recorded training runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	runs, err := c.store.ListTrainingRuns(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]RunItem, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		items = append(items, RunItem{
			RunID:          run.ID,
			CreatedAtUTC:   run.CreatedAtUTC,
			Seed:           run.Seed,
			Samples:        run.Samples,
			Features:       run.Features,
			FlowEpochs:     run.FlowEpochs,
			EnsembleSize:   run.EnsembleSize,
			EnsembleEpochs: run.EnsembleEpochs,
			SequenceLength: run.SequenceLength,
			Retrained:      run.Retrained,
			CheckpointID:   run.CheckpointID,
		})
		if req.Limit > 0 && len(items) >= req.Limit {
			break
		}
	}
	return items, nil
}

type ProcessorTrainRequest struct {
	Grid [][]float64

	// Components picks an exact component count; VarianceFraction
	// picks the smallest count reaching that cumulative explained
	// variance. Exactly one must be set.
	Components       int
	VarianceFraction float64

	RankCap int
	Seed    int64
}

type ProcessorSummary struct {
	ScalerCheckpointID string
	PCACheckpointID    string
	Components         int
}

// TrainProcessor fits the scaler and PCA over a grid dataset and
// persists both as separate checkpoints.
func (c *Client) TrainProcessor(ctx context.Context, req ProcessorTrainRequest) (ProcessorSummary, error) {
	if len(req.Grid) == 0 {
		return ProcessorSummary{}, fmt.Errorf("processor training requires grid data")
	}
	if (req.Components > 0) == (req.VarianceFraction > 0) {
		return ProcessorSummary{}, fmt.Errorf("set exactly one of components and variance fraction")
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	scaler := dims.NewStandardScaler()
	if err := scaler.Fit(req.Grid); err != nil {
		return ProcessorSummary{}, err
	}
	scaled, err := scaler.Transform(req.Grid)
	if err != nil {
		return ProcessorSummary{}, err
	}

	count := dims.Exact(req.Components)
	if req.VarianceFraction > 0 {
		count = dims.ExplainedVariance(req.VarianceFraction)
	}
	pca := dims.NewPCA(count)
	pca.RankCap = req.RankCap
	pca.Rand = rand.New(rand.NewSource(req.Seed))
	if err := pca.Fit(scaled); err != nil {
		return ProcessorSummary{}, err
	}

	scalerCP, err := scaler.Checkpoint()
	if err != nil {
		return ProcessorSummary{}, err
	}
	scalerCP.ID = uuid.NewString()
	if err := c.store.SaveCheckpoint(ctx, scalerCP); err != nil {
		return ProcessorSummary{}, err
	}

	pcaCP, err := pca.Checkpoint()
	if err != nil {
		return ProcessorSummary{}, err
	}
	pcaCP.ID = uuid.NewString()
	if err := c.store.SaveCheckpoint(ctx, pcaCP); err != nil {
		return ProcessorSummary{}, err
	}

	return ProcessorSummary{
		ScalerCheckpointID: scalerCP.ID,
		PCACheckpointID:    pcaCP.ID,
		Components:         pca.NComponents,
	}, nil
}

type ProjectRequest struct {
	ScalerCheckpointID string
	PCACheckpointID    string
	Data               [][]float64
}

// Project maps raw grid rows into the low-dimensional PCA space via
// a processor restored from persisted checkpoints.
func (c *Client) Project(ctx context.Context, req ProjectRequest) ([][]float64, error) {
	proc, err := c.loadProcessor(ctx, req.ScalerCheckpointID, req.PCACheckpointID)
	if err != nil {
		return nil, err
	}
	return proc.ToPCA(req.Data)
}

type ReconstructRequest struct {
	ScalerCheckpointID string
	PCACheckpointID    string
	PCs                [][]float64
	Unscale            bool
}

// Reconstruct maps PCA-space rows back to the grid space, optionally
// undoing the standardization as well.
func (c *Client) Reconstruct(ctx context.Context, req ReconstructRequest) ([][]float64, error) {
	proc, err := c.loadProcessor(ctx, req.ScalerCheckpointID, req.PCACheckpointID)
	if err != nil {
		return nil, err
	}
	return proc.ToGrid(req.PCs, req.Unscale)
}

func (c *Client) loadProcessor(ctx context.Context, scalerID, pcaID string) (*dims.DimensionProcessor, error) {
	scalerCP, ok, err := c.store.GetCheckpoint(ctx, scalerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("checkpoint %s not found", scalerID)
	}
	pcaCP, ok, err := c.store.GetCheckpoint(ctx, pcaID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("checkpoint %s not found", pcaID)
	}

	scaler, err := dims.ScalerFromCheckpoint(scalerCP)
	if err != nil {
		return nil, err
	}
	pca, err := dims.PCAFromCheckpoint(pcaCP)
	if err != nil {
		return nil, err
	}
	return dims.NewDimensionProcessor(dims.ScalerFromInstance(scaler), dims.PCAFromInstance(pca))
}
