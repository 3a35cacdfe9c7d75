package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Tensor is a dense row-major numeric array inside a checkpoint.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint is one persisted model artifact: a named bag of tensors
// plus scalar metadata. Kind identifies the producing model family
// ("pca", "scaler", "hybrid").
type Checkpoint struct {
	VersionedRecord
	ID      string             `json:"id"`
	Kind    string             `json:"kind"`
	Tensors map[string]Tensor  `json:"tensors"`
	Scalars map[string]float64 `json:"scalars"`
}

// TrainingRun records one completed training pipeline invocation.
type TrainingRun struct {
	VersionedRecord
	ID             string    `json:"id"`
	CreatedAtUTC   string    `json:"created_at_utc"`
	Seed           int64     `json:"seed"`
	Samples        int       `json:"samples"`
	Features       int       `json:"features"`
	FlowEpochs     int       `json:"flow_epochs"`
	EnsembleSize   int       `json:"ensemble_size"`
	EnsembleEpochs int       `json:"ensemble_epochs"`
	SequenceLength int       `json:"sequence_length"`
	BatchSize      int       `json:"batch_size"`
	Retrained      bool      `json:"retrained"`
	CheckpointID   string    `json:"checkpoint_id"`
	FlowLoss       []float64 `json:"flow_loss"`
	EnsembleLoss   []float64 `json:"ensemble_loss"`
}

// NumElements returns the element count implied by the tensor shape.
func (t Tensor) NumElements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}
