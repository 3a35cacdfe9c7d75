package hybrid

import (
	"strconv"

	"iceflow/internal/errs"
	"iceflow/internal/model"
	"iceflow/internal/nn"
	"iceflow/internal/storage"
)

func flowTensorName(param string) string {
	return "flow." + param
}

func memberTensorName(i int, param string) string {
	return "member." + strconv.Itoa(i) + "." + param
}

// Checkpoint serializes the combined weights of both sub-models.
// Restoring requires architecturally matching shells; only weights
// and counts are persisted, never the architecture itself.
func (h *Emulator) Checkpoint(id string) model.Checkpoint {
	tensors := make(map[string]model.Tensor)
	for _, p := range h.flow.Params() {
		tensors[flowTensorName(p.Name)] = weightTensor(p)
	}
	for i, m := range h.ensemble.Members() {
		for _, p := range m.Params() {
			tensors[memberTensorName(i, p.Name)] = weightTensor(p)
		}
	}
	return model.Checkpoint{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:      id,
		Kind:    "hybrid",
		Tensors: tensors,
		Scalars: map[string]float64{
			"members":         float64(h.ensemble.Size()),
			"features":        float64(h.flow.Features()),
			"sequence_length": float64(h.seqLen),
			"batch_size":      float64(h.batchSize),
		},
	}
}

func weightTensor(p *nn.Param) model.Tensor {
	return model.Tensor{
		Shape: []int{len(p.Value)},
		Data:  append([]float64(nil), p.Value...),
	}
}

// LoadCheckpoint restores persisted weights into this emulator's
// sub-models and marks them trained. The emulator must have been
// constructed with the same architecture that produced the
// checkpoint.
func (h *Emulator) LoadCheckpoint(cp model.Checkpoint) error {
	if cp.Kind != "hybrid" {
		return errs.InvalidArgumentf("checkpoint kind %q is not a hybrid artifact", cp.Kind)
	}
	members, ok := cp.Scalars["members"]
	if !ok {
		return errs.CorruptArtifactf("missing scalar members")
	}
	features, ok := cp.Scalars["features"]
	if !ok {
		return errs.CorruptArtifactf("missing scalar features")
	}
	if int(members) != h.ensemble.Size() {
		return errs.InvalidArgumentf("checkpoint holds %d members, ensemble has %d", int(members), h.ensemble.Size())
	}
	if int(features) != h.flow.Features() {
		return errs.InvalidArgumentf("checkpoint expects %d features, flow has %d", int(features), h.flow.Features())
	}
	seqLen, ok := cp.Scalars["sequence_length"]
	if !ok {
		return errs.CorruptArtifactf("missing scalar sequence_length")
	}
	batchSize, ok := cp.Scalars["batch_size"]
	if !ok {
		return errs.CorruptArtifactf("missing scalar batch_size")
	}

	for _, p := range h.flow.Params() {
		if err := restoreWeights(cp, flowTensorName(p.Name), p); err != nil {
			return err
		}
	}
	for i, m := range h.ensemble.Members() {
		for _, p := range m.Params() {
			if err := restoreWeights(cp, memberTensorName(i, p.Name), p); err != nil {
				return err
			}
		}
		m.MarkTrained()
	}
	h.flow.MarkTrained()
	h.seqLen = int(seqLen)
	h.batchSize = int(batchSize)
	return nil
}

func restoreWeights(cp model.Checkpoint, name string, p *nn.Param) error {
	t, ok := cp.Tensors[name]
	if !ok {
		return errs.CorruptArtifactf("missing tensor %s", name)
	}
	if len(t.Shape) != 1 || t.Shape[0] != len(t.Data) {
		return errs.CorruptArtifactf("tensor %s is not a well-formed vector", name)
	}
	if len(t.Data) != len(p.Value) {
		return errs.InvalidArgumentf("tensor %s holds %d weights, shell expects %d", name, len(t.Data), len(p.Value))
	}
	copy(p.Value, t.Data)
	return nil
}
