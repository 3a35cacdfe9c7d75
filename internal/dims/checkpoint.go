package dims

import (
	"encoding/json"
	"fmt"
	"os"

	"iceflow/internal/errs"
	"iceflow/internal/model"
	"iceflow/internal/storage"
)

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}

func vectorTensor(v []float64) model.Tensor {
	return model.Tensor{
		Shape: []int{len(v)},
		Data:  append([]float64(nil), v...),
	}
}

func requireVector(cp model.Checkpoint, name string) ([]float64, error) {
	t, ok := cp.Tensors[name]
	if !ok {
		return nil, errs.CorruptArtifactf("missing tensor %s", name)
	}
	if len(t.Shape) != 1 || t.Shape[0] != len(t.Data) {
		return nil, errs.CorruptArtifactf("tensor %s is not a well-formed vector", name)
	}
	return append([]float64(nil), t.Data...), nil
}

// WriteCheckpointFile persists a checkpoint as a standalone JSON
// artifact, for use outside a Store.
func WriteCheckpointFile(path string, cp model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadCheckpointFile loads a standalone checkpoint artifact.
func ReadCheckpointFile(path string) (model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Checkpoint{}, err
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, errs.CorruptArtifactf("decode %s: %v", path, err)
	}
	if cp.SchemaVersion != storage.CurrentSchemaVersion || cp.CodecVersion != storage.CurrentCodecVersion {
		return model.Checkpoint{}, fmt.Errorf("%s: %w", path, storage.ErrVersionMismatch)
	}
	return cp, nil
}
