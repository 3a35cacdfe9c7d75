package storage

import (
	"context"

	"iceflow/internal/model"
)

// Store defines persistence operations for emulator artifacts:
// model checkpoints and the training runs that produced them.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (model.Checkpoint, bool, error)
	SaveTrainingRun(ctx context.Context, run model.TrainingRun) error
	GetTrainingRun(ctx context.Context, id string) (model.TrainingRun, bool, error)
	ListTrainingRuns(ctx context.Context) ([]model.TrainingRun, error)
}
