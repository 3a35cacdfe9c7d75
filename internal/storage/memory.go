package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"iceflow/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string]model.Checkpoint
	runs        map[string]model.TrainingRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.checkpoints = make(map[string]model.Checkpoint)
	s.runs = make(map[string]model.TrainingRun)
	return nil
}

// requireInit is called under the lock by every accessor.
func (s *MemoryStore) requireInit() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInit(); err != nil {
		return err
	}
	s.checkpoints[cp.ID] = copyCheckpoint(cp)
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, id string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireInit(); err != nil {
		return model.Checkpoint{}, false, err
	}
	cp, ok := s.checkpoints[id]
	if !ok {
		return model.Checkpoint{}, false, nil
	}
	return copyCheckpoint(cp), true, nil
}

func (s *MemoryStore) SaveTrainingRun(_ context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInit(); err != nil {
		return err
	}
	run.FlowLoss = append([]float64(nil), run.FlowLoss...)
	run.EnsembleLoss = append([]float64(nil), run.EnsembleLoss...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetTrainingRun(_ context.Context, id string) (model.TrainingRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireInit(); err != nil {
		return model.TrainingRun{}, false, err
	}
	run, ok := s.runs[id]
	if !ok {
		return model.TrainingRun{}, false, nil
	}
	run.FlowLoss = append([]float64(nil), run.FlowLoss...)
	run.EnsembleLoss = append([]float64(nil), run.EnsembleLoss...)
	return run, true, nil
}

func (s *MemoryStore) ListTrainingRuns(_ context.Context) ([]model.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireInit(); err != nil {
		return nil, err
	}
	runs := make([]model.TrainingRun, 0, len(s.runs))
	for _, run := range s.runs {
		run.FlowLoss = append([]float64(nil), run.FlowLoss...)
		run.EnsembleLoss = append([]float64(nil), run.EnsembleLoss...)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func copyCheckpoint(cp model.Checkpoint) model.Checkpoint {
	copied := cp
	copied.Tensors = make(map[string]model.Tensor, len(cp.Tensors))
	for name, t := range cp.Tensors {
		copied.Tensors[name] = model.Tensor{
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float64(nil), t.Data...),
		}
	}
	copied.Scalars = make(map[string]float64, len(cp.Scalars))
	for name, v := range cp.Scalars {
		copied.Scalars[name] = v
	}
	return copied
}
