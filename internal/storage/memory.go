package storage

import (
	"context"
	"errors"
	"slices"
	"sync"

	"neurolab/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]model.Snapshot
	runs        map[string]model.RunRecord
	diagnostics map[string][]model.StepDiagnostics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string]model.Snapshot)
	s.runs = make(map[string]model.RunRecord)
	s.diagnostics = make(map[string][]model.StepDiagnostics)
	return nil
}

func (s *MemoryStore) checkInit() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInit(); err != nil {
		return err
	}
	snapshot.Payload = slices.Clone(snapshot.Payload)
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkInit(); err != nil {
		return model.Snapshot{}, false, err
	}
	snapshot, ok := s.snapshots[id]
	if !ok {
		return model.Snapshot{}, false, nil
	}
	snapshot.Payload = slices.Clone(snapshot.Payload)
	return snapshot, true, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkInit(); err != nil {
		return nil, err
	}
	out := make([]model.Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		out = append(out, withoutPayload(snapshot))
	}
	sortSnapshots(out)
	return out, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInit(); err != nil {
		return err
	}
	delete(s.snapshots, id)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInit(); err != nil {
		return err
	}
	run.SnapshotIDs = slices.Clone(run.SnapshotIDs)
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkInit(); err != nil {
		return model.RunRecord{}, false, err
	}
	run, ok := s.runs[runID]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.SnapshotIDs = slices.Clone(run.SnapshotIDs)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkInit(); err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.SnapshotIDs = slices.Clone(run.SnapshotIDs)
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveStepDiagnostics(_ context.Context, runID string, diagnostics []model.StepDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInit(); err != nil {
		return err
	}
	copied := make([]model.StepDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetStepDiagnostics(_ context.Context, runID string) ([]model.StepDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkInit(); err != nil {
		return nil, false, err
	}
	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.StepDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}
