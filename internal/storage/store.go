package storage

import (
	"context"

	"neurolab/internal/model"
)

// Store defines persistence operations for network snapshots and run history.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot model.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (model.Snapshot, bool, error)
	// ListSnapshots returns every snapshot ordered by creation time, without payloads.
	ListSnapshots(ctx context.Context) ([]model.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	// ListRuns returns every run ordered by start time.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveStepDiagnostics(ctx context.Context, runID string, diagnostics []model.StepDiagnostics) error
	GetStepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, bool, error)
}
