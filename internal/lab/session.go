// Package lab orchestrates one network: loading and saving it, running steps
// with cancellation, snapshots and run history.
package lab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"neurolab/internal/logging"
	"neurolab/internal/model"
	"neurolab/internal/neuro"
	"neurolab/internal/stats"
	"neurolab/internal/storage"
)

var (
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrNoRun         = errors.New("no run in progress")
	ErrNoPath        = errors.New("network has no file path")
)

type Config struct {
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *Metrics
	// Workers bounds step parallelism. Zero selects GOMAXPROCS.
	Workers int
	// ArtifactsDir, when set, receives run.json, steps.csv, summary.json and
	// network.dot for every run.
	ArtifactsDir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session owns one network. Runs are serialized; topology changes and file
// operations are rejected while a run is in flight.
type Session struct {
	store        storage.Store
	logger       *slog.Logger
	metrics      *Metrics
	workers      int
	artifactsDir string
	now          func() time.Time

	mu      sync.Mutex
	net     *neuro.Net
	path    string
	running bool
	runID   string
	cancel  context.CancelFunc
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be non-negative, got %d", cfg.Workers)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		store:        cfg.Store,
		logger:       logging.OrDiscard(cfg.Logger).With("session", uuid.NewString()),
		metrics:      metrics,
		workers:      cfg.Workers,
		artifactsDir: cfg.ArtifactsDir,
		now:          now,
	}
	s.setNet(neuro.New(), "")
	return s, nil
}

func (s *Session) Init(ctx context.Context) error {
	return s.store.Init(ctx)
}

func (s *Session) setNet(n *neuro.Net, path string) {
	n.SetWorkers(s.workers)
	s.net = n
	s.path = path
	s.metrics.LiveCells.Set(float64(n.LiveCount()))
}

// Net returns the session network. It must not be mutated while Running.
func (s *Session) Net() *neuro.Net {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net
}

func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Replace installs n as the session network.
func (s *Session) Replace(n *neuro.Net, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.setNet(n, path)
	return nil
}

// Open loads a network file. The current network is kept if loading fails.
func (s *Session) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}

	n, err := neuro.OpenFile(path)
	if err != nil {
		s.logger.Warn("open network failed", "path", path, "err", err)
		return err
	}
	s.setNet(n, path)
	s.logger.Info("network opened", "path", path, "cells", n.LiveCount(), "edges", n.EdgeCount())
	return nil
}

// Save writes the network to path, or to the path it was opened from when
// path is empty.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	if path == "" {
		path = s.path
	}
	if path == "" {
		return ErrNoPath
	}

	if err := s.net.SaveFile(path); err != nil {
		s.logger.Warn("save network failed", "path", path, "err", err)
		return err
	}
	s.path = path
	s.logger.Info("network saved", "path", path)
	return nil
}

type RunRequest struct {
	// RunID defaults to a fresh UUID.
	RunID string
	Steps int
	// SnapshotEvery stores a snapshot after every n completed steps when positive.
	SnapshotEvery int
}

type RunResult struct {
	Record      model.RunRecord
	Steps       []model.StepDiagnostics
	ArtifactDir string
}

// Run steps the network until req.Steps steps complete, ctx is cancelled or
// Stop is called. Cancellation is observed between steps, so a stopped run
// leaves the network at a step boundary and still returns its record with a
// nil error.
func (s *Session) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if req.Steps < 0 {
		return RunResult{}, fmt.Errorf("steps must be non-negative, got %d", req.Steps)
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return RunResult{}, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.runID = req.RunID
	s.cancel = cancel
	n := s.net
	path := s.path
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.runID = ""
		s.cancel = nil
		s.mu.Unlock()
	}()

	logger := s.logger.With("run_id", req.RunID)
	logger.Info("run started", "steps", req.Steps, "workers", n.Workers())

	// Persistence outlives cancellation of the run itself.
	persistCtx := context.WithoutCancel(ctx)
	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           req.RunID,
		NetworkPath:     path,
		StartedAt:       s.now().UTC(),
		StepsRequested:  req.Steps,
		Workers:         n.Workers(),
		Dynamics:        toDynamics(n.Params()),
	}

	var (
		diagnostics = make([]model.StepDiagnostics, 0, req.Steps)
		snapErr     error
		last        = time.Now()
	)
	completed, err := n.RunFunc(runCtx, req.Steps, func(step, commits int) {
		elapsed := time.Since(last)
		st := n.Stats()
		diagnostics = append(diagnostics, model.StepDiagnostics{
			Step:        step,
			LiveCells:   st.Live,
			ActiveCells: st.Active,
			Commits:     commits,
			MeanOutput:  st.MeanOutput,
			Duration:    elapsed,
		})
		record.CommitsTotal += commits
		s.metrics.Steps.Inc()
		s.metrics.Commits.Add(float64(commits))
		s.metrics.StepDuration.Observe(elapsed.Seconds())

		if req.SnapshotEvery > 0 && step%req.SnapshotEvery == 0 && snapErr == nil {
			snap, err := s.snapshot(persistCtx, n, fmt.Sprintf("%s step %d", req.RunID, step), req.RunID, step)
			if err != nil {
				snapErr = err
				return
			}
			record.SnapshotIDs = append(record.SnapshotIDs, snap.ID)
		}
		last = time.Now()
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return RunResult{}, err
	}
	record.Cancelled = err != nil
	record.StepsCompleted = completed
	record.FinishedAt = s.now().UTC()
	record.LiveCells = n.LiveCount()
	record.Edges = n.EdgeCount()
	s.metrics.LiveCells.Set(float64(record.LiveCells))

	if record.Cancelled {
		logger.Info("run cancelled", "steps", completed, "err", err)
	} else {
		logger.Info("run finished", "steps", completed, "commits", record.CommitsTotal)
	}

	if err := s.store.SaveRun(persistCtx, record); err != nil {
		return RunResult{}, fmt.Errorf("save run %s: %w", req.RunID, err)
	}
	if err := s.store.SaveStepDiagnostics(persistCtx, req.RunID, diagnostics); err != nil {
		return RunResult{}, fmt.Errorf("save step diagnostics %s: %w", req.RunID, err)
	}

	result := RunResult{Record: record, Steps: diagnostics}
	if s.artifactsDir != "" {
		dir, err := s.writeArtifacts(n, record, diagnostics)
		if err != nil {
			return result, fmt.Errorf("write run artifacts %s: %w", req.RunID, err)
		}
		result.ArtifactDir = dir
	}
	if snapErr != nil {
		return result, fmt.Errorf("snapshot during run %s: %w", req.RunID, snapErr)
	}
	return result, nil
}

// Stop cancels the run in flight. The run ends after its current step.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNoRun
	}
	s.cancel()
	s.logger.Info("run stop requested", "run_id", s.runID)
	return nil
}

func (s *Session) writeArtifacts(n *neuro.Net, record model.RunRecord, diagnostics []model.StepDiagnostics) (string, error) {
	dir, err := stats.WriteRunArtifacts(s.artifactsDir, stats.RunArtifacts{Run: record, Steps: diagnostics})
	if err != nil {
		return "", err
	}

	var dot bytes.Buffer
	if err := n.DumpGraph(&dot, false); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, stats.GraphFile), dot.Bytes(), 0o644); err != nil {
		return "", err
	}

	err = stats.AppendRunIndex(s.artifactsDir, stats.RunIndexEntry{
		RunID:          record.RunID,
		NetworkPath:    record.NetworkPath,
		StepsCompleted: record.StepsCompleted,
		Cancelled:      record.Cancelled,
		Workers:        record.Workers,
		LiveCells:      record.LiveCells,
		CreatedAtUTC:   record.StartedAt.Format(time.RFC3339Nano),
	})
	return dir, err
}

// Snapshot stores the current network encoding under a fresh id.
func (s *Session) Snapshot(ctx context.Context, label string) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return model.Snapshot{}, ErrRunInProgress
	}
	return s.snapshot(ctx, s.net, label, "", 0)
}

func (s *Session) snapshot(ctx context.Context, n *neuro.Net, label, runID string, step int) (model.Snapshot, error) {
	var buf bytes.Buffer
	if err := n.WriteBinary(&buf); err != nil {
		return model.Snapshot{}, err
	}
	snap := model.Snapshot{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Label:           label,
		RunID:           runID,
		Step:            step,
		CreatedAt:       s.now().UTC(),
		Cells:           n.LiveCount(),
		Edges:           n.EdgeCount(),
		Dynamics:        toDynamics(n.Params()),
		Payload:         buf.Bytes(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "snapshot_id", snap.ID, "run_id", runID, "steps", step, "bytes", len(snap.Payload))
	return snap, nil
}

// Snapshots lists stored snapshots without their payloads.
func (s *Session) Snapshots(ctx context.Context) ([]model.Snapshot, error) {
	return s.store.ListSnapshots(ctx)
}

// Restore replaces the network with a stored snapshot. The current network
// is kept unless the snapshot decodes completely.
func (s *Session) Restore(ctx context.Context, id string) error {
	snap, ok, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot not found: %s", id)
	}

	n, err := neuro.ReadNet(bytes.NewReader(snap.Payload))
	if err != nil {
		s.logger.Warn("restore snapshot failed", "snapshot_id", id, "err", err)
		return fmt.Errorf("restore snapshot %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.setNet(n, s.path)
	s.logger.Info("snapshot restored", "snapshot_id", id, "cells", n.LiveCount())
	return nil
}

func (s *Session) Runs(ctx context.Context) ([]model.RunRecord, error) {
	return s.store.ListRuns(ctx)
}

func (s *Session) StepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, bool, error) {
	return s.store.GetStepDiagnostics(ctx, runID)
}

func toDynamics(p neuro.Params) model.Dynamics {
	return model.Dynamics{
		Decay:          float64(p.Decay),
		LinkLearnRate:  float64(p.LinkLearnRate),
		NodeLearnRate:  float64(p.NodeLearnRate),
		NodeForgetRate: float64(p.NodeForgetRate),
		LearnTime:      float64(p.LearnTime),
	}
}
