package neurolab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"neurolab/internal/automata"
	"neurolab/internal/lab"
	"neurolab/internal/model"
	"neurolab/internal/neuro"
	"neurolab/internal/stats"
	"neurolab/internal/storage"
)

const (
	defaultArtifactsDir = "neurolab_artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "neurolab.db"
	defaultSteps        = 100
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Workers      int
	Logger       *slog.Logger
	// Registerer receives the step metrics when set.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	session *lab.Session
	opts    Options
}

type NetworkInfo struct {
	Path    string
	Size    int64
	Version automata.FileVersion
	Legacy  bool
	Live    int
	Free    int
	Edges   int
	Params  neuro.Params
	// Detail is the per-cell listing.
	Detail string
}

type RunRequest struct {
	RunID         string
	Steps         int
	SnapshotEvery int
	Params        *neuro.Params
}

type RunSummary struct {
	RunID          string
	StepsCompleted int
	Cancelled      bool
	Commits        int
	ActiveCells    int
	MeanOutput     float64
	ArtifactsDir   string
	SnapshotIDs    []string
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	if opts.StoreKind == "" {
		opts.StoreKind = "memory"
	}
	if opts.DBPath == "" && opts.StoreKind == "sqlite" {
		opts.DBPath = defaultDBPath
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = defaultArtifactsDir
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(opts.StoreKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	session, err := lab.NewSession(lab.Config{
		Store:        store,
		Logger:       opts.Logger,
		Metrics:      lab.NewMetrics(opts.Registerer),
		Workers:      opts.Workers,
		ArtifactsDir: opts.ArtifactsDir,
	})
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return &Client{store: store, session: session, opts: opts}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.session.Init(ctx)
}

// Net exposes the loaded network.
func (c *Client) Net() *neuro.Net {
	return c.session.Net()
}

// NewNetwork replaces the loaded network with an empty one, or with the
// two-input demonstration network when demo is set.
func (c *Client) NewNetwork(demo bool) error {
	n := neuro.New()
	if demo {
		n = lab.DemoNetwork()
	}
	return c.session.Replace(n, "")
}

func (c *Client) Open(path string) error {
	return c.session.Open(path)
}

func (c *Client) Save(path string) error {
	return c.session.Save(path)
}

// Inspect decodes a network file without loading it into the client.
func (c *Client) Inspect(path string) (NetworkInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return NetworkInfo{}, &neuro.IOError{Op: "open", Path: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return NetworkInfo{}, &neuro.IOError{Op: "open", Path: path, Err: err}
	}
	n, fv, err := neuro.Decode(bytes.NewReader(data))
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	st := n.Stats()
	return NetworkInfo{
		Path:    path,
		Size:    fi.Size(),
		Version: fv,
		Legacy:  fv == neuro.LegacyVersion,
		Live:    st.Live,
		Free:    st.Free,
		Edges:   st.Edges,
		Params:  n.Params(),
		Detail:  neuro.FormatNet(n),
	}, nil
}

func (c *Client) Dump(w io.Writer, reverse bool) error {
	return c.session.Net().DumpGraph(w, reverse)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	if req.Steps < 0 {
		return RunSummary{}, errors.New("steps must be > 0")
	}
	if req.SnapshotEvery < 0 {
		return RunSummary{}, errors.New("snapshot interval must be >= 0")
	}
	if req.Params != nil {
		if c.session.Running() {
			return RunSummary{}, lab.ErrRunInProgress
		}
		c.session.Net().SetParams(*req.Params)
	}

	res, err := c.session.Run(ctx, lab.RunRequest{
		RunID:         req.RunID,
		Steps:         req.Steps,
		SnapshotEvery: req.SnapshotEvery,
	})
	if err != nil && res.Record.RunID == "" {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:          res.Record.RunID,
		StepsCompleted: res.Record.StepsCompleted,
		Cancelled:      res.Record.Cancelled,
		Commits:        res.Record.CommitsTotal,
		ArtifactsDir:   res.ArtifactDir,
		SnapshotIDs:    res.Record.SnapshotIDs,
	}
	if len(res.Steps) > 0 {
		last := res.Steps[len(res.Steps)-1]
		summary.ActiveCells = last.ActiveCells
		summary.MeanOutput = last.MeanOutput
	}
	return summary, err
}

// Stop cancels a run in flight on this client.
func (c *Client) Stop() error {
	return c.session.Stop()
}

func (c *Client) Snapshot(ctx context.Context, label string) (model.Snapshot, error) {
	return c.session.Snapshot(ctx, label)
}

func (c *Client) Snapshots(ctx context.Context) ([]model.Snapshot, error) {
	return c.session.Snapshots(ctx)
}

func (c *Client) Restore(ctx context.Context, id string) error {
	return c.session.Restore(ctx, id)
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.session.Runs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) StepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, error) {
	steps, ok, err := c.session.StepDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return steps, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.opts.ExportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.opts.ArtifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.opts.ArtifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}
