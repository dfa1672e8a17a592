package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Dynamics mirrors the network-wide dynamics parameters in persisted records.
type Dynamics struct {
	Decay          float64 `json:"decay"`
	LinkLearnRate  float64 `json:"link_learn_rate"`
	NodeLearnRate  float64 `json:"node_learn_rate"`
	NodeForgetRate float64 `json:"node_forget_rate"`
	LearnTime      float64 `json:"learn_time"`
}

// Snapshot is a network binary image stored alongside descriptive metadata.
type Snapshot struct {
	VersionedRecord
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	RunID     string    `json:"run_id,omitempty"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`
	Cells     int       `json:"cells"`
	Edges     int       `json:"edges"`
	Dynamics  Dynamics  `json:"dynamics"`
	Payload   []byte    `json:"payload"`
}

// RunRecord describes one multi-step run of a network.
type RunRecord struct {
	VersionedRecord
	RunID          string    `json:"run_id"`
	NetworkPath    string    `json:"network_path,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	StepsRequested int       `json:"steps_requested"`
	StepsCompleted int       `json:"steps_completed"`
	Cancelled      bool      `json:"cancelled"`
	Workers        int       `json:"workers"`
	Dynamics       Dynamics  `json:"dynamics"`
	LiveCells      int       `json:"live_cells"`
	Edges          int       `json:"edges"`
	CommitsTotal   int       `json:"commits_total"`
	SnapshotIDs    []string  `json:"snapshot_ids,omitempty"`
}

// StepDiagnostics summarizes the network after one completed step.
type StepDiagnostics struct {
	Step        int           `json:"step"`
	LiveCells   int           `json:"live_cells"`
	ActiveCells int           `json:"active_cells"`
	Commits     int           `json:"commits"`
	MeanOutput  float64       `json:"mean_output"`
	Duration    time.Duration `json:"duration_ns"`
}
