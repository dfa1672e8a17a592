package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"neurolab/internal/model"
)

func fixturePath(name string) string {
	return filepath.Join("testdata", "fixtures", name)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestDecodeSnapshotFixture(t *testing.T) {
	snapshot, err := DecodeSnapshot(readFixture(t, "snapshot_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if snapshot.ID != "snapshot-minimal-1" || snapshot.Label != "baseline" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if !bytes.Equal(snapshot.Payload, []byte{1, 2, 3}) {
		t.Fatalf("unexpected payload: %v", snapshot.Payload)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !snapshot.CreatedAt.Equal(want) {
		t.Fatalf("unexpected created_at: %s", snapshot.CreatedAt)
	}
	if snapshot.Dynamics.LearnTime != 10 {
		t.Fatalf("unexpected dynamics: %+v", snapshot.Dynamics)
	}
}

func TestDecodeRunFixture(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.RunID != "run-minimal-1" || run.StepsCompleted != 40 || !run.Cancelled {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.SnapshotIDs) != 1 || run.SnapshotIDs[0] != "snapshot-minimal-1" {
		t.Fatalf("unexpected snapshot ids: %+v", run.SnapshotIDs)
	}
	if run.Dynamics.Decay != 0.5 {
		t.Fatalf("unexpected dynamics: %+v", run.Dynamics)
	}
}

func TestDecodeRunRejectsOldSchema(t *testing.T) {
	_, err := DecodeRun(readFixture(t, "run_v0.json"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	input := model.Snapshot{
		VersionedRecord: CurrentVersion(),
		ID:              "s1",
		Label:           "after warmup",
		Step:            12,
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		Payload:         []byte{0, 0, 0, 32, 0xff},
	}

	encoded, err := EncodeSnapshot(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSnapshot(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != input.ID || decoded.Step != input.Step || !decoded.CreatedAt.Equal(input.CreatedAt) {
		t.Fatalf("decoded snapshot mismatch: got=%+v want=%+v", decoded, input)
	}
	if !bytes.Equal(decoded.Payload, input.Payload) {
		t.Fatalf("payload mismatch: got=%v want=%v", decoded.Payload, input.Payload)
	}
}

func TestStepDiagnosticsCodecRoundTrip(t *testing.T) {
	input := []model.StepDiagnostics{
		{Step: 1, LiveCells: 3, ActiveCells: 1, Commits: 0, MeanOutput: 0.25, Duration: 1500 * time.Microsecond},
		{Step: 2, LiveCells: 3, ActiveCells: 2, Commits: 4, MeanOutput: 0.5, Duration: time.Millisecond},
	}

	encoded, err := EncodeStepDiagnostics(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeStepDiagnostics(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(input) || decoded[1] != input[1] || decoded[0].Duration != input[0].Duration {
		t.Fatalf("unexpected diagnostics: %+v", decoded)
	}
}

func TestDecodeSnapshotRejectsVersionMismatch(t *testing.T) {
	input := model.Snapshot{VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: 99}, ID: "s1"}
	encoded, err := EncodeSnapshot(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSnapshot(encoded); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
