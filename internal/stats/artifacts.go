package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"neurolab/internal/model"
)

const (
	runIndexFile = "run_index.json"
	runFile      = "run.json"
	stepsFile    = "steps.csv"
	summaryFile  = "summary.json"
	// GraphFile holds the graphviz dump of the network at the end of a run.
	GraphFile = "network.dot"
)

var stepsHeader = []string{"step", "live_cells", "active_cells", "commits", "mean_output", "duration_us"}

type RunArtifacts struct {
	Run   model.RunRecord         `json:"run"`
	Steps []model.StepDiagnostics `json:"steps"`
}

// RunSummary aggregates the per-step series of one run.
type RunSummary struct {
	RunID            string  `json:"run_id"`
	Steps            int     `json:"steps"`
	TotalCommits     int     `json:"total_commits"`
	OutputMean       float64 `json:"output_mean"`
	OutputStd        float64 `json:"output_std"`
	OutputMin        float64 `json:"output_min"`
	OutputMax        float64 `json:"output_max"`
	PeakActiveCells  int     `json:"peak_active_cells"`
	MeanStepDuration float64 `json:"mean_step_duration_us"`
}

type RunIndexEntry struct {
	RunID          string `json:"run_id"`
	NetworkPath    string `json:"network_path,omitempty"`
	StepsCompleted int    `json:"steps_completed"`
	Cancelled      bool   `json:"cancelled"`
	Workers        int    `json:"workers"`
	LiveCells      int    `json:"live_cells"`
	CreatedAtUTC   string `json:"created_at_utc"`
}

func Summarize(runID string, steps []model.StepDiagnostics) RunSummary {
	summary := RunSummary{RunID: runID, Steps: len(steps)}
	if len(steps) == 0 {
		return summary
	}

	summary.OutputMin = math.Inf(1)
	summary.OutputMax = math.Inf(-1)
	var total time.Duration
	for _, step := range steps {
		summary.TotalCommits += step.Commits
		summary.OutputMean += step.MeanOutput
		summary.OutputMin = math.Min(summary.OutputMin, step.MeanOutput)
		summary.OutputMax = math.Max(summary.OutputMax, step.MeanOutput)
		summary.PeakActiveCells = max(summary.PeakActiveCells, step.ActiveCells)
		total += step.Duration
	}
	n := float64(len(steps))
	summary.OutputMean /= n
	for _, step := range steps {
		d := step.MeanOutput - summary.OutputMean
		summary.OutputStd += d * d
	}
	summary.OutputStd = math.Sqrt(summary.OutputStd / n)
	summary.MeanStepDuration = float64(total.Microseconds()) / n
	return summary
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Run.RunID, artifacts.Steps)); err != nil {
		return "", err
	}
	if err := writeStepSeries(filepath.Join(runDir, stepsFile), artifacts.Steps); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies the artifacts of runID under outDir.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{runFile, summaryFile, stepsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	graphPath := filepath.Join(src, GraphFile)
	if _, err := os.Stat(graphPath); err == nil {
		if err := copyFile(graphPath, filepath.Join(dst, GraphFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunRecord(baseDir, runID string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func writeStepSeries(path string, steps []model.StepDiagnostics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(stepsHeader); err != nil {
		return err
	}
	for _, step := range steps {
		if err := writer.Write([]string{
			strconv.Itoa(step.Step),
			strconv.Itoa(step.LiveCells),
			strconv.Itoa(step.ActiveCells),
			strconv.Itoa(step.Commits),
			strconv.FormatFloat(step.MeanOutput, 'f', -1, 64),
			strconv.FormatInt(step.Duration.Microseconds(), 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadStepSeries parses steps.csv of a run. Durations are restored at
// microsecond resolution.
func ReadStepSeries(baseDir, runID string) ([]model.StepDiagnostics, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, stepsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.StepDiagnostics{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < len(stepsHeader) {
		return nil, false, fmt.Errorf("step series header must have %d columns", len(stepsHeader))
	}

	series := make([]model.StepDiagnostics, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		step, err := parseStepRecord(record)
		if err != nil {
			return nil, false, err
		}
		series = append(series, step)
	}
	return series, true, nil
}

func parseStepRecord(record []string) (model.StepDiagnostics, error) {
	if len(record) < len(stepsHeader) {
		return model.StepDiagnostics{}, fmt.Errorf("step series row must have %d columns", len(stepsHeader))
	}
	ints := make([]int, 4)
	for i := range ints {
		v, err := strconv.Atoi(record[i])
		if err != nil {
			return model.StepDiagnostics{}, fmt.Errorf("column %s: %w", stepsHeader[i], err)
		}
		ints[i] = v
	}
	mean, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return model.StepDiagnostics{}, fmt.Errorf("column mean_output: %w", err)
	}
	micros, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return model.StepDiagnostics{}, fmt.Errorf("column duration_us: %w", err)
	}
	return model.StepDiagnostics{
		Step:        ints[0],
		LiveCells:   ints[1],
		ActiveCells: ints[2],
		Commits:     ints[3],
		MeanOutput:  mean,
		Duration:    time.Duration(micros) * time.Microsecond,
	}, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
