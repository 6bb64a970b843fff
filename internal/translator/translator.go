// Package translator maps raw status events from the extraction service onto the
// fixed five-stage pipeline. Everything here is pure: no I/O, no shared state.
package translator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"structurizer/internal/models"
)

// RawStatus is the closed set of status strings the extraction service is known to emit.
type RawStatus string

const (
	StatusUnknown         RawStatus = ""
	StatusQueued          RawStatus = "queued"
	StatusExtracting      RawStatus = "Extracting Raw Data"
	StatusCleaning        RawStatus = "Cleaning & Normalizing Data"
	StatusAINormalization RawStatus = "AI Normalization & Cleaning"
	StatusStructuring     RawStatus = "Structuring with AI"
	StatusValidating      RawStatus = "Validating"
	StatusExporting       RawStatus = "Exporting"
	StatusCompleted       RawStatus = "completed"
	StatusCompletedTitle  RawStatus = "Completed"
	StatusFailed          RawStatus = "failed"
	StatusFailedTitle     RawStatus = "Failed"
)

// progressTable is non-decreasing along the canonical sequence. Failure holds the
// previous value, so it has no entry.
var progressTable = map[RawStatus]int{
	StatusQueued:          5,
	StatusExtracting:      20,
	StatusCleaning:        40,
	StatusAINormalization: 50,
	StatusStructuring:     60,
	StatusValidating:      80,
	StatusExporting:       90,
	StatusCompleted:       100,
	StatusCompletedTitle:  100,
}

// stageTable maps a status to the ordinal of the stage it represents. Failure has no
// fixed ordinal; it lands on the current frontier stage.
var stageTable = map[RawStatus]int{
	StatusQueued:          0,
	StatusExtracting:      1,
	StatusCleaning:        2,
	StatusAINormalization: 2,
	StatusStructuring:     2,
	StatusValidating:      3,
	StatusExporting:       4,
	StatusCompleted:       4,
	StatusCompletedTitle:  4,
}

// Parse resolves a raw status string against the known vocabulary.
func Parse(raw string) (RawStatus, bool) {
	s := RawStatus(raw)
	switch s {
	case StatusFailed, StatusFailedTitle:
		return s, true
	}
	if _, ok := progressTable[s]; ok {
		return s, true
	}
	return StatusUnknown, false
}

// IsSuccess reports whether the status denotes final success.
func (s RawStatus) IsSuccess() bool {
	return s == StatusCompleted || s == StatusCompletedTitle
}

// IsFailure reports whether the status denotes final failure.
func (s RawStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusFailedTitle
}

// ProgressFor returns the table progress for a raw status.
func ProgressFor(raw string) (int, bool) {
	p, ok := progressTable[RawStatus(raw)]
	return p, ok
}

// StageFor returns the stage ordinal a raw status represents.
func StageFor(raw string) (int, bool) {
	k, ok := stageTable[RawStatus(raw)]
	return k, ok
}

// IsTerminal reports whether no further events are expected after ev. An event that
// carries only an error (the service's "Job not found" reply) is a terminal failure.
func IsTerminal(ev models.StatusEvent) bool {
	s := RawStatus(ev.Status)
	return s.IsSuccess() || s.IsFailure() || (ev.Status == "" && ev.Error != "")
}

// Delta is the state change produced by one event.
type Delta struct {
	Status     RawStatus
	Recognized bool
	Progress   int
	Stages     []models.PipelineStage
	StageData  map[models.StageID]models.StageData

	// SourceStatus is empty when sources are left untouched.
	SourceStatus models.SourceStatus
	SourceError  string

	Terminal bool
	Success  bool
	Result   json.RawMessage
	Error    string
	Log      string
}

// Translate computes the delta for ev given the current stage vector and progress.
// The input slice is not modified.
func Translate(stages []models.PipelineStage, progress int, ev models.StatusEvent) Delta {
	status, known := Parse(ev.Status)
	if !known && ev.Status == "" && ev.Error != "" {
		status, known = StatusFailed, true
	}

	d := Delta{
		Status:     status,
		Recognized: known,
		Progress:   progress,
		Stages:     append([]models.PipelineStage(nil), stages...),
		StageData:  ev.StageData,
	}

	if !known {
		d.Log = fmt.Sprintf("Unrecognized status %q", ev.Status)
		return d
	}

	if p, ok := progressTable[status]; ok {
		d.Progress = p
	}

	message := ev.Message
	if message == "" {
		message = ev.Status
	}

	switch {
	case status.IsSuccess():
		d.Terminal, d.Success = true, true
		if HasResult(ev.Result) {
			d.Result = ev.Result
		}
		d.SourceStatus = models.SourceStatusCompleted
		advance(d.Stages, stageTable[status], models.StageStatusCompleted, message, "")
		d.Log = completionLog(ev.Result)
	case status.IsFailure():
		d.Terminal = true
		d.Error = ev.Error
		if d.Error == "" {
			d.Error = "job failed"
		}
		d.SourceStatus = models.SourceStatusFailed
		d.SourceError = d.Error
		advance(d.Stages, frontier(d.Stages), models.StageStatusFailed, message, d.Error)
		d.Log = "Job failed: " + d.Error
	default:
		advance(d.Stages, stageTable[status], models.StageStatusRunning, message, "")
		d.Log = fmt.Sprintf("Status: %s (%d%%)", ev.Status, d.Progress)
	}
	return d
}

// advance completes every stage before k and moves stage k to status. Stages after k
// are untouched. A failed stage is never completed retroactively, and a stage that is
// already completed or failed does not go back to running.
func advance(stages []models.PipelineStage, k int, status models.StageStatus, message, errText string) {
	if k < 0 || k >= len(stages) {
		return
	}
	for i := 0; i < k; i++ {
		if stages[i].Status == models.StageStatusFailed {
			continue
		}
		stages[i].Status = models.StageStatusCompleted
	}

	st := &stages[k]
	st.Message = message
	switch status {
	case models.StageStatusRunning:
		if st.Status == models.StageStatusPending || st.Status == models.StageStatusRunning {
			st.Status = models.StageStatusRunning
		}
	case models.StageStatusFailed:
		st.Status = models.StageStatusFailed
		st.Error = errText
	default:
		st.Status = status
	}
}

// frontier is the stage a failure is attributed to: the first running stage, else the
// first pending one, else the last.
func frontier(stages []models.PipelineStage) int {
	for i, st := range stages {
		if st.Status == models.StageStatusRunning {
			return i
		}
	}
	for i, st := range stages {
		if st.Status == models.StageStatusPending {
			return i
		}
	}
	return len(stages) - 1
}

// HasResult reports whether a result payload carries data. The service sends an
// explicit JSON null before a result exists.
func HasResult(result json.RawMessage) bool {
	trimmed := bytes.TrimSpace(result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func completionLog(result json.RawMessage) string {
	if !HasResult(result) {
		return "Job completed"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(result, &obj); err == nil {
		return fmt.Sprintf("Job completed: result with %d fields", len(obj))
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(result, &arr); err == nil {
		return fmt.Sprintf("Job completed: %d records extracted", len(arr))
	}
	return "Job completed"
}

// MergeStageData overwrites dst entries with every snapshot in src, by stage id.
func MergeStageData(dst, src map[models.StageID]models.StageData) {
	for id, data := range src {
		dst[id] = data
	}
}
