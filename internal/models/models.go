package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source is one file or URL submitted for extraction.
type Source struct {
	ID     string       `json:"id"`
	Kind   SourceKind   `json:"kind"`
	Name   string       `json:"name,omitempty"`
	Size   int64        `json:"size,omitempty"`
	Path   string       `json:"-"` // local file to upload, file sources only
	URL    string       `json:"url,omitempty"`
	Status SourceStatus `json:"status"`
	JobID  string       `json:"job_id,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// PipelineStage is one entry of the fixed stage vector.
type PipelineStage struct {
	ID      StageID     `json:"id"`
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StageData is an artifact snapshot for a single stage.
type StageData struct {
	Status string         `json:"status,omitempty"`
	Input  string         `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// LogEntry is one timestamped, human-readable line of the job log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Job is the run as a whole.
type Job struct {
	JobID         string          `json:"job_id,omitempty"`
	OverallStatus OverallStatus   `json:"overall_status"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	Logs          []LogEntry      `json:"logs"`
}

// StatusEvent is a single message pushed over the status channel.
type StatusEvent struct {
	Status    string                `json:"status"`
	Progress  *float64              `json:"progress,omitempty"` // hint only, recomputed locally
	Message   string                `json:"message,omitempty"`
	Error     string                `json:"error,omitempty"`
	Result    json.RawMessage       `json:"result,omitempty"`
	StageData map[StageID]StageData `json:"stage_data,omitempty"`
}

// Snapshot is an immutable, deep-copied view of the coordinator state.
type Snapshot struct {
	Seq       uint64                `json:"seq"`
	Job       Job                   `json:"job"`
	Stages    []PipelineStage       `json:"stages"`
	StageData map[StageID]StageData `json:"stage_data"`
	Sources   []Source              `json:"sources"`
	CanStart  bool                  `json:"can_start"`
}

// NewStages returns the five stages in their fresh pending state.
func NewStages() []PipelineStage {
	stages := make([]PipelineStage, StageCount)
	for i, id := range StageOrder {
		stages[i] = PipelineStage{ID: id, Status: StageStatusPending}
	}
	return stages
}

// CloneStageData copies a stage data mapping, including each Stats map.
func CloneStageData(in map[StageID]StageData) map[StageID]StageData {
	out := make(map[StageID]StageData, len(in))
	for k, v := range in {
		if v.Stats != nil {
			stats := make(map[string]any, len(v.Stats))
			for sk, sv := range v.Stats {
				stats[sk] = sv
			}
			v.Stats = stats
		}
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Job.Logs = append([]LogEntry(nil), s.Job.Logs...)
	if s.Job.Result != nil {
		out.Job.Result = append(json.RawMessage(nil), s.Job.Result...)
	}
	out.Stages = append([]PipelineStage(nil), s.Stages...)
	out.Sources = append([]Source(nil), s.Sources...)
	out.StageData = CloneStageData(s.StageData)
	return out
}

// Terminal reports whether the snapshot's job has reached completed or failed.
func (s Snapshot) Terminal() bool {
	return s.Job.OverallStatus == JobStatusCompleted || s.Job.OverallStatus == JobStatusFailed
}
