package models

/*
Job, stage and source status constants for use throughout the codebase.
Centralizing these avoids magic strings in the coordinator and the handlers.
*/

// OverallStatus is the status of a job run as a whole.
type OverallStatus string

// Job status constants
const (
	JobStatusIdle       OverallStatus = "idle"
	JobStatusUploading  OverallStatus = "uploading"
	JobStatusProcessing OverallStatus = "processing"
	JobStatusCompleted  OverallStatus = "completed"
	JobStatusFailed     OverallStatus = "failed"
)

// InFlight reports whether a run is currently between submission and its terminal event.
func (s OverallStatus) InFlight() bool {
	return s == JobStatusUploading || s == JobStatusProcessing
}

// SourceStatus is the per-source projection of job progress.
type SourceStatus string

// Source status constants
const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusUploading  SourceStatus = "uploading"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
)

// StageStatus is the status of one pipeline stage.
type StageStatus string

// Stage status constants
const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// StageID names one of the fixed pipeline stages.
type StageID string

// Stage ids, in pipeline order.
const (
	StageIngestion     StageID = "ingestion"
	StageCleaning      StageID = "cleaning"
	StageNormalization StageID = "normalization"
	StageValidation    StageID = "validation"
	StageExport        StageID = "export"
)

// StageOrder is the fixed stage sequence. It is never reordered at runtime.
var StageOrder = [...]StageID{
	StageIngestion,
	StageCleaning,
	StageNormalization,
	StageValidation,
	StageExport,
}

// StageCount is the number of pipeline stages.
const StageCount = len(StageOrder)

// SourceKind distinguishes uploaded files from remote URLs.
type SourceKind string

const (
	SourceKindFile SourceKind = "file"
	SourceKindURL  SourceKind = "url"
)
