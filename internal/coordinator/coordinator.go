// Package coordinator owns the job run: it submits the source batch, subscribes to
// the job's status channel and folds every status event into the published state.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"structurizer/internal/channel"
	"structurizer/internal/extractor"
	"structurizer/internal/models"
	"structurizer/internal/store"
	"structurizer/internal/translator"
)

// Channels is the part of the channel manager the coordinator depends on.
type Channels interface {
	Subscribe(jobID string, l channel.Listener) error
	Unsubscribe(jobID string)
	UnsubscribeAll()
}

// Options tunes a Coordinator.
type Options struct {
	// Now stamps log entries. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator is the only writer of job, stage and source state. Every mutation is
// applied under mu and published to the store before the lock is released, so readers
// never observe a half-applied event.
type Coordinator struct {
	submitter extractor.Submitter
	channels  Channels
	store     *store.StateStore
	now       func() time.Time

	mu        sync.Mutex
	job       models.Job
	stages    []models.PipelineStage
	stageData map[models.StageID]models.StageData
	sources   []models.Source
}

// New creates an idle coordinator and publishes its initial snapshot.
func New(submitter extractor.Submitter, channels Channels, st *store.StateStore, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		submitter: submitter,
		channels:  channels,
		store:     st,
		now:       opts.Now,
		job:       models.Job{OverallStatus: models.JobStatusIdle},
		stages:    models.NewStages(),
		stageData: make(map[models.StageID]models.StageData),
	}
	c.mu.Lock()
	c.publishLocked()
	c.mu.Unlock()
	return c
}

// AddSource appends src to the batch. Sources cannot change while a job is in flight.
func (c *Coordinator) AddSource(src models.Source) (models.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job.OverallStatus.InFlight() {
		return models.Source{}, models.ErrSourcesLocked
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	src.Status = models.SourceStatusPending
	src.JobID = ""
	src.Error = ""
	c.sources = append(c.sources, src)
	c.publishLocked()
	return src, nil
}

// RemoveSource drops the source with the given id from the batch.
func (c *Coordinator) RemoveSource(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job.OverallStatus.InFlight() {
		return models.ErrSourcesLocked
	}
	for i, s := range c.sources {
		if s.ID == id {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			c.publishLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrSourceNotFound, id)
}

// Sources returns a copy of the current batch.
func (c *Coordinator) Sources() []models.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Source(nil), c.sources...)
}

// CanStart is true when the job is idle or completed and at least one source is present.
func (c *Coordinator) CanStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canStartLocked()
}

func (c *Coordinator) canStartLocked() bool {
	s := c.job.OverallStatus
	return (s == models.JobStatusIdle || s == models.JobStatusCompleted) && len(c.sources) > 0
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() models.Snapshot {
	return c.store.Snapshot()
}

// SubmitJob resets the run, submits every source with schema in one call and, on
// success, subscribes to the returned job's status channel. Submission failures are
// folded into a failed job and also returned. ErrJobInFlight is returned without
// touching state when a run is already uploading or processing.
func (c *Coordinator) SubmitJob(ctx context.Context, schema string) error {
	c.mu.Lock()
	if c.job.OverallStatus.InFlight() {
		c.mu.Unlock()
		return models.ErrJobInFlight
	}
	if len(c.sources) == 0 {
		log.Warn("no sources to submit")
		c.appendLogLocked(models.ErrNoSources.Error())
		c.publishLocked()
		c.mu.Unlock()
		return models.ErrNoSources
	}

	previous := c.job.JobID
	c.resetLocked()
	c.job.OverallStatus = models.JobStatusUploading
	for i := range c.sources {
		c.sources[i].Status = models.SourceStatusUploading
	}
	batch := append([]models.Source(nil), c.sources...)
	c.appendLogLocked(fmt.Sprintf("Uploading %d source(s)", len(batch)))
	c.publishLocked()
	c.mu.Unlock()

	if previous != "" {
		c.channels.Unsubscribe(previous)
	}

	jobID, err := c.submitter.Submit(ctx, batch, schema)
	if err != nil {
		log.WithError(err).Error("submission failed")
		c.mu.Lock()
		c.failSubmissionLocked(err)
		c.mu.Unlock()
		return fmt.Errorf("submit job: %w", err)
	}

	c.mu.Lock()
	c.job.JobID = jobID
	c.job.OverallStatus = models.JobStatusProcessing
	for i := range c.sources {
		c.sources[i].Status = models.SourceStatusProcessing
		c.sources[i].JobID = jobID
	}
	c.stages[0].Status = models.StageStatusRunning
	c.appendLogLocked("Job " + jobID + " accepted")
	c.publishLocked()
	c.mu.Unlock()

	log.WithField("job_id", jobID).Info("job submitted, listening for status")
	err = c.channels.Subscribe(jobID, channel.Listener{
		OnEvent: func(ev models.StatusEvent) { c.handleEvent(jobID, ev) },
		OnError: func(err error) { c.handleChannelError(jobID, err) },
	})
	if err != nil {
		c.mu.Lock()
		if c.job.JobID == jobID && c.job.OverallStatus.InFlight() {
			c.failSubmissionLocked(err)
		}
		c.mu.Unlock()
		return fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}
	return nil
}

// Close releases every status channel the coordinator opened.
func (c *Coordinator) Close() {
	c.channels.UnsubscribeAll()
}

func (c *Coordinator) resetLocked() {
	c.stages = models.NewStages()
	c.stageData = make(map[models.StageID]models.StageData)
	c.job = models.Job{OverallStatus: models.JobStatusIdle}
	for i := range c.sources {
		c.sources[i].Error = ""
		c.sources[i].JobID = ""
	}
}

func (c *Coordinator) failSubmissionLocked(err error) {
	c.job.OverallStatus = models.JobStatusFailed
	for i := range c.sources {
		c.sources[i].Status = models.SourceStatusFailed
		c.sources[i].Error = err.Error()
	}
	c.appendLogLocked("Submission failed: " + err.Error())
	c.publishLocked()
}

func (c *Coordinator) handleEvent(jobID string, ev models.StatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := log.WithFields(log.Fields{"job_id": jobID, "status": ev.Status})
	if jobID != c.job.JobID {
		entry.Debug("dropping event for stale job")
		return
	}
	if !c.job.OverallStatus.InFlight() {
		entry.Debug("dropping event after terminal state")
		return
	}

	d := translator.Translate(c.stages, c.job.Progress, ev)
	if !d.Recognized {
		entry.Warn("unrecognized status")
	}

	c.stages = d.Stages
	c.job.Progress = d.Progress
	translator.MergeStageData(c.stageData, d.StageData)
	if d.SourceStatus != "" {
		for i := range c.sources {
			c.sources[i].Status = d.SourceStatus
			c.sources[i].Error = d.SourceError
		}
	}
	if d.Terminal {
		if d.Success {
			c.job.OverallStatus = models.JobStatusCompleted
			c.job.Result = d.Result
		} else {
			c.job.OverallStatus = models.JobStatusFailed
		}
		entry.WithField("progress", d.Progress).Info("job finished")
	}
	if d.Log != "" {
		c.appendLogLocked(d.Log)
	}
	c.publishLocked()
}

func (c *Coordinator) handleChannelError(jobID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if jobID != c.job.JobID {
		return
	}
	log.WithField("job_id", jobID).WithError(err).Warn("status channel error")
	c.appendLogLocked("channel error: " + err.Error())
	c.publishLocked()
}

func (c *Coordinator) appendLogLocked(msg string) {
	c.job.Logs = append(c.job.Logs, models.LogEntry{Time: c.now(), Message: msg})
}

func (c *Coordinator) publishLocked() {
	c.store.Publish(models.Snapshot{
		Job:       c.job,
		Stages:    c.stages,
		StageData: c.stageData,
		Sources:   c.sources,
		CanStart:  c.canStartLocked(),
	})
}
