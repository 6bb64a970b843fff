package apihandlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"structurizer/internal/app"
	"structurizer/internal/fileingest"
	"structurizer/internal/inputprocessor"
	"structurizer/internal/models"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(app *app.App) *APIHandler {
	return &APIHandler{App: app}
}

// SubmitJobRequest is the body of POST /api/v1/job.
type SubmitJobRequest struct {
	Schema string `json:"schema"`
}

// AddSourceRequest is the JSON body of POST /api/v1/sources.
type AddSourceRequest struct {
	URL string `json:"url" binding:"required"`
}

// RegisterRoutes mounts every endpoint on router.
func RegisterRoutes(router *gin.Engine, h *APIHandler) {
	v1 := router.Group("/api/v1")
	{
		jobGroup := v1.Group("/job")
		{
			jobGroup.GET("", h.GetJobHandler)
			jobGroup.POST("", h.SubmitJobHandler)
			jobGroup.GET("/events", h.JobEventsHandler)
		}

		sourceGroup := v1.Group("/sources")
		{
			sourceGroup.GET("", h.ListSourcesHandler)
			sourceGroup.POST("", h.AddSourceHandler)
			sourceGroup.DELETE("/:id", h.DeleteSourceHandler)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "No route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
}

func (h *APIHandler) GetJobHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.App.Coordinator.Snapshot()})
}

// SubmitJobHandler starts a run over the current sources. The upload is not tied to
// the request's lifetime: once issued it runs to completion and its outcome is
// applied even if the client goes away.
func (h *APIHandler) SubmitJobHandler(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	err := h.App.Coordinator.SubmitJob(ctx, req.Schema)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"data": h.App.Coordinator.Snapshot()})
	case errors.Is(err, models.ErrJobInFlight):
		JobInFlight(c, err.Error())
	case errors.Is(err, models.ErrNoSources):
		NoSources(c, err.Error())
	default:
		SubmissionFailed(c, fmt.Sprintf("SubmitJobHandler: %v", err))
	}
}

// JobEventsHandler streams snapshots as server-sent events until the job reaches a
// terminal state or the client disconnects.
func (h *APIHandler) JobEventsHandler(c *gin.Context) {
	updates, cancel := h.App.Store.Subscribe()
	defer cancel()

	current := h.App.Store.Snapshot()
	c.SSEvent("snapshot", current)
	c.Writer.Flush()
	if current.Terminal() {
		return
	}
	lastSeq := current.Seq

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			if snap.Seq <= lastSeq {
				return true
			}
			lastSeq = snap.Seq
			c.SSEvent("snapshot", snap)
			return !snap.Terminal()
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *APIHandler) ListSourcesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.App.Coordinator.Sources()})
}

// AddSourceHandler accepts either a multipart "file" upload or a JSON {"url": ...}.
func (h *APIHandler) AddSourceHandler(c *gin.Context) {
	var (
		src models.Source
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		src, err = h.saveUpload(c)
	} else {
		src, err = parseURLSource(c)
	}
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedInput) {
			UnsupportedSource(c, err.Error())
			return
		}
		BadRequest(c, "Invalid source: "+err.Error())
		return
	}

	added, err := h.App.Coordinator.AddSource(src)
	if err != nil {
		if src.Path != "" {
			_ = os.Remove(src.Path)
		}
		if errors.Is(err, models.ErrSourcesLocked) {
			SourcesLocked(c, err.Error())
			return
		}
		Internal(c, fmt.Sprintf("AddSourceHandler: %v", err))
		return
	}
	log.WithField("source_id", added.ID).Infof("API AddSource: kind=%s name=%q", added.Kind, added.Name)
	c.JSON(http.StatusCreated, gin.H{"data": added})
}

func (h *APIHandler) DeleteSourceHandler(c *gin.Context) {
	id := c.Param("id")
	var path string
	for _, s := range h.App.Coordinator.Sources() {
		if s.ID == id {
			path = s.Path
		}
	}

	if err := h.App.Coordinator.RemoveSource(id); err != nil {
		switch {
		case errors.Is(err, models.ErrSourcesLocked):
			SourcesLocked(c, err.Error())
		case errors.Is(err, models.ErrSourceNotFound):
			SourceNotFound(c, err.Error())
		default:
			Internal(c, fmt.Sprintf("DeleteSourceHandler: %v", err))
		}
		return
	}
	if path != "" && h.ownsUpload(path) {
		if err := os.Remove(path); err != nil {
			log.WithError(err).Warnf("failed to remove upload %s", path)
		}
	}
	c.Status(http.StatusNoContent)
}

// saveUpload stores the multipart file under the upload dir and returns its source.
func (h *APIHandler) saveUpload(c *gin.Context) (models.Source, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return models.Source{}, err
	}
	name := filepath.Base(fh.Filename)
	dest := filepath.Join(h.App.Config.Server.UploadDir, uuid.NewString()+"-"+name)
	if err := c.SaveUploadedFile(fh, dest); err != nil {
		return models.Source{}, fmt.Errorf("save upload: %w", err)
	}
	meta, err := fileingest.ExtractFileMeta(dest)
	if err != nil {
		return models.Source{}, err
	}
	meta.Name = name
	return inputprocessor.FileSource(meta), nil
}

func (h *APIHandler) ownsUpload(path string) bool {
	dir, err := filepath.Abs(h.App.Config.Server.UploadDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func parseURLSource(c *gin.Context) (models.Source, error) {
	var req AddSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return models.Source{}, err
	}
	return inputprocessor.URLSource(strings.TrimSpace(req.URL))
}
