package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError defines standard error response
// Example: { "error": { "code": "bad_request", "message": "Invalid ID" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// JSONError sends a structured error response
func JSONError(ctx *gin.Context, status int, code, msg string) {
	ctx.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

// Convenience wrappers
func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func NotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, "not_found", msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, "internal_error", msg)
}

// Job and batch errors. Clients branch on these codes rather than on the message.
const (
	CodeJobInFlight       = "job_in_flight"
	CodeSourcesLocked     = "sources_locked"
	CodeNoSources         = "no_sources"
	CodeUnsupportedSource = "unsupported_source"
	CodeSourceNotFound    = "source_not_found"
	CodeSubmissionFailed  = "submission_failed"
)

// JobInFlight rejects a submission while a run is uploading or processing.
func JobInFlight(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, CodeJobInFlight, msg)
}

// SourcesLocked rejects batch edits while a run is in flight.
func SourcesLocked(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusConflict, CodeSourcesLocked, msg)
}

func NoSources(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, CodeNoSources, msg)
}

func UnsupportedSource(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, CodeUnsupportedSource, msg)
}

func SourceNotFound(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusNotFound, CodeSourceNotFound, msg)
}

// SubmissionFailed reports that the extraction service refused or never answered the
// upload. The job has already been marked failed.
func SubmissionFailed(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadGateway, CodeSubmissionFailed, msg)
}
