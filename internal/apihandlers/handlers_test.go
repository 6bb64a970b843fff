package apihandlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"structurizer/internal/app"
	"structurizer/internal/channel"
	"structurizer/internal/config"
	"structurizer/internal/inputprocessor"
	"structurizer/internal/models"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, sources []models.Source, schema string) (string, error) {
	args := m.Called(ctx, sources, schema)
	return args.String(0), args.Error(1)
}

// scriptedConn plays back frames pushed by the test.
type scriptedConn struct {
	frames chan []byte
	once   sync.Once
	done   chan struct{}
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *scriptedConn) Close(int, string) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type scriptedDialer struct {
	conn *scriptedConn
}

func (d *scriptedDialer) Dial(context.Context, string) (channel.Conn, error) {
	return d.conn, nil
}

type harness struct {
	router    *gin.Engine
	app       *app.App
	submitter *mockSubmitter
	conn      *scriptedConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Service.BaseURL = "http://extract.invalid"
	cfg.Service.WSURL = "ws://extract.invalid/ws"
	cfg.Service.Timeout = time.Second
	cfg.Channel.BaseDelay = time.Hour
	cfg.Channel.MaxAttempts = 1
	cfg.Channel.DialTimeout = time.Second
	cfg.Server.UploadDir = t.TempDir()
	cfg.Log.Level = "error"

	h := &harness{
		submitter: &mockSubmitter{},
		conn:      &scriptedConn{frames: make(chan []byte, 16), done: make(chan struct{})},
	}
	a, err := app.NewApp(cfg, inputprocessor.New(),
		app.WithSubmitter(h.submitter),
		app.WithDialer(&scriptedDialer{conn: h.conn}),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h.app = a
	h.router = gin.New()
	RegisterRoutes(h.router, NewAPIHandler(a))
	return h
}

func (h *harness) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) addURL(t *testing.T, url string) models.Source {
	t.Helper()
	w := h.do(http.MethodPost, "/api/v1/sources", strings.NewReader(`{"url":"`+url+`"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data models.Source `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSources_AddListDelete(t *testing.T) {
	h := newHarness(t)
	src := h.addURL(t, "https://example.com/catalog")
	assert.Equal(t, models.SourceKindURL, src.Kind)

	w := h.do(http.MethodGet, "/api/v1/sources", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://example.com/catalog")

	w = h.do(http.MethodDelete, "/api/v1/sources/"+src.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/sources/"+src.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeSourceNotFound, errorCode(t, w))
}

func TestSources_RejectsBadURL(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/v1/sources", strings.NewReader(`{"url":"ftp://x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeUnsupportedSource, errorCode(t, w))

	w = h.do(http.MethodPost, "/api/v1/sources", strings.NewReader(`{"url":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", errorCode(t, w))
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/v1/jobs", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestSources_MultipartUpload(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "orders.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("id,total\n1,9.5\n"))
	require.NoError(t, mw.Close())

	w := h.do(http.MethodPost, "/api/v1/sources", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	srcs := h.app.Coordinator.Sources()
	require.Len(t, srcs, 1)
	assert.Equal(t, "orders.csv", srcs[0].Name)
	assert.Equal(t, int64(15), srcs[0].Size)
	assert.FileExists(t, srcs[0].Path)

	w = h.do(http.MethodDelete, "/api/v1/sources/"+srcs[0].ID, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, srcs[0].Path)
}

func TestSubmitJob_EmptyBatch(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/v1/job", strings.NewReader(`{"schema":"s"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeNoSources, errorCode(t, w))
	h.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitJob_UpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.addURL(t, "https://example.com/a")
	h.submitter.On("Submit", mock.Anything, mock.Anything, "s").Return("", errors.New("upload rejected: status 500")).Once()

	w := h.do(http.MethodPost, "/api/v1/job", strings.NewReader(`{"schema":"s"}`), "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, CodeSubmissionFailed, errorCode(t, w))
	assert.Equal(t, models.JobStatusFailed, h.app.Coordinator.Snapshot().Job.OverallStatus)
}

func TestSubmitJob_LifecycleOverSSE(t *testing.T) {
	h := newHarness(t)
	src := h.addURL(t, "https://example.com/a")
	h.submitter.On("Submit", mock.Anything, mock.Anything, "Extract prices").Return("job-9", nil).Once()

	w := h.do(http.MethodPost, "/api/v1/job", strings.NewReader(`{"schema":"Extract prices"}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/api/v1/job", strings.NewReader(`{"schema":"Extract prices"}`), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeJobInFlight, errorCode(t, w))
	w = h.do(http.MethodDelete, "/api/v1/sources/"+src.ID, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeSourcesLocked, errorCode(t, w))
	w = h.do(http.MethodPost, "/api/v1/sources", strings.NewReader(`{"url":"https://example.com/b"}`), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeSourcesLocked, errorCode(t, w))

	srv := httptest.NewServer(h.router)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/v1/job/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	h.conn.frames <- []byte(`{"status":"Extracting Raw Data","progress":20}`)
	h.conn.frames <- []byte(`{"status":"completed","progress":100,"result":{"price":3}}`)

	// The stream ends by itself once the terminal snapshot has been sent.
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(raw)
	assert.Contains(t, stream, "event:snapshot")
	assert.Contains(t, stream, `"overall_status":"completed"`)

	snap := h.app.Coordinator.Snapshot()
	assert.Equal(t, models.JobStatusCompleted, snap.Job.OverallStatus)
	assert.Equal(t, 100, snap.Job.Progress)

	w = h.do(http.MethodGet, "/api/v1/job", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-9"`)
}
