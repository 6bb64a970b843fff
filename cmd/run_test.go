package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"structurizer/internal/app"
	"structurizer/internal/channel"
	"structurizer/internal/config"
	"structurizer/internal/inputprocessor"
	"structurizer/internal/models"
)

type stubSubmitter struct {
	jobID string
	err   error
}

func (s stubSubmitter) Submit(context.Context, []models.Source, string) (string, error) {
	return s.jobID, s.err
}

// replayConn hands out a fixed list of frames, then reports a normal close.
type replayConn struct {
	mu     sync.Mutex
	frames []string
}

func (c *replayConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return []byte(f), nil
}

func (c *replayConn) Close(int, string) error { return nil }

type replayDialer struct{ frames []string }

func (d replayDialer) Dial(context.Context, string) (channel.Conn, error) {
	return &replayConn{frames: append([]string(nil), d.frames...)}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Service.BaseURL = "http://extract.invalid"
	cfg.Service.WSURL = "ws://extract.invalid/ws"
	cfg.Service.Timeout = time.Second
	cfg.Channel.BaseDelay = time.Hour
	cfg.Channel.MaxAttempts = 1
	cfg.Server.UploadDir = t.TempDir()
	cfg.Log.Level = "error"
	return cfg
}

func newTestApp(t *testing.T, sub stubSubmitter, frames ...string) *app.App {
	t.Helper()
	color.NoColor = true

	cfg := testConfig(t)

	a, err := app.NewApp(cfg, inputprocessor.New(), app.WithSubmitter(sub), app.WithDialer(replayDialer{frames: frames}))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.Coordinator.AddSource(models.Source{Kind: models.SourceKindURL, URL: "https://example.com"})
	require.NoError(t, err)
	return a
}

func TestFollowJob_Completed(t *testing.T) {
	a := newTestApp(t, stubSubmitter{jobID: "job-1"},
		`{"status":"queued"}`,
		`{"status":"Extracting Raw Data"}`,
		`{"status":"completed","result":{"name":"Ada"}}`,
	)

	var out bytes.Buffer
	require.NoError(t, followJob(context.Background(), a, "name", &out))

	text := out.String()
	assert.Contains(t, text, "Job job-1 accepted")
	assert.Contains(t, text, "Job completed: result with 1 fields")
	assert.Contains(t, text, "normalization")
	assert.Contains(t, text, `"name": "Ada"`)
}

func TestFollowJob_Failed(t *testing.T) {
	a := newTestApp(t, stubSubmitter{jobID: "job-2"},
		`{"status":"Extracting Raw Data"}`,
		`{"status":"failed","error":"bad schema"}`,
	)

	var out bytes.Buffer
	err := followJob(context.Background(), a, "name", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-2 failed")
	assert.Contains(t, out.String(), "Job failed: bad schema")
}

func TestFollowJob_SubmissionError(t *testing.T) {
	a := newTestApp(t, stubSubmitter{err: errors.New("connection refused")})

	var out bytes.Buffer
	err := followJob(context.Background(), a, "name", &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Submission failed: connection refused")
}

func TestPrintLogs_RestartsAfterReset(t *testing.T) {
	color.NoColor = true
	snap := models.Snapshot{Job: models.Job{Logs: []models.LogEntry{
		{Time: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), Message: "first"},
	}}}

	var out bytes.Buffer
	assert.Equal(t, 1, printLogs(&out, snap, 5))
	assert.Equal(t, "[09:30:00] first\n", out.String())
}

// holdConn blocks reads until it is closed, like a live channel with no traffic.
type holdConn struct {
	once   sync.Once
	closed chan struct{}
}

func (c *holdConn) ReadMessage() ([]byte, error) {
	<-c.closed
	return nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *holdConn) Close(int, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type holdDialer struct{}

func (holdDialer) Dial(context.Context, string) (channel.Conn, error) {
	return &holdConn{closed: make(chan struct{})}, nil
}

func TestRunSources_CancelClosesChannel(t *testing.T) {
	color.NoColor = true
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, inputprocessor.New(), app.WithSubmitter(stubSubmitter{jobID: "job-9"}), app.WithDialer(holdDialer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runSources(ctx, a, []string{"https://example.com/invoice"}, "total", &out) }()

	assert.Eventually(t, func() bool { return a.Channels.Active("job-9") }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runSources did not return after cancel")
	}
	assert.False(t, a.Channels.Active("job-9"))
}
