package extractor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"structurizer/internal/models"
)

func TestSubmit_SendsEverySourceInOneRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("total: 42"), 0o600))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Extract name and total", r.FormValue("target_schema"))
		assert.Equal(t, "mixed", r.FormValue("source_type"))
		assert.Equal(t, []string{"https://example.com/a"}, r.MultipartForm.Value["raw_input"])

		files := r.MultipartForm.File["file"]
		require.Len(t, files, 1)
		assert.Equal(t, "invoice.txt", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "total: 42", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"job-7","message":"Upload started."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	jobID, err := c.Submit(context.Background(), []models.Source{
		{ID: "1", Kind: models.SourceKindFile, Name: "invoice.txt", Path: path},
		{ID: "2", Kind: models.SourceKindURL, URL: "https://example.com/a"},
	}, "Extract name and total")

	require.NoError(t, err)
	assert.Equal(t, "job-7", jobID)
	assert.Equal(t, 1, calls)
}

func TestSubmit_RejectedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"target_schema missing"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), []models.Source{{ID: "1", Kind: models.SourceKindURL, URL: "https://x"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "target_schema missing")
}

func TestSubmit_MissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), []models.Source{{ID: "1", Kind: models.SourceKindURL, URL: "https://x"}}, "s")
	assert.ErrorIs(t, err, models.ErrEmptyJobID)
}

func TestSubmit_NoSources(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", time.Second)
	_, err := c.Submit(context.Background(), nil, "s")
	assert.ErrorIs(t, err, models.ErrNoSources)
}

func TestSourceType(t *testing.T) {
	assert.Equal(t, "file", sourceType([]models.Source{{Kind: models.SourceKindFile}}))
	assert.Equal(t, "web", sourceType([]models.Source{{Kind: models.SourceKindURL}}))
	assert.Equal(t, "mixed", sourceType([]models.Source{{Kind: models.SourceKindURL}, {Kind: models.SourceKindFile}}))
}
