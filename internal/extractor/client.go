// Package extractor talks to the remote extraction service's HTTP API.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"structurizer/internal/models"
)

// Submitter performs the single submission call for a batch of sources.
type Submitter interface {
	Submit(ctx context.Context, sources []models.Source, schema string) (string, error)
}

// Client is the HTTP implementation of Submitter.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Submitter = (*Client)(nil)

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// UploadResponse is the service's reply to an upload.
type UploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// Submit uploads every source plus the target schema in one multipart request and
// returns the job id the service assigned.
func (c *Client) Submit(ctx context.Context, sources []models.Source, schema string) (string, error) {
	if len(sources) == 0 {
		return "", models.ErrNoSources
	}

	body, contentType, err := encodeUpload(sources, schema)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	log.WithField("sources", len(sources)).Debugf("submitting batch to %s", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		hint, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload rejected: status %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(hint)))
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("upload response: %w", models.ErrEmptyJobID)
	}
	log.WithField("job_id", out.JobID).Infof("batch accepted: %s", out.Message)
	return out.JobID, nil
}

// Ping checks that the service answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// sourceType summarizes the batch the way the service's source_type field expects.
func sourceType(sources []models.Source) string {
	var files, urls int
	for _, s := range sources {
		switch s.Kind {
		case models.SourceKindFile:
			files++
		case models.SourceKindURL:
			urls++
		}
	}
	switch {
	case urls == 0:
		return "file"
	case files == 0:
		return "web"
	default:
		return "mixed"
	}
}

func encodeUpload(sources []models.Source, schema string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("target_schema", schema); err != nil {
		return nil, "", fmt.Errorf("write schema field: %w", err)
	}
	if err := w.WriteField("source_type", sourceType(sources)); err != nil {
		return nil, "", fmt.Errorf("write source_type field: %w", err)
	}

	for _, src := range sources {
		switch src.Kind {
		case models.SourceKindURL:
			if err := w.WriteField("raw_input", src.URL); err != nil {
				return nil, "", fmt.Errorf("write url %s: %w", src.URL, err)
			}
		case models.SourceKindFile:
			if err := writeFilePart(w, src); err != nil {
				return nil, "", err
			}
		default:
			return nil, "", fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, src models.Source) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src.Name, err)
	}
	defer f.Close()

	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("create file part %s: %w", name, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy source %s: %w", name, err)
	}
	return nil
}
