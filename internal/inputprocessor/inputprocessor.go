// Package inputprocessor turns user-supplied inputs (file paths, directories and
// URLs) into sources ready for submission.
package inputprocessor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"structurizer/internal/fileingest"
	"structurizer/internal/models"
)

// Processor classifies a single input.
type Processor interface {
	Process(ctx context.Context, input string) ([]models.Source, error)
}

// New creates the default processor.
func New() Processor {
	return &defaultProcessor{}
}

type defaultProcessor struct{}

// Process detects whether input is a file, a directory or an http(s) URL. A
// directory expands to every supported file below it. Anything else is rejected
// with ErrUnsupportedInput.
func (p *defaultProcessor) Process(ctx context.Context, input string) ([]models.Source, error) {
	// --- Detect File ---
	fi, err := os.Stat(input)
	if err == nil {
		if fi.IsDir() {
			log.Debugf("Input '%s' is a directory, discovering files.", input)
			metas, walkErr := fileingest.DiscoverFiles(ctx, input)
			if walkErr != nil {
				return nil, fmt.Errorf("failed to scan directory '%s': %w", input, walkErr)
			}
			if len(metas) == 0 {
				return nil, fmt.Errorf("directory '%s' has no supported files: %w", input, models.ErrUnsupportedInput)
			}
			sources := make([]models.Source, 0, len(metas))
			for _, m := range metas {
				sources = append(sources, FileSource(m))
			}
			return sources, nil
		}
		meta, metaErr := fileingest.ExtractFileMeta(input)
		if metaErr != nil {
			return nil, fmt.Errorf("failed to stat file '%s': %w", input, metaErr)
		}
		log.Debugf("Input '%s' detected as a file.", input)
		return []models.Source{FileSource(meta)}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat input '%s': %w", input, err)
	}

	// --- Detect URL ---
	src, urlErr := URLSource(input)
	if urlErr != nil {
		return nil, urlErr
	}
	log.Debugf("Input '%s' detected as a URL.", input)
	return []models.Source{src}, nil
}

// ProcessAll classifies every input in order and concatenates the results.
func ProcessAll(ctx context.Context, p Processor, inputs []string) ([]models.Source, error) {
	var out []models.Source
	for _, in := range inputs {
		sources, err := p.Process(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, sources...)
	}
	return out, nil
}

// FileSource builds a pending file source from its metadata.
func FileSource(meta fileingest.FileMeta) models.Source {
	path := meta.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	} else {
		log.Warnf("Failed to get absolute path for '%s': %v. Using original path.", meta.Path, err)
	}
	return models.Source{
		ID:     uuid.NewString(),
		Kind:   models.SourceKindFile,
		Name:   meta.Name,
		Size:   meta.Size,
		Path:   path,
		Status: models.SourceStatusPending,
	}
}

// URLSource builds a pending URL source. Only http and https are accepted.
func URLSource(raw string) (models.Source, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Source{}, fmt.Errorf("'%s': %w", raw, models.ErrUnsupportedInput)
	}
	return models.Source{
		ID:     uuid.NewString(),
		Kind:   models.SourceKindURL,
		Name:   u.Host + u.EscapedPath(),
		URL:    u.String(),
		Status: models.SourceStatusPending,
	}, nil
}
