// Package publish persists finished briefs outside the pipeline.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/daily-brief/internal/schemas"
	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

const slugLength = 60

// Receipt records where a brief was published.
type Receipt struct {
	Location string   `json:"location"`
	Files    []string `json:"files"`
}

// Publisher accepts finished briefs.
type Publisher interface {
	Publish(ctx context.Context, brief types.Brief) (Receipt, error)
}

// FilePublisher writes <dir>/<yyyy-mm-dd>-<slug>.md and .json.
type FilePublisher struct {
	dir string
}

// NewFilePublisher creates a FilePublisher rooted at dir.
func NewFilePublisher(dir string) *FilePublisher {
	return &FilePublisher{dir: dir}
}

// BaseName is the file stem for a brief.
func BaseName(brief types.Brief) string {
	slug := textutil.Slug(brief.Topic, slugLength)
	if slug == "" {
		slug = "brief"
	}
	return brief.GeneratedAt.UTC().Format("2006-01-02") + "-" + slug
}

// Publish validates the brief and writes both files.
func (p *FilePublisher) Publish(ctx context.Context, brief types.Brief) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	data, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal brief: %w", err)
	}
	if err := schemas.Validate(schemas.Brief, data); err != nil {
		return Receipt{}, fmt.Errorf("brief failed validation: %w", err)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("failed to create publish directory: %w", err)
	}

	base := filepath.Join(p.dir, BaseName(brief))
	mdPath, jsonPath := base+".md", base+".json"
	if err := writeFile(mdPath, []byte(brief.Text)); err != nil {
		return Receipt{}, err
	}
	if err := writeFile(jsonPath, append(data, '\n')); err != nil {
		return Receipt{}, err
	}
	return Receipt{Location: p.dir, Files: []string{mdPath, jsonPath}}, nil
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".brief-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Discard is a Publisher that does nothing.
type Discard struct{}

func (Discard) Publish(context.Context, types.Brief) (Receipt, error) { return Receipt{}, nil }
