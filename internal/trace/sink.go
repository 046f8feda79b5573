package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonathan/daily-brief/internal/types"
)

// ErrNotFound is returned when no trace exists for a run id.
var ErrNotFound = errors.New("trace not found")

// ErrDuplicateRun is returned when a trace for the run id was already stored.
var ErrDuplicateRun = errors.New("trace already recorded for run")

// Sink persists finished traces. Implementations are append-only: one record
// per run id, never rewritten.
type Sink interface {
	Append(ctx context.Context, trace types.RunTrace) error
}

// Reader loads stored traces.
type Reader interface {
	Load(ctx context.Context, runID string) (types.RunTrace, error)
}

// Store is a Sink that can also read back what it stored.
type Store interface {
	Sink
	Reader
}

// FileSink appends traces as JSON lines to a single log file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates the parent directory of path if needed.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Append writes one line. A run id that is already in the log is rejected.
func (s *FileSink) Append(ctx context.Context, trace types.RunTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(ctx, trace.RunID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, trace.RunID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	line, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append trace: %w", err)
	}
	return f.Close()
}

// Load scans the log for the run id.
func (s *FileSink) Load(ctx context.Context, runID string) (types.RunTrace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, runID)
}

func (s *FileSink) load(ctx context.Context, runID string) (types.RunTrace, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.RunTrace{}, ErrNotFound
	}
	if err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to open trace log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return types.RunTrace{}, err
		}
		var t types.RunTrace
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			continue
		}
		if t.RunID == runID {
			return t, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to read trace log: %w", err)
	}
	return types.RunTrace{}, ErrNotFound
}

// Discard is a Sink that drops every trace.
type Discard struct{}

func (Discard) Append(context.Context, types.RunTrace) error { return nil }
