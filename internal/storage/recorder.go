package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"stealthgate/internal/engine/controller"
	"stealthgate/internal/shared/logger"
)

// Recorder persists engine snapshots for observability. Records are outbound
// only; the engine never reads them back, pools are always rebuilt from
// configuration at process start.
type Recorder interface {
	Record(snap *controller.Snapshot) error
	Close() error
}

// FileRecorder appends snapshots as JSON lines to a single file, one record
// per line, so external tooling can tail it.
type FileRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileRecorder opens (or creates) the snapshot file for appending.
func NewFileRecorder(filePath string) (*FileRecorder, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	l := logger.WithComponent("SnapshotRecorder")
	l.Info().Str("path", filePath).Msg("Snapshot recorder ready.")
	return &FileRecorder{file: f, enc: json.NewEncoder(f)}, nil
}

// Record appends one snapshot line.
func (r *FileRecorder) Record(snap *controller.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
