package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
)

// FileSource replays captured provider payloads from a directory containing
// configuration.json and schedule.json. Useful for development and for
// reproducing a scrape offline.
type FileSource struct {
	dir string
}

// NewFileSource builds a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// FetchConfiguration reads and validates configuration.json.
func (f *FileSource) FetchConfiguration(_ context.Context) (*schedule.ProviderConfig, error) {
	var cfg schedule.ProviderConfig
	if err := f.readJSON("configuration.json", &cfg); err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	return &cfg, nil
}

// FetchSchedule reads and validates schedule.json. The captured window is
// returned as-is; from/to are ignored.
func (f *FileSource) FetchSchedule(_ context.Context, _, _ time.Time) (*schedule.Schedule, error) {
	var sched schedule.Schedule
	if err := f.readJSON("schedule.json", &sched); err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	return &sched, nil
}

func (f *FileSource) readJSON(name string, out interface{}) error {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", schedule.ErrInvalidData, name, err)
	}
	return nil
}
