package render

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"vistara-analytics/pkg/defaults"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/stats"
)

// SnapshotFile is a StatsObserver that rewrites a JSON document with the
// latest statistics on every tick. The file is replaced atomically so
// readers never see a partial document.
type SnapshotFile struct {
	fs     afero.Fs
	path   string
	runID  string
	clock  quartz.Clock
	logger *logrus.Entry
}

type snapshotDoc struct {
	RunID     string         `json:"run_id"`
	UpdatedAt time.Time      `json:"updated_at"`
	Stats     stats.Snapshot `json:"stats"`
}

// NewSnapshotFile creates the observer. The directory of path is created on
// first write.
func NewSnapshotFile(fs afero.Fs, path, runID string, clock quartz.Clock, logger *logrus.Entry) *SnapshotFile {
	return &SnapshotFile{fs: fs, path: path, runID: runID, clock: clock, logger: logger}
}

// ObserveStats implements ports.StatsObserver.
func (s *SnapshotFile) ObserveStats(snapshot stats.Snapshot) {
	if err := s.Write(snapshot); err != nil {
		s.logger.Warnf("writing stats snapshot: %v", err)
	}
}

// Write stores snapshot at the observer's path.
func (s *SnapshotFile) Write(snapshot stats.Snapshot) error {
	data, err := json.MarshalIndent(snapshotDoc{RunID: s.runID, UpdatedAt: s.clock.Now(), Stats: snapshot}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), defaults.DataDirPerm); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, defaults.DataFilePerm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	return s.fs.Rename(tmp, s.path)
}

var _ ports.StatsObserver = (*SnapshotFile)(nil)
