// Package sink writes inference output as JSON lines.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"vistara-analytics/pkg/defaults"
	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/ports"
)

type record struct {
	Kind      string                `json:"kind"`
	Detection *models.DetectResult  `json:"detection,omitempty"`
	Feature   *models.FeatureVector `json:"feature,omitempty"`
}

// JSONL appends one JSON object per result to a file. It is safe for
// concurrent use.
type JSONL struct {
	mu   sync.Mutex
	file afero.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// Open creates path (and its directory) on fs and appends to it.
func Open(fs afero.Fs, path string) (*JSONL, error) {
	if err := fs.MkdirAll(filepath.Dir(path), defaults.DataDirPerm); err != nil {
		return nil, fmt.Errorf("creating sink directory for %s: %w", path, err)
	}

	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaults.DataFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening sink %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)

	return &JSONL{file: file, buf: buf, enc: json.NewEncoder(buf), path: path}, nil
}

// Path returns the file the sink writes to.
func (s *JSONL) Path() string {
	return s.path
}

func (s *JSONL) WriteDetection(_ context.Context, result models.DetectResult) error {
	return s.write(record{Kind: "detection", Detection: &result})
}

func (s *JSONL) WriteFeature(_ context.Context, vector models.FeatureVector) error {
	return s.write(record{Kind: "feature", Feature: &vector})
}

func (s *JSONL) write(r record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}

	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("writing %s record: %w", r.Kind, err)
	}

	return s.buf.Flush()
}

// Close flushes and closes the file. It is idempotent.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil

	if flushErr != nil {
		return flushErr
	}

	return closeErr
}

// Discard is a sink that drops everything.
type Discard struct{}

func (Discard) WriteDetection(context.Context, models.DetectResult) error { return nil }
func (Discard) WriteFeature(context.Context, models.FeatureVector) error  { return nil }
func (Discard) Close() error                                              { return nil }

var (
	_ ports.ResultSink = (*JSONL)(nil)
	_ ports.ResultSink = Discard{}
)
