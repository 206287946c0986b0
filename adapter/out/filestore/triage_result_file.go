// Package filestore keeps run output and catalog metadata in local JSON files.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// ResultFile writes the ranked records of a run as an indented JSON array.
// Each run overwrites the previous file.
type ResultFile struct {
	path string
}

var (
	_ out.ResultSink   = (*ResultFile)(nil)
	_ out.ResultReader = (*ResultFile)(nil)
)

// NewResultFile creates a sink writing to path.
func NewResultFile(path string) *ResultFile {
	return &ResultFile{path: path}
}

// Path returns the output file path.
func (f *ResultFile) Path() string { return f.path }

// Write implements out.ResultSink.
func (f *ResultFile) Write(ctx context.Context, _ out.RunInfo, records []*domain.ResultRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []*domain.ResultRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return writeAtomic(f.path, data)
}

// Read loads the records written by the last run.
func (f *ResultFile) Read() ([]*domain.ResultRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var records []*domain.ResultRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", f.path, err)
	}
	return records, nil
}

// LatestRun implements out.ResultReader. A missing file means no run yet.
func (f *ResultFile) LatestRun(ctx context.Context) ([]*domain.ResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := f.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("triage run")
	}
	return records, err
}

// writeAtomic writes through a temp file in the same directory and renames it.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
