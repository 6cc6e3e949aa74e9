package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names written by FileSink.
const (
	TextFile     = "matter_to_ip_mapping.txt"
	CSVFile      = "matter_to_ip_mapping.csv"
	JSONFile     = "matter_to_ip_mapping.json"
	MarkdownFile = "matter_network_info.md"
)

// File permissions for the output directory and artifacts.
const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// FileSink writes the report artifacts into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir. The directory is created on
// first delivery.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Dir returns the output directory.
func (s *FileSink) Dir() string { return s.dir }

// Deliver writes every artifact. Each file is replaced atomically so
// readers never see a partial report.
func (s *FileSink) Deliver(ctx context.Context, run Run) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	jsonData, err := run.Report.JSON()
	if err != nil {
		return err
	}

	artifacts := []struct {
		name string
		data []byte
	}{
		{TextFile, []byte(run.Report.Text)},
		{CSVFile, []byte(run.Report.CSV)},
		{JSONFile, jsonData},
		{MarkdownFile, []byte(run.Report.Markdown)},
	}

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(s.dir, a.name), a.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
