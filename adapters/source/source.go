package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/ports"
)

// CSVSource loads candidates from a CSV file with a header row
type CSVSource struct {
	Path  string
	Limit int
}

func (s *CSVSource) Name() string { return filepath.Base(s.Path) }

// Load reads the file; the returned slice is in file order
func (s *CSVSource) Load(ctx context.Context) ([]screening.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := internal.DefaultLogger.With("CSVSource")
	logger.Info("reading %s", s.Path)

	rows, err := readCSVRows(s.Path)
	if err != nil {
		return nil, err
	}
	return candidatesFromRows(rows, s.Limit, logger)
}

// XLSXSource loads candidates from one sheet of a workbook
type XLSXSource struct {
	Path  string
	Sheet string
	Limit int
}

func (s *XLSXSource) Name() string { return filepath.Base(s.Path) }

func (s *XLSXSource) Load(ctx context.Context) ([]screening.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := internal.DefaultLogger.With("XLSXSource")
	logger.Info("reading %s", s.Path)

	rows, err := readXLSXRows(s.Path, s.Sheet)
	if err != nil {
		return nil, err
	}
	return candidatesFromRows(rows, s.Limit, logger)
}

// SliceSource serves a fixed candidate list
type SliceSource struct {
	Label      string
	Candidates []screening.Candidate
}

func (s *SliceSource) Name() string {
	if s.Label == "" {
		return "inline"
	}
	return s.Label
}

// Load returns a copy so callers cannot mutate the backing slice
func (s *SliceSource) Load(ctx context.Context) ([]screening.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]screening.Candidate, len(s.Candidates))
	copy(out, s.Candidates)
	return out, nil
}

// Open returns a CSV or XLSX source by file extension
func Open(path string, limit int) (ports.CandidateSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("candidate file not found: %w", err)
	}
	if isXLSX(path) {
		return &XLSXSource{Path: path, Limit: limit}, nil
	}
	return &CSVSource{Path: path, Limit: limit}, nil
}
