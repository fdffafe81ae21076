package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ligandscreen/domain/screening"
	"ligandscreen/internal"
)

// DirectoryReporter writes <runID>.json, .md, .html, .xlsx and, when scores exist,
// a <runID>-histogram.html chart into Dir.
type DirectoryReporter struct {
	Dir    string
	logger *internal.Logger
}

// NewDirectoryReporter creates a reporter writing into dir
func NewDirectoryReporter(dir string) *DirectoryReporter {
	return &DirectoryReporter{Dir: dir, logger: internal.DefaultLogger.With("DirectoryReporter")}
}

// Report implements ports.ResultReporter
func (r *DirectoryReporter) Report(ctx context.Context, run *screening.ScreeningRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := run.ID.String()
	if !filepath.IsLocal(name) || filepath.Base(name) != name {
		return fmt.Errorf("run ID %q is not usable as a file name", name)
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(r.Dir, name)

	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if err := os.WriteFile(base+".json", raw, 0o644); err != nil {
		return fmt.Errorf("write run json: %w", err)
	}
	if err := os.WriteFile(base+".md", []byte(Markdown(run)), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	if err := os.WriteFile(base+".html", HTML(run), 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}

	var xlsx bytes.Buffer
	if err := WriteXLSX(&xlsx, run); err != nil {
		return fmt.Errorf("render xlsx report: %w", err)
	}
	if err := os.WriteFile(base+".xlsx", xlsx.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write xlsx report: %w", err)
	}

	if run.Summary != nil {
		chart, err := HistogramHTML(run)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+"-histogram.html", chart, 0o644); err != nil {
			return fmt.Errorf("write histogram: %w", err)
		}
	}

	r.logger.Info("wrote reports for run %s to %s", run.ID, r.Dir)
	return nil
}
