package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ligandscreen/domain/screening"
	"ligandscreen/internal"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is read when an XLSX source names no sheet
const DefaultSheet = "Sheet1"

// column aliases, matched case-insensitively against the header row
var (
	smilesColumns = []string{"smiles", "canonical_smiles", "ligand_smiles"}
	qedColumns    = []string{"qed"}
	mwColumns     = []string{"mw", "molecular_weight", "molwt"}
	logPColumns   = []string{"logp", "mollogp", "clogp"}
)

// readCSVRows reads every record of a CSV file, tolerating ragged rows
func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return parseCSV(file)
}

func parseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

// readXLSXRows reads one sheet of a workbook
func readXLSXRows(path, sheet string) ([][]string, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	return rows, nil
}

// columnIndex maps each known field to its position in the header, or -1
type columnIndex struct {
	smiles, qed, mw, logP int
}

func resolveColumns(header []string) (columnIndex, error) {
	lookup := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := lookup[key]; !seen {
			lookup[key] = i
		}
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := lookup[a]; ok {
				return i
			}
		}
		return -1
	}

	idx := columnIndex{
		smiles: find(smilesColumns),
		qed:    find(qedColumns),
		mw:     find(mwColumns),
		logP:   find(logPColumns),
	}
	if idx.smiles < 0 {
		return idx, fmt.Errorf("no SMILES column found; available columns: %s", strings.Join(header, ", "))
	}
	return idx, nil
}

// candidatesFromRows converts a header row plus data rows into candidates in file
// order. Rows with a blank SMILES are skipped; limit <= 0 means no limit.
func candidatesFromRows(rows [][]string, limit int, logger *internal.Logger) ([]screening.Candidate, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	idx, err := resolveColumns(rows[0])
	if err != nil {
		return nil, err
	}

	start := time.Now()
	candidates := make([]screening.Candidate, 0, len(rows)-1)
	skipped := 0
	for line, row := range rows[1:] {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		smiles := cell(row, idx.smiles)
		if smiles == "" {
			skipped++
			continue
		}

		c := screening.Candidate{SMILES: smiles}
		if raw := cell(row, idx.qed); raw != "" {
			if qed, err := strconv.ParseFloat(raw, 64); err == nil {
				c.QED = qed
			} else {
				logger.Debug("row %d: unparsable QED %q, using 0", line+2, raw)
			}
		}
		c.MolecularWeight = optionalFloat(cell(row, idx.mw))
		c.LogP = optionalFloat(cell(row, idx.logP))
		candidates = append(candidates, c)
	}

	logger.Info("loaded %d candidates (%d rows without SMILES skipped) in %.2fms",
		len(candidates), skipped, float64(time.Since(start).Nanoseconds())/1e6)
	return candidates, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optionalFloat(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func isXLSX(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}
