package report

import (
	"io"

	"ligandscreen/domain/screening"

	"github.com/xuri/excelize/v2"
)

const (
	candidatesSheet = "Top Candidates"
	summarySheet    = "Summary"
)

// WriteXLSX writes the run as a workbook with the ranked candidates and a summary sheet
func WriteXLSX(w io.Writer, run *screening.ScreeningRun) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", candidatesSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(candidatesSheet, "A1", &[]interface{}{"Rank", "SMILES", "Affinity", "QED", "MW", "logP", "Input index"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(candidatesSheet, "A1", "G1", header); err != nil {
		return err
	}
	for i, c := range run.TopCandidates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{c.Rank, c.SMILES, c.Affinity, c.QED, cellValue(c.MolecularWeight), cellValue(c.LogP), c.InputIndex}
		if err := f.SetSheetRow(candidatesSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(candidatesSheet, "B", "B", 48); err != nil {
		return err
	}

	summary := [][]interface{}{
		{"Run", run.ID.String()},
		{"Candidates screened", run.TotalScreened},
		{"Attempted", run.Attempted},
		{"Failed", run.Failed},
		{"Passed threshold", run.PassedThreshold},
		{"Min affinity", run.Params.MinAffinity},
		{"Top N", run.Params.TopN},
		{"Concurrency", run.Params.Concurrency},
		{"Processing ms", float64(run.ProcessingDuration.Microseconds()) / 1000},
		{"Cancelled", run.Cancelled},
	}
	if run.TruncatedFrom > 0 {
		summary = append(summary, []interface{}{"Candidate pool (capped)", run.TruncatedFrom})
	}
	if s := run.Summary; s != nil {
		summary = append(summary,
			[]interface{}{"Mean affinity", s.Mean},
			[]interface{}{"Median affinity", s.Median},
			[]interface{}{"Std dev", s.StdDev},
			[]interface{}{"P10", s.P10},
			[]interface{}{"P90", s.P90},
		)
	}
	if run.TopRationale != nil {
		summary = append(summary, []interface{}{"Top rationale", *run.TopRationale})
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 24); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func cellValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
