package report

import (
	"bytes"
	"fmt"

	"ligandscreen/domain/screening"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HistogramHTML renders the run's affinity histogram as an HTML bar chart. Runs
// without a summary produce an error.
func HistogramHTML(run *screening.ScreeningRun) ([]byte, error) {
	if run.Summary == nil || len(run.Summary.Histogram) == 0 {
		return nil, fmt.Errorf("run %s has no scored candidates to chart", run.ID)
	}

	labels := make([]string, len(run.Summary.Histogram))
	data := make([]opts.BarData, len(run.Summary.Histogram))
	for i, bin := range run.Summary.Histogram {
		labels[i] = fmt.Sprintf("%.2f-%.2f", bin.Lower, bin.Upper)
		data[i] = opts.BarData{Value: bin.Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Affinity distribution", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Predicted affinity",
			Subtitle: fmt.Sprintf("run=%s scored=%d threshold=%.2f", run.ID, run.Summary.Count, run.Params.MinAffinity),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "affinity", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "candidates"}),
	)
	bar.SetXAxis(labels).
		AddSeries("candidates", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
