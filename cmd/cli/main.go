package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ligandscreen/adapters/report"
	"ligandscreen/adapters/source"
	"ligandscreen/app"
	"ligandscreen/domain/screening"
	"ligandscreen/internal/config"
	"ligandscreen/internal/container"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ligandscreen",
		Short: "Screen ligand candidates against a protein target",
	}

	rootCmd.AddCommand(
		newScreenCmd(),
		newQEDSortCmd(),
	)

	// Ctrl-C ends a screening early with the candidates scored so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type screenOptions struct {
	file        string
	sequence    string
	pocket      string
	topN        int
	minAffinity float64
	concurrency int
	timeout     time.Duration
	limit       int
	jsonOut     bool
	xlsxPath    string
	htmlPath    string
	chartPath   string
}

func newScreenCmd() *cobra.Command {
	var opts screenOptions

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Run one screening over a candidate file and print the report",
		Long: `Scores every candidate in a CSV or XLSX file against the target, keeps those at or
above the affinity threshold and prints the ranked top N as Markdown.

Example: ligandscreen screen --file zinc_sorted.csv --sequence MKTAYIAKQR... --top-n 10 --min-affinity 6.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Candidate CSV/XLSX file (defaults to CANDIDATE_FILE)")
	cmd.Flags().StringVar(&opts.sequence, "sequence", "", "Full target protein sequence (required)")
	cmd.Flags().StringVar(&opts.pocket, "pocket", "", "Binding pocket residue sequence")
	cmd.Flags().IntVar(&opts.topN, "top-n", 0, "Number of top candidates to keep (default from SCREEN_TOP_N)")
	cmd.Flags().Float64Var(&opts.minAffinity, "min-affinity", -1, "Minimum affinity to keep (default from SCREEN_MIN_AFFINITY)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Oracle calls in flight (default from SCREEN_CONCURRENCY)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Overall deadline (default from SCREEN_TIMEOUT)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Read at most this many candidates")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run as JSON instead of Markdown")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Also write an XLSX report to this path")
	cmd.Flags().StringVar(&opts.htmlPath, "html", "", "Also write an HTML report to this path")
	cmd.Flags().StringVar(&opts.chartPath, "chart", "", "Also write the affinity histogram chart to this path")
	_ = cmd.MarkFlagRequired("sequence")

	return cmd
}

func runScreen(cmd *cobra.Command, opts screenOptions) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.file != "" {
		cfg.Data.CandidateFile = opts.file
	}
	if cfg.Data.CandidateFile == "" {
		return fmt.Errorf("no candidate file: pass --file or set CANDIDATE_FILE")
	}
	if opts.limit > 0 {
		cfg.Data.CandidateLimit = opts.limit
	}
	if opts.timeout > 0 {
		cfg.Screening.Timeout = opts.timeout
	}

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())
	svc := c.Wire()

	req := app.ScreeningRequest{
		Target:      screening.TargetContext{FullSequence: opts.sequence, PocketSequence: opts.pocket},
		Concurrency: opts.concurrency,
	}
	if opts.topN > 0 {
		req.TopN = &opts.topN
	}
	if opts.minAffinity >= 0 {
		req.MinAffinity = &opts.minAffinity
	}

	run, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, report.Markdown(run))
	}

	return writeExtraReports(run, opts)
}

func writeExtraReports(run *screening.ScreeningRun, opts screenOptions) error {
	if opts.htmlPath != "" {
		if err := os.WriteFile(opts.htmlPath, report.HTML(run), 0o644); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}
	if opts.xlsxPath != "" {
		f, err := os.Create(opts.xlsxPath)
		if err != nil {
			return err
		}
		if err := report.WriteXLSX(f, run); err != nil {
			f.Close()
			return fmt.Errorf("write xlsx report: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if opts.chartPath != "" {
		chart, err := report.HistogramHTML(run)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.chartPath, chart, 0o644); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
	}
	return nil
}

func newQEDSortCmd() *cobra.Command {
	var input, output, qedField string

	cmd := &cobra.Command{
		Use:   "qedsort",
		Short: "Sort a candidate CSV by QED, descending",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, col, err := source.SortCSVFileByQED(input, output, qedField)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows sorted by '%s' (desc) to %s\n", n, col, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "kaggle_zinc_filtered.csv", "Path to the input CSV")
	cmd.Flags().StringVar(&output, "output", "kaggle_zinc_filtered_sorted.csv", "Path to write the sorted CSV")
	cmd.Flags().StringVar(&qedField, "qed-field", "qed", "Column name for QED (case-insensitive)")

	return cmd
}
