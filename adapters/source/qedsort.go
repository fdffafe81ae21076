package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ResolveColumn finds name in header case-insensitively and returns its index
func ResolveColumn(header []string, name string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("QED column '%s' not found. Available columns: %s", name, strings.Join(header, ", "))
}

// SortByQED orders data rows by the QED column descending. Rows whose value does
// not parse sort last; equal keys keep file order. The input is not modified.
func SortByQED(rows [][]string, col int) [][]string {
	keys := make([]float64, len(rows))
	for i, row := range rows {
		keys[i] = math.Inf(-1)
		if col < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64); err == nil && !math.IsNaN(v) {
				keys[i] = v
			}
		}
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] > keys[order[b]]
	})

	out := make([][]string, len(rows))
	for i, j := range order {
		out[i] = rows[j]
	}
	return out
}

// SortCSVByQED reads a CSV from r, sorts it by qedField and writes it to w with the
// header unchanged. It returns the number of data rows and the matched column name.
func SortCSVByQED(r io.Reader, w io.Writer, qedField string) (int, string, error) {
	rows, err := parseCSV(r)
	if err != nil {
		return 0, "", err
	}
	if len(rows) == 0 {
		return 0, "", fmt.Errorf("input CSV is missing a header row")
	}
	header := rows[0]
	col, err := ResolveColumn(header, qedField)
	if err != nil {
		return 0, "", err
	}

	sorted := SortByQED(rows[1:], col)

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return 0, "", err
	}
	if err := writer.WriteAll(sorted); err != nil {
		return 0, "", err
	}
	return len(sorted), header[col], nil
}

// SortCSVFileByQED sorts the CSV at input into output, creating output's directory
func SortCSVFileByQED(input, output, qedField string) (int, string, error) {
	in, err := os.Open(input)
	if err != nil {
		return 0, "", fmt.Errorf("input file not found: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, "", err
	}
	out, err := os.Create(output)
	if err != nil {
		return 0, "", err
	}

	n, col, err := SortCSVByQED(in, out, qedField)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, col, err
}
