package main

import (
	"flag"
	"log"

	"ligandscreen/adapters/source"
)

func main() {
	input := flag.String("input", "kaggle_zinc_filtered.csv", "Path to the input CSV")
	output := flag.String("output", "kaggle_zinc_filtered_sorted.csv", "Path to write the sorted CSV")
	qedField := flag.String("qed-field", "qed", "Column name for QED (case-insensitive)")
	flag.Parse()

	n, col, err := source.SortCSVFileByQED(*input, *output, *qedField)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %d rows sorted by '%s' (desc) to %s", n, col, *output)
}
