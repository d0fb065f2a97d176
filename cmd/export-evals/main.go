package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"

	"github.com/wspeirs/fishermann/internal/dataset"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "Dataset file written by selfplay (.zst supported)")
		outputPath = flag.String("output", "evals.csv", "Output CSV file")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: export-evals -input dataset.txt[.zst] [-output evals.csv]")
		os.Exit(2)
	}

	fmt.Printf("Opening dataset: %s\n", *inputPath)
	r, err := dataset.Open(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open dataset: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	// Create output file
	outFile, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	n, err := dataset.ExportCSV(r, csv.NewWriter(outFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "export after %d records: %v\n", n, err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Exported %d evals to %s\n", n, *outputPath)
}
