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
		inputPath  = flag.String("input", "evals.csv", "Input CSV file with fen and score columns")
		outputPath = flag.String("output", "", "Dataset file to write (.zst compresses)")
	)
	flag.Parse()

	if *outputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: import-evals -input evals.csv -output dataset.txt[.zst]")
		os.Exit(2)
	}

	// Open input file
	inFile, err := os.Open(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input file: %v\n", err)
		os.Exit(1)
	}
	defer inFile.Close()

	w, err := dataset.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Importing evals from %s...\n", *inputPath)
	stats, err := dataset.ImportCSV(csv.NewReader(inFile), w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Imported %d evals (skipped %d) into %s\n",
		stats.Imported, stats.Skipped, *outputPath)
}
