package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"demand-forecast/internal/pipeline"
	"demand-forecast/internal/sampledata"
)

func main() {
	defaults := sampledata.DefaultOptions()

	output := flag.String("output", "sample_sales.xlsx", "Output file (.xlsx or .csv)")
	products := flag.Int("products", defaults.Products, "Number of products")
	weeks := flag.Int("weeks", defaults.Weeks, "Number of weeks")
	start := flag.String("start", defaults.Start.Format(pipeline.DateLayout), "First week (YYYY-MM-DD, a Monday)")
	seed := flag.Int64("seed", defaults.Seed, "Random seed")
	clean := flag.Bool("clean", false, "Leave out rows the cleaning stage would drop")
	flag.Parse()

	ext, err := pipeline.CheckExtension(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid output: %v\n", err)
		os.Exit(2)
	}
	first, err := time.Parse(pipeline.DateLayout, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid start date: %v\n", err)
		os.Exit(2)
	}
	if *products <= 0 || *weeks <= 0 {
		fmt.Fprintln(os.Stderr, "products and weeks must be positive")
		os.Exit(2)
	}

	table := sampledata.Generate(sampledata.Options{
		Products: *products,
		Weeks:    *weeks,
		Start:    pipeline.WeekStart(first),
		Seed:     *seed,
		Noise:    !*clean,
	})

	if dir := filepath.Dir(*output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	if ext == pipeline.ExtXLSX {
		err = sampledata.WriteXLSX(*output, table)
	} else {
		err = writeCSV(*output, table)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *output, err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("SAMPLE DATA GENERATED")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Output:     %s\n", *output)
	fmt.Printf("Rows:       %d\n", len(table.Rows))
	fmt.Printf("Products:   %d\n", *products)
	fmt.Printf("Weeks:      %d\n", *weeks)
}

func writeCSV(path string, table *pipeline.RawTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sampledata.WriteCSV(f, table); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
