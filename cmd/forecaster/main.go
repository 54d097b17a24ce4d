package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"demand-forecast/internal/config"
	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

func main() {
	// Parse command-line flags
	input := flag.String("input", "", "Raw sales file (.xlsx or .csv)")
	output := flag.String("output", "weekly_demand.csv", "Where to write the weekly demand table")
	modelType := flag.String("model", "", "Train every product with this model (xgboost or prophet); empty skips training")
	testRatio := flag.Float64("test-ratio", 0, "Share of each product's weeks held out for evaluation (default from config)")
	resultsDir := flag.String("results-dir", "", "Directory for the results and model files (default from config)")
	plot := flag.Bool("plot", false, "Write a comparison plot of the first product trained")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: forecaster -input sales.xlsx [-output weekly.csv] [-model xgboost|prophet]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *testRatio == 0 {
		*testRatio = cfg.Training.DefaultTestRatio
	}
	if *resultsDir == "" {
		*resultsDir = cfg.Storage.ResultsDir
	}

	logger := logging.NewStructuredLogger("forecaster", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("demand_forecaster", prometheus.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[FORECASTER_START] Processing raw sales file", logging.Fields{
		"input":      *input,
		"output":     *output,
		"model_type": *modelType,
		"test_ratio": *testRatio,
	})

	start := time.Now()
	table, err := pipeline.ReadRawFile(*input)
	if err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to read input", logging.Fields{"input": *input}, err)
	}
	processed, err := pipeline.Process(table)
	if err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to process input", logging.Fields{"input": *input}, err)
	}
	if err := pipeline.SaveWeeklyCSV(*output, processed.Weekly.Points); err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to write weekly table", logging.Fields{"output": *output}, err)
	}

	printProcessing(processed, time.Since(start))

	if *modelType == "" {
		return
	}

	mt, err := models.ParseModelType(*modelType)
	if err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Invalid model type", logging.Fields{}, err)
	}
	trainer, err := forecast.NewRegistry().Trainer(mt, nil)
	if err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to build trainer", logging.Fields{}, err)
	}

	runID := time.Now().UTC().Format("20060102_150405")
	opts := forecast.BatchOptions{TestRatio: *testRatio, Refit: true}
	if *plot {
		opts.PlotDir = cfg.Storage.PlotsDir
		opts.PlotName = fmt.Sprintf("%s_%s", mt, runID)
	}

	result, err := forecast.NewBatchTrainer(logger, metricsCollector).TrainAll(ctx, trainer, processed.Weekly.Points, opts)
	if err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Training failed", logging.Fields{}, err)
	}

	now := time.Now().UTC()
	resultsFile := filepath.Join(*resultsDir, fmt.Sprintf("%s_results_%s.json", mt, runID))
	if err := forecast.SaveResults(resultsFile, result.Results(now)); err != nil {
		logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to save results", logging.Fields{"path": resultsFile}, err)
	}

	var modelFile string
	if result.TotalProductsTrained > 0 {
		bundle, err := forecast.NewBundle(mt, runID, result.Models, now)
		if err == nil {
			modelFile = filepath.Join(*resultsDir, fmt.Sprintf("%s_%s.json", mt, runID))
			err = forecast.SaveBundle(modelFile, bundle)
		}
		if err != nil {
			logger.Fatal(ctx, "[FORECASTER_ERROR] Failed to save models", logging.Fields{}, err)
		}
	}

	printTraining(result, resultsFile, modelFile)

	logger.Info(ctx, "[FORECASTER_COMPLETE] Forecasting run completed", logging.Fields{
		"products_trained": result.TotalProductsTrained,
		"products_skipped": len(result.Skipped),
		"products_failed":  len(result.Failed),
		"duration_seconds": time.Since(start).Seconds(),
	})
}

func printProcessing(p *pipeline.Processed, elapsed time.Duration) {
	r, s := p.Report, p.Weekly.Stats

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("PROCESSING COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rows Read:            %d\n", r.RowsRead)
	fmt.Printf("Dropped (nulls):      %d\n", r.DroppedNull)
	fmt.Printf("Dropped (filter):     %d\n", r.DroppedFilter)
	fmt.Printf("Dropped (quantity):   %d\n", r.DroppedNonPositive)
	fmt.Printf("Dropped (bad date):   %d\n", r.DroppedBadDate)
	fmt.Printf("Products Kept:        %d\n", r.ProductsKept)
	fmt.Printf("Products Excluded:    %d\n", r.ProductsExcluded)
	fmt.Printf("Weekly Rows:          %d\n", r.WeeklyRows)
	fmt.Printf("Weeks:                %d (%s to %s)\n", s.TotalWeeks, s.MinWeek, s.MaxWeek)
	fmt.Printf("Duration:             %v\n", elapsed.Round(time.Millisecond))
}

func printTraining(r *forecast.BatchResult, resultsFile, modelFile string) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("TRAINING COMPLETE (%s)\n", r.ModelType)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Products Trained:     %d of %d\n", r.TotalProductsTrained, len(r.Products))
	for _, name := range forecast.MetricNames {
		if v, ok := r.Average[name]; ok {
			fmt.Printf("Average %-13s %.4f\n", strings.ToUpper(name)+":", v)
		}
	}
	fmt.Printf("Results File:         %s\n", resultsFile)
	if modelFile != "" {
		fmt.Printf("Model File:           %s\n", modelFile)
	}
	if r.PlotFile != "" {
		fmt.Printf("Plot File:            %s\n", r.PlotFile)
	}

	failures := append(append([]forecast.ProductFailure{}, r.Skipped...), r.Failed...)
	if len(failures) > 0 {
		fmt.Printf("\nLeft out (%d):\n", len(failures))
		for i, f := range failures {
			if i == 10 {
				fmt.Printf("  ... and %d more\n", len(failures)-10)
				break
			}
			fmt.Printf("  - %s: %s\n", f.ItemCode, f.Error)
		}
	}
}
