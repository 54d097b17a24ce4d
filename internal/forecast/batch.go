package forecast

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// BatchOptions controls a whole-dataset training pass.
type BatchOptions struct {
	TestRatio float64

	// Refit retrains each evaluated product on its full series so the
	// stored model has seen the most recent weeks.
	Refit bool

	// PlotDir, when set, receives a comparison plot of the first product
	// trained. PlotName prefixes its file name.
	PlotDir  string
	PlotName string
}

// ProductFailure records a product left out of the results.
type ProductFailure struct {
	ItemCode string `json:"item_code"`
	Error    string `json:"error"`
}

// BatchResult is the outcome of training every product of a dataset.
type BatchResult struct {
	ModelType            models.ModelType
	Products             []string
	PerProduct           map[string]models.Metrics
	Average              models.MetricMap
	TotalProductsTrained int
	Skipped              []ProductFailure
	Failed               []ProductFailure
	Models               map[string]FittedModel
	FeatureImportance    map[string]float64
	PlotFile             string
	Duration             time.Duration
}

// BatchTrainer trains one model per product, isolating per-product
// failures from the rest of the batch.
type BatchTrainer struct {
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewBatchTrainer creates a batch trainer.
func NewBatchTrainer(logger logging.Logger, m *metrics.Collector) *BatchTrainer {
	return &BatchTrainer{logger: logger, metrics: m}
}

// TrainFile loads a processed weekly dataset and trains every product in it.
func (b *BatchTrainer) TrainFile(ctx context.Context, trainer Trainer, datasetFile string, opts BatchOptions) (*BatchResult, error) {
	points, err := pipeline.LoadWeeklyCSV(datasetFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetFile, err)
	}
	return b.TrainAll(ctx, trainer, points, opts)
}

// TrainAll evaluates trainer on every product in discovery order. Products
// that fail are logged and left out of the per-product map and average;
// only dataset-level problems are returned as errors.
func (b *BatchTrainer) TrainAll(ctx context.Context, trainer Trainer, points []models.WeeklyDemandPoint, opts BatchOptions) (*BatchResult, error) {
	start := time.Now()
	modelType := trainer.Type()

	if err := pipeline.ValidateTestRatio(opts.TestRatio); err != nil {
		return nil, err
	}
	series := pipeline.GroupByProduct(points)
	if len(series) == 0 {
		return nil, &models.InsufficientDataError{Scope: "training dataset", Need: 1}
	}

	b.logger.Info(ctx, "[TRAIN_BATCH_START] Training all products", logging.Fields{
		"model_type": modelType,
		"products":   len(series),
		"test_ratio": opts.TestRatio,
	})

	result := &BatchResult{
		ModelType:  modelType,
		PerProduct: make(map[string]models.Metrics),
		Models:     make(map[string]FittedModel),
	}
	importance := make(map[string]float64)

	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		eval, err := b.evaluate(ctx, trainer, s, opts.TestRatio)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.recordFailure(ctx, result, s.ItemCode, err)
			continue
		}

		if eval.GapWeeks > 0 {
			b.logger.Warn(ctx, "[TRAIN_PRODUCT_GAPS] Weekly series has missing weeks", logging.Fields{
				"item_code": s.ItemCode,
				"gap_weeks": eval.GapWeeks,
			})
		}

		model := eval.Model
		if opts.Refit {
			refit, err := trainer.Fit(ctx, s)
			if err != nil {
				b.logger.Warn(ctx, "[TRAIN_PRODUCT_REFIT_ERROR] Keeping the evaluated model", logging.Fields{
					"item_code": s.ItemCode,
					"error":     err.Error(),
				})
			} else {
				model = refit
			}
		}

		result.Products = append(result.Products, s.ItemCode)
		result.PerProduct[s.ItemCode] = eval.Metrics
		result.Models[s.ItemCode] = model
		for name, v := range eval.FeatureImportance {
			importance[name] += v
		}
		b.metrics.RecordProductOutcome(string(modelType), "trained")

		if opts.PlotDir != "" && result.PlotFile == "" {
			b.renderPlot(ctx, result, eval, opts)
		}

		b.logger.Debug(ctx, "[TRAIN_PRODUCT_DONE] Product trained", logging.Fields{
			"item_code": s.ItemCode,
			"mae":       eval.Metrics.MAE,
			"mape":      eval.Metrics.MAPE,
		})
	}

	result.TotalProductsTrained = len(result.PerProduct)
	result.Average = Average(result.PerProduct)
	if len(importance) > 0 && result.TotalProductsTrained > 0 {
		result.FeatureImportance = make(map[string]float64, len(importance))
		for name, v := range importance {
			result.FeatureImportance[name] = v / float64(result.TotalProductsTrained)
		}
	}
	result.Duration = time.Since(start)

	b.logger.Info(ctx, "[TRAIN_BATCH_COMPLETE] Finished training products", logging.Fields{
		"model_type":     modelType,
		"trained":        result.TotalProductsTrained,
		"skipped":        len(result.Skipped),
		"failed":         len(result.Failed),
		"duration_ms":    result.Duration.Milliseconds(),
		"average_metric": result.Average,
	})
	return result, nil
}

func (b *BatchTrainer) evaluate(ctx context.Context, trainer Trainer, s pipeline.Series, testRatio float64) (*Evaluation, error) {
	timer := b.metrics.NewTimer(b.metrics.TrainingFitDuration.WithLabelValues(string(trainer.Type())))
	defer timer.ObserveDuration()
	return trainer.Evaluate(ctx, s, testRatio)
}

func (b *BatchTrainer) recordFailure(ctx context.Context, result *BatchResult, itemCode string, err error) {
	failure := ProductFailure{ItemCode: itemCode, Error: err.Error()}

	var skipped *models.SkippedError
	if errors.As(err, &skipped) {
		result.Skipped = append(result.Skipped, failure)
		b.metrics.RecordProductOutcome(string(result.ModelType), "skipped")
		b.logger.Info(ctx, "[TRAIN_PRODUCT_SKIPPED] Product skipped", logging.Fields{
			"item_code": itemCode,
			"reason":    skipped.Reason,
		})
		return
	}

	result.Failed = append(result.Failed, failure)
	b.metrics.RecordProductOutcome(string(result.ModelType), "failed")
	b.logger.Error(ctx, "[TRAIN_PRODUCT_ERROR] Product training failed", logging.Fields{
		"item_code":  itemCode,
		"model_type": result.ModelType,
	}, err)
}

func (b *BatchTrainer) renderPlot(ctx context.Context, result *BatchResult, eval *Evaluation, opts BatchOptions) {
	name := opts.PlotName
	if name == "" {
		name = string(result.ModelType)
	}
	path := filepath.Join(opts.PlotDir, fmt.Sprintf("%s_%s.png", name, SafeName(eval.ItemCode)))

	if err := SaveComparisonPlot(path, eval); err != nil {
		b.logger.Warn(ctx, "[TRAIN_PLOT_ERROR] Could not render comparison plot", logging.Fields{
			"item_code": eval.ItemCode,
			"error":     err.Error(),
		})
		return
	}
	result.PlotFile = path
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName makes s usable as part of a file name.
func SafeName(s string) string {
	out := unsafeChars.ReplaceAllString(s, "_")
	if out == "" {
		return "_"
	}
	return out
}
