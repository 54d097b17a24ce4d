package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

// observationNoise is the assumed noise scale of max-scaled demand. Ridge
// penalties are noise² / prior², so it sets how strongly priors bind.
const observationNoise = 0.1

// trendPriorScale is the prior scale of the base growth rate and offset.
const trendPriorScale = 5.0

// ProphetConfig controls the decomposable trend and seasonality model.
type ProphetConfig struct {
	NChangepoints         int     `json:"n_changepoints"`
	ChangepointRange      float64 `json:"changepoint_range"`
	ChangepointPriorScale float64 `json:"changepoint_prior_scale"`
	SeasonalityPriorScale float64 `json:"seasonality_prior_scale"`
	YearlyOrder           int     `json:"yearly_order"`
	WeeklyOrder           int     `json:"weekly_order"`
	Iterations            int     `json:"iterations"`
}

// DefaultProphetConfig returns yearly and weekly multiplicative
// seasonality with daily seasonality disabled.
func DefaultProphetConfig() ProphetConfig {
	return ProphetConfig{
		NChangepoints:         25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		YearlyOrder:           10,
		WeeklyOrder:           3,
		Iterations:            5,
	}
}

// Validate rejects configurations that cannot be fitted.
func (c ProphetConfig) Validate() error {
	if c.NChangepoints < 0 {
		return &models.ValidationError{Field: "n_changepoints", Value: fmt.Sprint(c.NChangepoints), Message: "n_changepoints must not be negative"}
	}
	if c.ChangepointRange <= 0 || c.ChangepointRange > 1 {
		return &models.ValidationError{Field: "changepoint_range", Value: fmt.Sprint(c.ChangepointRange), Message: "changepoint_range must be in (0, 1]"}
	}
	if err := positive("changepoint_prior_scale", c.ChangepointPriorScale); err != nil {
		return err
	}
	if err := positive("seasonality_prior_scale", c.SeasonalityPriorScale); err != nil {
		return err
	}
	if c.YearlyOrder < 0 || c.WeeklyOrder < 0 {
		return &models.ValidationError{Field: "yearly_order", Message: "seasonality orders must not be negative"}
	}
	return positive("iterations", float64(c.Iterations))
}

// Seasonality is one Fourier component.
type Seasonality struct {
	Name   string  `json:"name"`
	Period float64 `json:"period_days"`
	Order  int     `json:"order"`
}

func (c ProphetConfig) seasonalities() []Seasonality {
	var out []Seasonality
	if c.YearlyOrder > 0 {
		out = append(out, Seasonality{Name: "yearly", Period: 365.25, Order: c.YearlyOrder})
	}
	if c.WeeklyOrder > 0 {
		out = append(out, Seasonality{Name: "weekly", Period: 7, Order: c.WeeklyOrder})
	}
	return out
}

// ProphetModel is y(t) = g(t)·(1 + s(t)) with a piecewise-linear trend g
// and Fourier seasonality s, fitted on time scaled to [0, 1] and demand
// scaled by its maximum.
type ProphetModel struct {
	ItemCode      string        `json:"item_code"`
	Config        ProphetConfig `json:"config"`
	Start         time.Time     `json:"start"`
	SpanDays      float64       `json:"span_days"`
	YScale        float64       `json:"y_scale"`
	Changepoints  []float64     `json:"changepoints"`
	TrendCoef     []float64     `json:"trend_coef"`
	Seasonalities []Seasonality `json:"seasonalities"`
	SeasonalCoef  []float64     `json:"seasonal_coef"`
	TrainEnd      time.Time     `json:"train_end"`
}

func (m *ProphetModel) Type() models.ModelType { return models.ModelProphet }
func (m *ProphetModel) Product() string        { return m.ItemCode }

// Forecast predicts demand at each week.
func (m *ProphetModel) Forecast(weeks []time.Time) ([]float64, error) {
	out := make([]float64, len(weeks))
	for i, w := range weeks {
		g := floats.Dot(m.TrendCoef, m.trendRow(m.scaledTime(w)))
		s := floats.Dot(m.SeasonalCoef, seasonalRow(m.Seasonalities, epochDays(w)))
		out[i] = g * (1 + s) * m.YScale
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, &models.ProcessingError{Op: "prophet forecast", Err: fmt.Errorf("non-finite prediction for %s", w.Format(pipeline.DateLayout))}
		}
	}
	return out, nil
}

func (m *ProphetModel) scaledTime(w time.Time) float64 {
	return (epochDays(w) - epochDays(m.Start)) / m.SpanDays
}

// trendRow is [1, t, (t-c1)+, ..., (t-cK)+].
func (m *ProphetModel) trendRow(t float64) []float64 {
	row := make([]float64, 2+len(m.Changepoints))
	row[0], row[1] = 1, t
	for j, c := range m.Changepoints {
		row[2+j] = math.Max(t-c, 0)
	}
	return row
}

func seasonalRow(seasons []Seasonality, days float64) []float64 {
	var row []float64
	for _, s := range seasons {
		for k := 1; k <= s.Order; k++ {
			x := 2 * math.Pi * float64(k) * days / s.Period
			row = append(row, math.Sin(x), math.Cos(x))
		}
	}
	return row
}

func epochDays(t time.Time) float64 {
	return float64(t.Unix()) / 86400
}

// FitProphet fits the model to one product's weekly points.
func FitProphet(s pipeline.Series, cfg ProphetConfig) (*ProphetModel, error) {
	n := s.Len()
	if n < 2 {
		return nil, &models.InsufficientDataError{Scope: "prophet fit of " + s.ItemCode, Need: 2, Got: n}
	}
	weeks, y := s.Weeks(), s.Values()

	m := &ProphetModel{
		ItemCode:      s.ItemCode,
		Config:        cfg,
		Start:         weeks[0],
		SpanDays:      epochDays(weeks[n-1]) - epochDays(weeks[0]),
		YScale:        floats.Max(absAll(y)),
		Seasonalities: cfg.seasonalities(),
		TrainEnd:      weeks[n-1],
	}
	if m.SpanDays <= 0 {
		return nil, &models.InsufficientDataError{Scope: "prophet fit of " + s.ItemCode + " (single distinct week)", Need: 2, Got: 1}
	}
	if m.YScale == 0 {
		m.YScale = 1
	}

	t := make([]float64, n)
	ys := make([]float64, n)
	for i := range weeks {
		t[i] = m.scaledTime(weeks[i])
		ys[i] = y[i] / m.YScale
	}
	m.Changepoints = changepoints(t, cfg)

	trendX := mat.NewDense(n, 2+len(m.Changepoints), nil)
	var seasonX *mat.Dense
	nSeason := len(seasonalRow(m.Seasonalities, 0))
	if nSeason > 0 {
		seasonX = mat.NewDense(n, nSeason, nil)
	}
	for i := range t {
		trendX.SetRow(i, m.trendRow(t[i]))
		if seasonX != nil {
			seasonX.SetRow(i, seasonalRow(m.Seasonalities, epochDays(weeks[i])))
		}
	}

	trendPenalty := make([]float64, 2+len(m.Changepoints))
	for j := range trendPenalty {
		scale := trendPriorScale
		if j >= 2 {
			scale = cfg.ChangepointPriorScale
		}
		trendPenalty[j] = observationNoise * observationNoise / (scale * scale)
	}
	seasonPenalty := make([]float64, nSeason)
	for j := range seasonPenalty {
		seasonPenalty[j] = observationNoise * observationNoise / (cfg.SeasonalityPriorScale * cfg.SeasonalityPriorScale)
	}

	// Alternate between the trend given the seasonal factor and the
	// seasonal factor given the trend; each step is a weighted ridge fit.
	season := make([]float64, n)
	trend := make([]float64, n)
	target := make([]float64, n)
	weight := make([]float64, n)
	m.SeasonalCoef = make([]float64, nSeason)
	for iter := 0; iter < cfg.Iterations; iter++ {
		for i := range ys {
			f := 1 + season[i]
			target[i], weight[i] = 0, 0
			if math.Abs(f) > 1e-6 {
				target[i], weight[i] = ys[i]/f, f*f
			}
		}
		coef, err := ridge(trendX, target, weight, trendPenalty)
		if err != nil {
			return nil, &models.ProcessingError{Op: "prophet trend fit", Err: err}
		}
		m.TrendCoef = coef
		for i := range t {
			trend[i] = floats.Dot(coef, m.trendRow(t[i]))
		}

		if seasonX == nil {
			break
		}
		for i := range ys {
			target[i], weight[i] = 0, 0
			if math.Abs(trend[i]) > 1e-6 {
				target[i], weight[i] = (ys[i]-trend[i])/trend[i], trend[i]*trend[i]
			}
		}
		coef, err = ridge(seasonX, target, weight, seasonPenalty)
		if err != nil {
			return nil, &models.ProcessingError{Op: "prophet seasonality fit", Err: err}
		}
		m.SeasonalCoef = coef
		for i := range weeks {
			season[i] = floats.Dot(coef, seasonalRow(m.Seasonalities, epochDays(weeks[i])))
		}
	}
	return m, nil
}

// changepoints spreads potential trend changes evenly over the first
// ChangepointRange of the history, one per observed time.
func changepoints(t []float64, cfg ProphetConfig) []float64 {
	hist := int(math.Floor(float64(len(t)) * cfg.ChangepointRange))
	k := cfg.NChangepoints
	if k+1 > hist {
		k = hist - 1
	}
	if k <= 0 {
		return nil
	}
	out := make([]float64, 0, k)
	for j := 1; j <= k; j++ {
		idx := int(math.Round(float64(j) * float64(hist-1) / float64(k)))
		out = append(out, t[idx])
	}
	return out
}

// ridge solves (XᵀWX + diag(penalty))β = XᵀWy.
func ridge(x *mat.Dense, y, w, penalty []float64) ([]float64, error) {
	r, c := x.Dims()
	xw := mat.NewDense(r, c, nil)
	yw := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < c; j++ {
			xw.Set(i, j, x.At(i, j)*sw)
		}
		yw.SetVec(i, y[i]*sw)
	}

	var a mat.Dense
	a.Mul(xw.T(), xw)
	for j := 0; j < c; j++ {
		a.Set(j, j, a.At(j, j)+penalty[j])
	}
	var b mat.VecDense
	b.MulVec(xw.T(), yw)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	out := make([]float64, c)
	for j := range out {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

// ProphetTrainer fits ProphetModels.
type ProphetTrainer struct {
	config ProphetConfig
}

// NewProphetTrainer creates a trainer with cfg.
func NewProphetTrainer(cfg ProphetConfig) *ProphetTrainer {
	return &ProphetTrainer{config: cfg}
}

// NewProphetTrainerFromParams applies user parameters over the defaults.
func NewProphetTrainerFromParams(params models.Params) (Trainer, error) {
	cfg := DefaultProphetConfig()
	var err error
	if cfg.NChangepoints, err = paramInt(params, "n_changepoints", cfg.NChangepoints); err != nil {
		return nil, err
	}
	if cfg.ChangepointRange, err = paramFloat(params, "changepoint_range", cfg.ChangepointRange); err != nil {
		return nil, err
	}
	if cfg.ChangepointPriorScale, err = paramFloat(params, "changepoint_prior_scale", cfg.ChangepointPriorScale); err != nil {
		return nil, err
	}
	if cfg.SeasonalityPriorScale, err = paramFloat(params, "seasonality_prior_scale", cfg.SeasonalityPriorScale); err != nil {
		return nil, err
	}
	if cfg.YearlyOrder, err = paramInt(params, "yearly_order", cfg.YearlyOrder); err != nil {
		return nil, err
	}
	if cfg.WeeklyOrder, err = paramInt(params, "weekly_order", cfg.WeeklyOrder); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewProphetTrainer(cfg), nil
}

func (p *ProphetTrainer) Type() models.ModelType { return models.ModelProphet }

func (p *ProphetTrainer) Fit(ctx context.Context, s pipeline.Series) (FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FitProphet(s, p.config)
}

// Evaluate fits the train partition and predicts at the test partition's
// own week dates, so gaps in the series cannot misalign the comparison.
func (p *ProphetTrainer) Evaluate(ctx context.Context, s pipeline.Series, testRatio float64) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	train, test, err := pipeline.Split(s.Points, testRatio)
	if err != nil {
		return nil, err
	}
	trainSeries := pipeline.Series{ItemCode: s.ItemCode, Points: train}
	testSeries := pipeline.Series{ItemCode: s.ItemCode, Points: test}

	model, err := FitProphet(trainSeries, p.config)
	if err != nil {
		return nil, err
	}
	predicted, err := model.Forecast(testSeries.Weeks())
	if err != nil {
		return nil, err
	}
	actual := testSeries.Values()
	metrics, err := Evaluate(actual, predicted)
	if err != nil {
		return nil, err
	}

	return &Evaluation{
		ItemCode:    s.ItemCode,
		Metrics:     metrics,
		Model:       model,
		TrainWeeks:  trainSeries.Weeks(),
		TrainValues: trainSeries.Values(),
		TestWeeks:   testSeries.Weeks(),
		Actual:      actual,
		Predicted:   predicted,
		GapWeeks:    s.GapWeeks(),
	}, nil
}
