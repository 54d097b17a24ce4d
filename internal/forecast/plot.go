package forecast

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"demand-forecast/internal/pipeline"
)

// MaxPlottedProducts bounds how many products a dataset chart shows.
const MaxPlottedProducts = 10

const (
	plotWidth  = 12 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// SaveComparisonPlot renders the train, test and predicted curves of one
// evaluation to a PNG file.
func SaveComparisonPlot(path string, e *Evaluation) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s forecast for %s", e.Model.Type(), e.ItemCode)
	p.X.Label.Text = "Week"
	p.Y.Label.Text = "Quantity"
	p.X.Tick.Marker = plot.TimeTicks{Format: pipeline.DateLayout}
	p.Add(plotter.NewGrid())

	curves := []struct {
		name   string
		weeks  []time.Time
		values []float64
		dashed bool
	}{
		{"Train", e.TrainWeeks, e.TrainValues, false},
		{"Test", e.TestWeeks, e.Actual, false},
		{"Predicted", e.TestWeeks, e.Predicted, true},
	}
	for i, c := range curves {
		if len(c.weeks) == 0 {
			continue
		}
		line, err := plotter.NewLine(timeXYs(c.weeks, c.values))
		if err != nil {
			return fmt.Errorf("failed to plot %s curve: %w", c.name, err)
		}
		line.Color = plotutil.Color(i)
		if c.dashed {
			line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(c.name, line)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}

// WriteSeriesPlot draws weekly demand of up to MaxPlottedProducts series
// as a PNG to w.
func WriteSeriesPlot(w io.Writer, title string, series []pipeline.Series) error {
	if len(series) > MaxPlottedProducts {
		series = series[:MaxPlottedProducts]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Week"
	p.Y.Label.Text = "Total quantity"
	p.X.Tick.Marker = plot.TimeTicks{Format: pipeline.DateLayout}
	p.Add(plotter.NewGrid())

	for i, s := range series {
		if s.Len() == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(timeXYs(s.Weeks(), s.Values()))
		if err != nil {
			return fmt.Errorf("failed to plot %s: %w", s.ItemCode, err)
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(s.ItemCode, line, points)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func timeXYs(weeks []time.Time, values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(weeks))
	for i := range weeks {
		xys[i].X = float64(weeks[i].Unix())
		xys[i].Y = values[i]
	}
	return xys
}
