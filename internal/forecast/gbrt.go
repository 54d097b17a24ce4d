package forecast

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demand-forecast/internal/models"
)

// GBRTConfig holds gradient boosting hyperparameters. Names follow the
// XGBoost regressor's.
type GBRTConfig struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"reg_lambda"`
	MinChildWeight float64 `json:"min_child_weight"`
	Subsample      float64 `json:"subsample"`
	Seed           int64   `json:"random_state"`
}

// DefaultGBRTConfig returns 100 depth-6 trees at learning rate 0.1.
func DefaultGBRTConfig() GBRTConfig {
	return GBRTConfig{
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		Subsample:      1,
		Seed:           42,
	}
}

// Validate rejects configurations that cannot be fitted.
func (c GBRTConfig) Validate() error {
	if err := positive("n_estimators", float64(c.NEstimators)); err != nil {
		return err
	}
	if err := positive("max_depth", float64(c.MaxDepth)); err != nil {
		return err
	}
	if err := positive("learning_rate", c.LearningRate); err != nil {
		return err
	}
	if c.Lambda < 0 || c.MinChildWeight < 0 {
		return &models.ValidationError{Field: "reg_lambda", Message: "reg_lambda and min_child_weight must not be negative"}
	}
	if c.Subsample <= 0 || c.Subsample > 1 {
		return &models.ValidationError{Field: "subsample", Value: fmt.Sprint(c.Subsample), Message: "subsample must be in (0, 1]"}
	}
	return nil
}

// TreeNode is a split or, when Leaf is set, a leaf carrying Value.
type TreeNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// RegressionTree is a flat binary tree rooted at node 0. Rows whose
// feature is below the threshold go left.
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict returns the leaf value reached by x.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBRT is an additive ensemble of regression trees fitted to squared error.
type GBRT struct {
	Config    GBRTConfig       `json:"config"`
	BaseScore float64          `json:"base_score"`
	Trees     []RegressionTree `json:"trees"`
	Gain      []float64        `json:"gain"`
}

// Predict returns the base score plus every tree's contribution.
func (g *GBRT) Predict(x []float64) float64 {
	out := g.BaseScore
	for i := range g.Trees {
		out += g.Trees[i].Predict(x)
	}
	return out
}

// Importance returns each feature's share of the total split gain.
func (g *GBRT) Importance(names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	total := floats.Sum(g.Gain)
	for i, name := range names {
		if i >= len(g.Gain) {
			break
		}
		if total > 0 {
			out[name] = g.Gain[i] / total
		} else {
			out[name] = 0
		}
	}
	return out
}

// FitGBRT fits an ensemble to rows x and targets y.
func FitGBRT(x [][]float64, y []float64, cfg GBRTConfig) (*GBRT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, &models.InsufficientDataError{Scope: "gradient boosting", Need: 1}
	}
	if len(x) != len(y) {
		return nil, &models.ProcessingError{Op: "gradient boosting", Err: fmt.Errorf("%d rows but %d targets", len(x), len(y))}
	}
	nFeatures := len(x[0])

	g := &GBRT{
		Config:    cfg,
		BaseScore: stat.Mean(y, nil),
		Trees:     make([]RegressionTree, 0, cfg.NEstimators),
		Gain:      make([]float64, nFeatures),
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.BaseScore
	}
	grad := make([]float64, len(y))
	hess := make([]float64, len(y))
	rng := rand.New(rand.NewSource(cfg.Seed))

	for t := 0; t < cfg.NEstimators; t++ {
		for i := range y {
			grad[i] = pred[i] - y[i]
			hess[i] = 1
		}

		rows := make([]int, 0, len(y))
		for i := range y {
			if cfg.Subsample >= 1 || rng.Float64() < cfg.Subsample {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			continue
		}

		b := &treeBuilder{x: x, grad: grad, hess: hess, cfg: cfg, gain: g.Gain, nFeatures: nFeatures}
		b.build(rows, 0)
		tree := RegressionTree{Nodes: b.nodes}
		g.Trees = append(g.Trees, tree)

		for i := range pred {
			pred[i] += tree.Predict(x[i])
		}
	}
	return g, nil
}

type treeBuilder struct {
	x         [][]float64
	grad      []float64
	hess      []float64
	cfg       GBRTConfig
	gain      []float64
	nFeatures int
	nodes     []TreeNode
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(rows []int, depth int) int {
	var G, H float64
	for _, i := range rows {
		G += b.grad[i]
		H += b.hess[i]
	}

	node := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: -G / (H + b.cfg.Lambda) * b.cfg.LearningRate})
	if depth >= b.cfg.MaxDepth || len(rows) < 2 {
		return node
	}

	best, ok := b.bestSplit(rows, G, H)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range rows {
		if b.x[i][best.feature] < best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[best.feature] += best.gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[node] = TreeNode{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return node
}

// bestSplit runs the exact greedy search over every feature and every
// boundary between distinct sorted values.
func (b *treeBuilder) bestSplit(rows []int, G, H float64) (split, bool) {
	lambda := b.cfg.Lambda
	parent := G * G / (H + lambda)

	var best split
	found := false
	sorted := make([]int, len(rows))
	for f := 0; f < b.nFeatures; f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		var GL, HL float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			GL += b.grad[i]
			HL += b.hess[i]

			v, next := b.x[i][f], b.x[sorted[k+1]][f]
			if v == next {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.cfg.MinChildWeight || HR < b.cfg.MinChildWeight {
				continue
			}

			gain := GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent
			if gain > 1e-12 && (!found || gain > best.gain) {
				best = split{feature: f, threshold: (v + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
