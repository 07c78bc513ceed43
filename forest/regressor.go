package forest

import (
	"math/rand"
	"time"

	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/rfconfig"
	"github.com/arbolito/rf/rferrors"
)

// Regressor is the regression facade over the shared Forest engine,
// matching the teacher's forest/regressor.go surface (NewRegressor with
// functional options, Fit(X,Y), Predict, Save/Load) while delegating the
// actual pipeline to Fit in forest.go.
type Regressor struct {
	opts []rfconfig.Option

	Forest   *Forest
	MSE      float64
	RSquared float64
	NSample  int
	NTrees   int
	Warnings []rferrors.Warning
}

// NewRegressor builds an unfit Regressor from rfconfig options.
func NewRegressor(opts ...rfconfig.Option) *Regressor {
	return &Regressor{opts: opts}
}

// Fit trains the forest on a dense numeric matrix X and response Y,
// computing out-of-bag MSE/R² the way the teacher's oobRegCtr does.
func (r *Regressor) Fit(X [][]float64, y []float64) error {
	f, err := frame.Build(len(X), frame.DenseNumeric{X: X}, nil, nil)
	if err != nil {
		return err
	}

	cfg, err := rfconfig.New(f.NPred, r.opts...)
	if err != nil {
		return err
	}
	if cfg.NSamp == 0 {
		cfg.NSamp = f.NObs
	}

	var warnings rferrors.WarningSink
	fo, oob := Fit(f, cfg, y, nil, 0, rand.New(rand.NewSource(time.Now().UnixNano())), &warnings)

	r.Forest = fo
	r.NTrees = len(fo.Trees)
	r.NSample = f.NObs
	r.Warnings = warnings.Items()
	r.scoreOOB(X, y, oob)

	return nil
}

// scoreOOB averages each row's out-of-bag tree predictions and computes
// MSE/R², generalizing the teacher's forest/regressor.go oobRegCtr.
func (r *Regressor) scoreOOB(X [][]float64, y []float64, oob [][]int) {
	sum := make([]float64, len(X))
	ct := make([]int, len(X))

	for t, rows := range oob {
		tree := r.Forest.Trees[t]
		for _, row := range rows {
			leaf := tree.walk(X[row], r.Forest.Bits)
			sum[row] += tree.Nodes[leaf].Score
			ct[row]++
		}
	}

	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(len(y))

	var sse, sst float64
	var n int
	for row := range X {
		if ct[row] == 0 {
			continue
		}
		pred := sum[row] / float64(ct[row])
		d := y[row] - pred
		sse += d * d
		dm := y[row] - yMean
		sst += dm * dm
		n++
	}

	if n > 0 {
		r.MSE = sse / float64(n)
	}
	if sst > 0 {
		r.RSquared = 1 - sse/sst
	}
}

// Predict returns the forest-averaged prediction per row.
func (r *Regressor) Predict(X [][]float64) []float64 {
	return r.Forest.Predict(X)
}

// VarImp returns the per-predictor summed split information.
func (r *Regressor) VarImp() []float64 {
	return r.Forest.VarImp()
}
