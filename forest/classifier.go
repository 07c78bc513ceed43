package forest

import (
	"math/rand"
	"time"

	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/rfconfig"
	"github.com/arbolito/rf/rferrors"
)

// Classifier is the classification facade over the shared Forest engine,
// matching the teacher's forest/classifier.go surface (NewClassifier with
// functional options, Fit(X,Y), Predict, Save/Load) while delegating the
// actual sample/stage/frontier/pre-tree pipeline to Fit in forest.go.
type Classifier struct {
	opts []rfconfig.Option

	Forest          *Forest
	Classes         []string
	ConfusionMatrix [][]int
	Accuracy        float64
	NSample         int
	NTrees          int
	Warnings        []rferrors.Warning
}

// NewClassifier builds an unfit Classifier from rfconfig options; the
// actual predictor count isn't known until Fit sees X, matching the
// teacher's own NewClassifier(options...)/Fit(X,Y) two-step shape.
func NewClassifier(opts ...rfconfig.Option) *Classifier {
	return &Classifier{opts: opts}
}

// Fit trains the forest on a dense numeric matrix X and string labels Y,
// computing a confusion matrix and accuracy over out-of-bag predictions
// the way the teacher's oobCtr does.
func (c *Classifier) Fit(X [][]float64, y []string) error {
	classes, yCtg := encodeLabels(y)
	c.Classes = classes

	f, err := frame.Build(len(X), frame.DenseNumeric{X: X}, nil, nil)
	if err != nil {
		return err
	}

	cfg, err := rfconfig.New(f.NPred, c.opts...)
	if err != nil {
		return err
	}
	if cfg.NSamp == 0 {
		cfg.NSamp = f.NObs
	}

	var warnings rferrors.WarningSink
	fo, oob := Fit(f, cfg, nil, yCtg, len(classes), rand.New(rand.NewSource(time.Now().UnixNano())), &warnings)

	c.Forest = fo
	c.NTrees = len(fo.Trees)
	c.NSample = f.NObs
	c.Warnings = warnings.Items()
	c.scoreOOB(X, yCtg, oob, len(classes))

	return nil
}

// scoreOOB builds the confusion matrix and accuracy from each row's
// out-of-bag tree vote, generalizing the teacher's forest/forest.go
// oobCtr to the new per-tree OOB row lists Fit returns.
func (c *Classifier) scoreOOB(X [][]float64, yCtg []int, oob [][]int, nCtg int) {
	votes := make([][]int, len(X))
	for i := range votes {
		votes[i] = make([]int, nCtg)
	}

	for t, rows := range oob {
		tree := c.Forest.Trees[t]
		for _, row := range rows {
			leaf := tree.walk(X[row], c.Forest.Bits)
			cs := tree.Nodes[leaf].CtgSum
			best, bestV := 0, -1.0
			for cat, v := range cs {
				if v > bestV {
					bestV = v
					best = cat
				}
			}
			votes[row][best]++
		}
	}

	cm := make([][]int, nCtg)
	for i := range cm {
		cm[i] = make([]int, nCtg)
	}
	correct, total := 0, 0
	for row, v := range votes {
		sum := 0
		for _, c := range v {
			sum += c
		}
		if sum == 0 {
			continue // never out-of-bag across any tree
		}
		best, bestV := 0, -1
		for cat, ct := range v {
			if ct > bestV {
				bestV = ct
				best = cat
			}
		}
		cm[yCtg[row]][best]++
		total++
		if best == yCtg[row] {
			correct++
		}
	}

	c.ConfusionMatrix = cm
	if total > 0 {
		c.Accuracy = float64(correct) / float64(total)
	}
}

// Predict returns the predicted class index per row.
func (c *Classifier) Predict(X [][]float64) []int {
	return c.Forest.PredictCtg(X)
}

// PredictProb returns the per-class probability vector per row.
func (c *Classifier) PredictProb(X [][]float64) [][]float64 {
	return c.Forest.PredictProb(X)
}

// VarImp returns the per-predictor summed split information.
func (c *Classifier) VarImp() []float64 {
	return c.Forest.VarImp()
}

func encodeLabels(y []string) ([]string, []int) {
	idx := make(map[string]int)
	var classes []string
	out := make([]int, len(y))
	for i, v := range y {
		id, ok := idx[v]
		if !ok {
			id = len(classes)
			idx[v] = id
			classes = append(classes, v)
		}
		out[i] = id
	}
	return classes, out
}
