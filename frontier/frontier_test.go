package frontier

import (
	"math/rand"
	"testing"

	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/obspart"
	"github.com/arbolito/rf/rfconfig"
	"github.com/arbolito/rf/rferrors"
	"github.com/arbolito/rf/sampler"
)

func TestRunOneLevelRegressionSplit(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	f, err := frame.Build(4, frame.DenseNumeric{X: x}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	nux := []sampler.Nux{{DelRow: 0, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}}
	yReg := []float64{0, 0, 10, 10}
	so := sampler.Materialize(4, nux, yReg, nil, 0)

	op, stage := obspart.Stage(f, so)

	cfg, err := rfconfig.New(1, rfconfig.MinNode(1), rfconfig.PredFixed(1), rfconfig.TotLevels(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	var warnings rferrors.WarningSink
	pt := Run(f, op, stage, so, rng, cfg, NewRootSeed(so), &warnings)

	if len(pt.Nodes) != 3 {
		t.Fatalf("expected root + 2 leaves (3 nodes), got %d: %+v", len(pt.Nodes), pt.Nodes)
	}
	root := pt.Nodes[0]
	if root.IsTerminal() {
		t.Fatalf("expected the root to have split")
	}
	if root.PredIdx != 0 || root.CutValue != 2.5 {
		t.Fatalf("expected a split on predictor 0 at cut value 2.5, got pred=%d cut=%v", root.PredIdx, root.CutValue)
	}

	left := pt.Nodes[root.LHDel]
	right := pt.Nodes[root.LHDel+1]
	if !left.IsTerminal() || !right.IsTerminal() {
		t.Fatalf("expected TotLevels(2) to stop the tree after one split")
	}
	if left.Sum != 0 || left.SCount != 2 {
		t.Fatalf("expected left leaf {sum:0 sCount:2}, got {%v %d}", left.Sum, left.SCount)
	}
	if right.Sum != 20 || right.SCount != 2 {
		t.Fatalf("expected right leaf {sum:20 sCount:2}, got {%v %d}", right.Sum, right.SCount)
	}
}

func TestRunRegressionFourRowWorkedExample(t *testing.T) {
	// X = [1,2,3,4], y = [10,10,20,20], full in-bag (no replacement,
	// nSamp == nObs): the clean mean-jump boundary sits between ranks 1
	// and 2, splitQuant=0.5 interpolating the cut to 2.5.
	x := [][]float64{{1}, {2}, {3}, {4}}
	f, err := frame.Build(4, frame.DenseNumeric{X: x}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	nux := []sampler.Nux{{DelRow: 0, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}}
	yReg := []float64{10, 10, 20, 20}
	so := sampler.Materialize(4, nux, yReg, nil, 0)

	op, stage := obspart.Stage(f, so)

	cfg, err := rfconfig.New(1, rfconfig.MinNode(1), rfconfig.PredFixed(1), rfconfig.TotLevels(2), rfconfig.SplitQuant([]float64{0.5}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	var warnings rferrors.WarningSink
	pt := Run(f, op, stage, so, rng, cfg, NewRootSeed(so), &warnings)

	root := pt.Nodes[0]
	if root.IsTerminal() {
		t.Fatalf("expected the root to split")
	}
	if root.CutValue != 2.5 {
		t.Fatalf("expected cut value 2.5, got %v", root.CutValue)
	}
	if root.Info <= 0 {
		t.Fatalf("expected positive split information, got %v", root.Info)
	}

	left := pt.Nodes[root.LHDel]
	right := pt.Nodes[root.LHDel+1]
	if left.Score != 10.0 {
		t.Fatalf("expected left leaf score 10.0, got %v", left.Score)
	}
	if right.Score != 20.0 {
		t.Fatalf("expected right leaf score 20.0, got %v", right.Score)
	}
}

func TestRunRecordsDegenerateResponseWarning(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	f, err := frame.Build(4, frame.DenseNumeric{X: x}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	nux := []sampler.Nux{{DelRow: 0, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}, {DelRow: 1, SCount: 1}}
	yReg := []float64{7, 7, 7, 7} // zero variance
	so := sampler.Materialize(4, nux, yReg, nil, 0)

	op, stage := obspart.Stage(f, so)

	cfg, err := rfconfig.New(1, rfconfig.MinNode(1), rfconfig.PredFixed(1), rfconfig.TotLevels(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	var warnings rferrors.WarningSink
	pt := Run(f, op, stage, so, rng, cfg, NewRootSeed(so), &warnings)

	if !pt.Nodes[0].IsTerminal() {
		t.Fatalf("expected a constant response to never split")
	}
	items := warnings.Items()
	if len(items) != 1 {
		t.Fatalf("expected exactly one degenerate-response warning, got %d: %+v", len(items), items)
	}
}

func TestRunStopsImmediatelyWhenMinNodeExceedsBagCount(t *testing.T) {
	x := [][]float64{{1}, {2}}
	f, err := frame.Build(2, frame.DenseNumeric{X: x}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nux := []sampler.Nux{{DelRow: 0, SCount: 1}, {DelRow: 1, SCount: 1}}
	so := sampler.Materialize(2, nux, []float64{1, 2}, nil, 0)
	op, stage := obspart.Stage(f, so)

	cfg, err := rfconfig.New(1, rfconfig.MinNode(10), rfconfig.PredFixed(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	var warnings rferrors.WarningSink
	pt := Run(f, op, stage, so, rng, cfg, NewRootSeed(so), &warnings)

	if len(pt.Nodes) != 1 {
		t.Fatalf("expected the root to remain a single leaf when MinNode exceeds bagCount, got %d nodes", len(pt.Nodes))
	}
}
