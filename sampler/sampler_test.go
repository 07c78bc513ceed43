package sampler

import (
	"math/rand"
	"testing"
)

func countsOf(nObs int, nux []Nux) []int {
	counts := make([]int, nObs)
	row := 0
	for i, n := range nux {
		if i == 0 {
			row = n.DelRow
		} else {
			row += n.DelRow
		}
		counts[row] = n.SCount
	}
	return counts
}

func TestDrawUniformWithReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	nux := Draw(rng, 10, 10, true, nil)
	total := 0
	for _, n := range nux {
		total += n.SCount
	}
	if total != 10 {
		t.Fatalf("expected total multiplicity 10, got %d", total)
	}
}

func TestDrawUniformWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	nux := Draw(rng, 10, 4, false, nil)
	counts := countsOf(10, nux)
	for _, c := range counts {
		if c > 1 {
			t.Fatalf("without-replacement draw produced multiplicity > 1: %v", counts)
		}
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 4 {
		t.Fatalf("expected 4 distinct rows drawn, got %d", total)
	}
}

func TestDrawWeightedWithReplacementFavorsHeavyWeight(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	weights := []float64{100, 1, 1, 1}
	nux := Draw(rng, 4, 2000, true, weights)
	counts := countsOf(4, nux)
	if counts[0] < counts[1]+counts[2]+counts[3] {
		t.Fatalf("expected heavily weighted row 0 to dominate draws, got %v", counts)
	}
}

func TestDrawWeightedWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	weights := []float64{1, 1, 1, 1, 1}
	nux := Draw(rng, 5, 3, false, weights)
	counts := countsOf(5, nux)
	n := 0
	for _, c := range counts {
		if c > 1 {
			t.Fatalf("without-replacement draw produced multiplicity > 1: %v", counts)
		}
		n += c
	}
	if n != 3 {
		t.Fatalf("expected 3 distinct rows, got %d", n)
	}
}

func TestMaterializeRegression(t *testing.T) {
	nux := []Nux{{DelRow: 0, SCount: 2}, {DelRow: 2, SCount: 1}}
	yReg := []float64{10, 0, 0, 20}
	so := Materialize(4, nux, yReg, nil, 0)

	if so.BagCount != 2 {
		t.Fatalf("expected bagCount 2, got %d", so.BagCount)
	}
	if !so.IsInBag(0) || !so.IsInBag(2) {
		t.Fatalf("expected rows 0 and 2 in bag")
	}
	if so.IsInBag(1) || so.IsInBag(3) {
		t.Fatalf("expected rows 1 and 3 out of bag")
	}

	s0 := so.Samples[so.Row2Sample[0]]
	if s0.YSum != 20 || s0.SCount != 2 {
		t.Fatalf("expected row 0 YSum=20 SCount=2, got %+v", s0)
	}

	oob := so.OOBRows()
	if len(oob) != 2 || oob[0] != 1 || oob[1] != 3 {
		t.Fatalf("expected OOB rows [1 3], got %v", oob)
	}
}

func TestInBagFractionNearOneMinusInverseE(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const nObs = 1000
	nux := Draw(rng, nObs, nObs, true, nil)
	so := Materialize(nObs, nux, make([]float64, nObs), nil, 0)

	frac := float64(so.BagCount) / float64(nObs)
	// asymptotically ~1 - 1/e ≈ 0.632; allow a wide band since a single
	// draw is still a random sample.
	if frac < 0.55 || frac > 0.72 {
		t.Fatalf("expected roughly 63%% of rows in-bag, got %.3f (%d/%d distinct rows)", frac, so.BagCount, nObs)
	}
}

func TestOOBCoverageAcrossManyBootstraps(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	const nObs = 100
	const nTree = 500

	coveredOOB := make([]bool, nObs)
	for i := 0; i < nTree; i++ {
		nux := Draw(rng, nObs, nObs, true, nil)
		so := Materialize(nObs, nux, make([]float64, nObs), nil, 0)
		for _, row := range so.OOBRows() {
			coveredOOB[row] = true
		}
	}

	for row, covered := range coveredOOB {
		if !covered {
			t.Fatalf("row %d was never out-of-bag across %d bootstraps; expected every row OOB-scored by at least one tree with overwhelming probability", row, nTree)
		}
	}
}

func TestMaterializeClassification(t *testing.T) {
	nux := []Nux{{DelRow: 1, SCount: 3}}
	yCtg := []int{0, 1, 0}
	so := Materialize(3, nux, nil, yCtg, 2)

	if so.CtgRoot[1] != 3 {
		t.Fatalf("expected root census to count 3 for category 1, got %v", so.CtgRoot)
	}
	s := so.Samples[0]
	if s.Ctg != 1 || s.YSum != 3 {
		t.Fatalf("expected sample ctg=1 ySum=3, got %+v", s)
	}
}
