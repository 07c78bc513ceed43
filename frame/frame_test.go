package frame

import (
	"math"
	"testing"
)

func TestBuildNumericDense(t *testing.T) {
	x := [][]float64{{1}, {2}, {1}, {1}, {3}}
	f, err := Build(5, DenseNumeric{X: x}, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.NPred != 1 || f.NPredNum != 1 || f.NPredFac != 0 {
		t.Fatalf("unexpected predictor counts: %+v", f)
	}

	col := f.Ranked(0)
	if col.Kind != Numeric {
		t.Fatalf("expected numeric column")
	}
	// value 1 occurs 3x, the most frequent value, so it should be implicit.
	if col.ImplicitRank < 0 {
		t.Fatalf("expected an implicit rank for the majority value")
	}
	if col.RankValue[col.ImplicitRank] != 1 {
		t.Fatalf("expected implicit rank to represent value 1, got %v", col.RankValue[col.ImplicitRank])
	}
	if col.ImplicitCount != 3 {
		t.Fatalf("expected implicit count 3, got %d", col.ImplicitCount)
	}
	// only rows holding 2 and 3 should be listed explicitly.
	if len(col.Pairs) != 2 {
		t.Fatalf("expected 2 explicit pairs, got %d: %+v", len(col.Pairs), col.Pairs)
	}
}

func TestBuildNumericSparse(t *testing.T) {
	// CSC: predictor 0 has explicit entries at rows 1 and 3; the rest are
	// implicit zero.
	s := SparseNumeric{
		NObs:   5,
		ColPtr: []int{0, 2},
		RowIdx: []int{1, 3},
		Values: []float64{5.0, 7.0},
	}
	f, err := Build(5, s, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	col := f.Ranked(0)
	if col.ImplicitRank < 0 {
		t.Fatalf("expected implicit zero rank for unlisted rows")
	}
	if col.ImplicitCount != 3 {
		t.Fatalf("expected 3 implicit zero rows, got %d", col.ImplicitCount)
	}
	if len(col.Pairs) != 2 {
		t.Fatalf("expected 2 explicit pairs, got %d", len(col.Pairs))
	}
}

func TestBuildFactor(t *testing.T) {
	factorX := [][]int{{0}, {1}, {0}, {0}, {2}}
	f, err := Build(5, nil, factorX, []int{3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.NPredNum != 0 || f.NPredFac != 1 {
		t.Fatalf("unexpected predictor counts: %+v", f)
	}
	if !f.IsFactor(0) {
		t.Fatalf("expected predictor 0 to be a factor")
	}
	if f.Cardinality(0) != 3 {
		t.Fatalf("expected cardinality 3, got %d", f.Cardinality(0))
	}
	col := f.Ranked(0)
	if col.ImplicitRank != 0 {
		t.Fatalf("expected level 0 (3 occurrences) to be implicit, got %d", col.ImplicitRank)
	}
}

func TestBuildFactorOutOfRange(t *testing.T) {
	factorX := [][]int{{0}, {5}}
	if _, err := Build(2, nil, factorX, []int{3}); err == nil {
		t.Fatalf("expected an error for an out-of-range factor code")
	}
}

func TestRemapLevel(t *testing.T) {
	factorX := [][]int{{0}, {1}, {0}}
	f, err := Build(3, nil, factorX, []int{2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	remapped, mismatch := f.RemapLevel(0, 1)
	if mismatch != nil || remapped != 1 {
		t.Fatalf("expected a clean remap of an observed level, got %d, %v", remapped, mismatch)
	}

	remapped, mismatch = f.RemapLevel(0, 7)
	if mismatch == nil {
		t.Fatalf("expected a LevelMismatch for an unseen level")
	}
	if remapped != f.Cardinality(0) {
		t.Fatalf("expected unseen level to remap to the proxy code %d, got %d", f.Cardinality(0), remapped)
	}
}

func TestBuildRejectsNonFinite(t *testing.T) {
	x := [][]float64{{1}, {math.NaN()}}
	if _, err := Build(2, DenseNumeric{X: x}, nil, nil); err == nil {
		t.Fatalf("expected an error for a NaN predictor value")
	}
}
