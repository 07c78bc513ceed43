package main

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

func TestAutoMaxFeaturesClassificationUsesSqrt(t *testing.T) {
	if got := autoMaxFeatures(false, 9); got != 3 {
		t.Fatalf("expected sqrt(9)=3, got %d", got)
	}
}

func TestAutoMaxFeaturesRegressionUsesThird(t *testing.T) {
	if got := autoMaxFeatures(true, 9); got != 3 {
		t.Fatalf("expected 9/3=3, got %d", got)
	}
}

func TestAutoMaxFeaturesNeverZero(t *testing.T) {
	if got := autoMaxFeatures(false, 0); got != 1 {
		t.Fatalf("expected a floor of 1 for a degenerate predictor count, got %d", got)
	}
	if got := autoMaxFeatures(true, 1); got != 1 {
		t.Fatalf("expected a floor of 1 (1/3 truncates to 0), got %d", got)
	}
}

func regressionFixture(n int) *parsedInput {
	rng := rand.New(rand.NewSource(3))
	d := &parsedInput{isRegression: true, VarNames: []string{"x0", "x1"}}
	for i := 0; i < n; i++ {
		v := float64(i % 20)
		d.X = append(d.X, []float64{v, rng.Float64() * 0.01})
		d.YReg = append(d.YReg, 3*v+2)
	}
	return d
}

func TestModelFitPredictRegression(t *testing.T) {
	d := regressionFixture(150)

	m := new(Model)
	m.Fit(d, modelOptions{nTree: 10, minSplit: 2, maxFeatures: -1, nWorkers: 1, replace: true, treeBlock: 20})

	if !m.IsRegression {
		t.Fatalf("expected the model to detect regression")
	}
	if m.Reg.NTrees != 10 {
		t.Fatalf("expected 10 trees, got %d", m.Reg.NTrees)
	}

	pred, err := m.Predict(d)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred) != len(d.X) {
		t.Fatalf("expected one prediction per row, got %d for %d rows", len(pred), len(d.X))
	}
}

func classificationFixture(n int) *parsedInput {
	rng := rand.New(rand.NewSource(5))
	d := &parsedInput{isRegression: false, VarNames: []string{"x0", "x1"}}
	labels := []string{"a", "b"}
	for i := 0; i < n; i++ {
		label := labels[i%2]
		v := 0.0
		if label == "b" {
			v = 10.0
		}
		d.X = append(d.X, []float64{v + rng.Float64()*0.01, rng.Float64()})
		d.YClf = append(d.YClf, label)
	}
	return d
}

func TestModelFitPredictClassification(t *testing.T) {
	d := classificationFixture(150)

	m := new(Model)
	m.Fit(d, modelOptions{nTree: 10, minSplit: 2, maxFeatures: -1, nWorkers: 1, replace: true, treeBlock: 20})

	if m.IsRegression {
		t.Fatalf("expected the model to detect classification")
	}
	if len(m.Clf.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(m.Clf.Classes))
	}

	pred, err := m.Predict(d)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for _, label := range pred {
		if label != "a" && label != "b" {
			t.Fatalf("unexpected predicted label %q", label)
		}
	}
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	d := regressionFixture(100)

	m := new(Model)
	m.Fit(d, modelOptions{nTree: 5, minSplit: 2, maxFeatures: -1, nWorkers: 1, replace: true, treeBlock: 20})

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := new(Model)
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.IsRegression != m.IsRegression {
		t.Fatalf("expected IsRegression to round-trip")
	}
	if loaded.Reg.NTrees != m.Reg.NTrees {
		t.Fatalf("expected tree count to round-trip, got %d want %d", loaded.Reg.NTrees, m.Reg.NTrees)
	}

	pred, err := loaded.Predict(d)
	if err != nil {
		t.Fatalf("Predict after round-trip: %v", err)
	}
	if len(pred) != len(d.X) {
		t.Fatalf("expected predictions after round-trip, got %d", len(pred))
	}
}

func TestSaveVarImpWritesOneRowPerVariable(t *testing.T) {
	d := regressionFixture(100)

	m := new(Model)
	m.Fit(d, modelOptions{nTree: 5, minSplit: 2, maxFeatures: -1, nWorkers: 1, replace: true, treeBlock: 20})

	var buf bytes.Buffer
	if err := m.SaveVarImp(&buf); err != nil {
		t.Fatalf("SaveVarImp: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != len(d.VarNames) {
		t.Fatalf("expected %d rows (one per variable), got %d", len(d.VarNames), len(lines))
	}
	if !strings.HasPrefix(lines[0], "x0,") {
		t.Fatalf("expected the first row to start with the first variable name, got %q", lines[0])
	}
}
