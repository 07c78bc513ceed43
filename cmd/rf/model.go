package main

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/arbolito/rf/forest"
	"github.com/arbolito/rf/rfconfig"
)

type Model struct {
	IsRegression bool
	Clf          *forest.Classifier
	Reg          *forest.Regressor
	VarNames     []string
	fitTime      time.Duration
	opt          modelOptions
	nSample      int
}

// autoMaxFeatures mirrors the teacher's own maxFeatures == -1 default:
// sqrt(nPred) for classification, nPred/3 for regression.
func autoMaxFeatures(isRegression bool, nPred int) int {
	var mf int
	if isRegression {
		mf = nPred / 3
	} else {
		mf = int(math.Sqrt(float64(nPred)))
	}
	if mf < 1 {
		mf = 1
	}
	return mf
}

func (m *Model) Fit(d *parsedInput, opt modelOptions) {
	start := time.Now()

	mf := opt.maxFeatures
	if mf <= 0 {
		mf = autoMaxFeatures(d.isRegression, len(d.VarNames))
	}

	if d.isRegression {
		reg := forest.NewRegressor(
			rfconfig.NTree(opt.nTree),
			rfconfig.MinNode(opt.minSplit),
			rfconfig.PredFixed(mf),
			rfconfig.NThread(opt.nWorkers),
			rfconfig.LeafMax(opt.leafMax),
			rfconfig.Replace(opt.replace),
			rfconfig.TotLevels(opt.totLevels),
			rfconfig.TreeBlock(opt.treeBlock),
		)

		reg.Fit(d.X, d.YReg)
		m.Reg = reg
		m.IsRegression = true
		opt.nTree = m.Reg.NTrees
	} else {
		clf := forest.NewClassifier(
			rfconfig.NTree(opt.nTree),
			rfconfig.MinNode(opt.minSplit),
			rfconfig.PredFixed(mf),
			rfconfig.NThread(opt.nWorkers),
			rfconfig.LeafMax(opt.leafMax),
			rfconfig.Replace(opt.replace),
			rfconfig.TotLevels(opt.totLevels),
			rfconfig.TreeBlock(opt.treeBlock),
		)

		clf.Fit(d.X, d.YClf)
		m.Clf = clf
		opt.nTree = m.Clf.NTrees
	}
	m.fitTime = time.Since(start)
	m.VarNames = d.VarNames
	m.nSample = len(d.X)
	m.opt = opt
}

func (m *Model) Predict(d *parsedInput) ([]string, error) {
	var pStr []string

	// make sure model and data match
	// No, assume the user knows what they are doing...
	// if d.isRegression != m.IsRegression {
	// 	return pStr, errors.New("model type and datatype don't match")
	// }

	pStr = make([]string, len(d.X))

	if m.IsRegression {
		pNum := m.Reg.Predict(d.X)

		for i, v := range pNum {
			pStr[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	} else {
		pID := m.Clf.Predict(d.X)

		for i, id := range pID {
			pStr[i] = m.Clf.Classes[id]
		}
	}

	return pStr, nil
}

func (m *Model) Report(w io.Writer) {
	// generic stuff
	fmt.Fprintf(w, "Fit %d trees using %d examples in %.2f seconds\n",
		m.opt.nTree, m.nSample, m.fitTime.Seconds())
	fmt.Fprintf(w, "\n")

	m.ReportVarImp(w, 20)

	if m.IsRegression {
		m.reportReg(w)
	} else {
		m.reportClf(w)
	}
}

func (m *Model) reportClf(w io.Writer) {
	fmt.Fprintf(w, "Confusion Matrix\n")
	fmt.Fprintf(w, "----------------\n")
	// print confusion matrix
	// headers
	fmt.Fprintf(w, "%-14s ", "")
	for _, class := range m.Clf.Classes {
		fmt.Fprintf(w, "%-14s ", class)
	}
	fmt.Fprintf(w, "\n")

	// rows
	for predictedID, class := range m.Clf.Classes {
		fmt.Fprintf(w, "%-14s ", class)

		for actualID := range m.Clf.Classes {
			fmt.Fprintf(w, "%-14d ", m.Clf.ConfusionMatrix[actualID][predictedID])
		}

		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Overall Accuracy: %.2f%%\n", 100.0*m.Clf.Accuracy)
}

func (m *Model) reportReg(w io.Writer) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Mean Squared Error: %.3f\n", m.Reg.MSE)
	fmt.Fprintf(w, "R-Squared: %.3f%%\n", 100*m.Reg.RSquared)
}

func (m *Model) VarImp() []float64 {
	if m.IsRegression {
		return m.Reg.VarImp()
	}
	return m.Clf.VarImp()
}

func (m *Model) SaveVarImp(w io.Writer) error {
	writer := csv.NewWriter(w)

	for i, score := range m.VarImp() {
		err := writer.Write([]string{m.VarNames[i], strconv.FormatFloat(score, 'f', -1, 64)})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return nil
}

func (m *Model) ReportVarImp(w io.Writer, maxVars int) {
	fmt.Fprintf(w, "Variable Importance\n")
	fmt.Fprintf(w, "-------------------\n")

	varImp := m.VarImp()
	varNames := make([]string, len(m.VarNames))
	copy(varNames, m.VarNames) // don't sort the orig.
	sortByImportance(varImp, varNames)

	// only show top n
	if maxVars > len(varImp) {
		maxVars = len(varImp)
	}

	for i, imp := range varImp[:maxVars] {
		fmt.Fprintf(w, "%-15s: %-10.2f\n", varNames[i], imp)
	}

	fmt.Fprintf(w, "\n")
}

func (m *Model) Load(r io.Reader) error {
	d := gob.NewDecoder(r)
	return d.Decode(m)
}

func (m *Model) Save(w io.Writer) error {
	e := gob.NewEncoder(w)
	return e.Encode(m)
}

type varImpSort struct {
	varName []string
	imp     []float64
}

func (v varImpSort) Len() int {
	return len(v.imp)
}

func (v varImpSort) Less(i, j int) bool {
	return v.imp[i] < v.imp[j]
}

func (v varImpSort) Swap(i, j int) {
	v.imp[i], v.imp[j] = v.imp[j], v.imp[i]
	v.varName[i], v.varName[j] = v.varName[j], v.varName[i]
}

func sortByImportance(imp []float64, names []string) {
	sort.Sort(sort.Reverse(varImpSort{imp: imp, varName: names}))
}
