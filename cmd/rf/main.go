package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/davecheney/profile"

	flag "github.com/docker/docker/pkg/mflag"
)

var (
	// model/prediction files
	dataFile    = flag.String([]string{"d", "-data"}, "", "example data")
	predictFile = flag.String([]string{"p", "-predictions"}, "", "file to output predictions")
	modelFile   = flag.String([]string{"f", "-final_model"}, "rf.model", "file to output fitted model")
	impFile     = flag.String([]string{"-var_importance"}, "", "file to output variable importance estimates")
	// model params
	nTree       = flag.Int([]string{"-trees"}, 10, "number of trees")
	minSplit    = flag.Int([]string{"-min_split"}, 2, "minimum number of samples required to split an internal node")
	maxFeatures = flag.Int([]string{"-max_features"}, -1, "number of features to consider when looking for the best split, -1 will default to sqrt(# features) or # features / 3 for regression")
	leafMax     = flag.Int([]string{"-leaf_max"}, 0, "maximum number of leaves per tree after pre-tree merging, 0 for unlimited")
	noReplace   = flag.Bool([]string{"-no_replace"}, false, "draw each tree's bootstrap sample without replacement")
	totLevels   = flag.Int([]string{"-max_depth"}, 0, "maximum number of node levels per tree counting the root as level 1 (2 allows one split), 0 for unbounded")
	// force classification
	forceClf = flag.Bool([]string{"c", "-classification"}, false, "force parser to use integer targets/labels for classification")
	// runtime params
	nWorkers   = flag.Int([]string{"-workers"}, 1, "number of workers for fitting trees")
	treeBlock  = flag.Int([]string{"-tree_block"}, 20, "number of trees queued to the worker pool at a time")
	runProfile = flag.Bool([]string{"-profile"}, false, "cpu profile")
)

type modelOptions struct {
	nTree       int
	minSplit    int
	maxFeatures int
	leafMax     int
	replace     bool
	totLevels   int
	nWorkers    int
	treeBlock   int
}

func parseModelOpts() (modelOptions, error) {
	o := modelOptions{
		nTree:       *nTree,
		minSplit:    *minSplit,
		maxFeatures: *maxFeatures,
		leafMax:     *leafMax,
		replace:     !*noReplace,
		totLevels:   *totLevels,
		nWorkers:    *nWorkers,
		treeBlock:   *treeBlock,
	}

	return o, nil
}

func main() {
	flag.Parse()

	if *nWorkers > 1 {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	if *runProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	if *dataFile == "" {
		fmt.Fprintf(os.Stderr, "Usage of rf:\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	d, err := readData(*dataFile, *forceClf)
	if err != nil {
		fatal("error parsing input data", err.Error())
	}

	if *predictFile != "" {
		runPredict(d)
	} else {
		runFit(d)
	}
}

// readData opens and parses the CSV named by path, returning either the
// file-open error or parseCSV's error unchanged.
func readData(path string, classification bool) (*parsedInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseCSV(f, classification)
}

// runPredict loads the fitted model named by modelFile, scores d, and
// writes one prediction per row to predictFile.
func runPredict(d *parsedInput) {
	m, err := loadModel(*modelFile)
	if err != nil {
		fatal("error opening model file", err.Error())
	}

	pred, err := m.Predict(d)
	if err != nil {
		fatal(err.Error())
	}

	o, err := os.Create(*predictFile)
	if err != nil {
		fatal("error creating", *predictFile, err.Error())
	}
	defer o.Close()

	if err := writePred(o, pred); err != nil {
		fatal("error writing predictions", err.Error())
	}
}

// runFit trains a model on d, persists it to modelFile, optionally
// writes variable importance, and reports a fit summary to stderr.
func runFit(d *parsedInput) {
	opt, err := parseModelOpts()
	if err != nil {
		fatal("invalid model option", err.Error())
	}

	m := new(Model)
	m.Fit(d, opt)

	o, err := os.Create(*modelFile)
	if err != nil {
		fatal("error saving model", err.Error())
	}
	defer o.Close()

	if err := m.Save(o); err != nil {
		fatal("error saving model", err.Error())
	}

	if *impFile != "" {
		f, err := os.Create(*impFile)
		if err != nil {
			fatal("error saving variable importance", err.Error())
		}
		defer f.Close()
		if err := m.SaveVarImp(f); err != nil {
			fatal("error saving variable importance", err.Error())
		}
	}

	m.Report(os.Stderr)
}

func loadModel(fName string) (*Model, error) {
	f, err := os.Open(fName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := new(Model)
	err = m.Load(f)
	return m, err
}

func fatal(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
	os.Exit(1)
}

func writePred(w io.Writer, prediction []string) error {
	wtr := bufio.NewWriter(w)

	for _, pred := range prediction {
		_, err := wtr.WriteString(pred)
		if err != nil {
			return err
		}

		err = wtr.WriteByte('\n')
		if err != nil {
			return err
		}
	}

	return wtr.Flush()
}
