// Package forest implements the Forest Writer and tree-level training
// loop of spec §4.8/§6: fitting NTree independent trees (each its own
// sample -> stage -> frontier -> pre-tree pipeline), flattening them
// into shared, persistence-ready arrays, and walking them at predict
// time.
//
// Grounded on the teacher's forest/forest.go and forest/regressor.go for
// the channel-based tree-level worker pool (bootstrap + fit dispatched
// across nWorkers goroutines, results drained off a shared channel) and
// for the gob Save/Load idiom; generalized from a per-tree *tree.Tree
// pointer forest to the flat NodeRecord/bitvec.Jagged layout spec §6
// requires for the "all numeric fields little-endian" wire format.
package forest

import (
	"encoding/binary"
	"encoding/gob"
	"io"
	"math"
	"math/rand"
	"runtime"

	"github.com/arbolito/rf/bitvec"
	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/frontier"
	"github.com/arbolito/rf/obspart"
	"github.com/arbolito/rf/rfconfig"
	"github.com/arbolito/rf/rferrors"
	"github.com/arbolito/rf/sampler"
)

// NodeRecord is one flattened pre-tree node (spec §4.8 "Forest Writer"):
// a non-terminal carries LHDel/PredIdx plus either CutValue (numeric) or
// BitOffset (factor, into the owning Forest's shared Bits region); a
// terminal (LHDel == 0) carries Score and, for classification, CtgSum.
type NodeRecord struct {
	LHDel     int32
	PredIdx   int32
	IsFactor  bool
	CutValue  float64
	BitOffset int32 // word offset into Forest.Bits; -1 when IsFactor is false
	Score     float64
	CtgSum    []float64 // nil for regression leaves
}

// Tree is one flattened, predict-ready decision tree.
type Tree struct {
	Nodes []NodeRecord
}

// walk descends x (one row, factor predictors encoded as their integer
// level cast to float64) to its landing leaf index.
func (t *Tree) walk(x []float64, bits *bitvec.Jagged) int {
	idx := 0
	for {
		n := &t.Nodes[idx]
		if n.LHDel == 0 {
			return idx
		}
		var left bool
		if n.IsFactor {
			left = bits.Test(int(n.BitOffset), int(x[n.PredIdx]))
		} else {
			left = x[n.PredIdx] <= n.CutValue
		}
		if left {
			idx += int(n.LHDel)
		} else {
			idx += int(n.LHDel) + 1
		}
	}
}

// Forest is the persisted, shared model: every tree's flattened nodes
// plus the one shared factor-bit region they index into.
type Forest struct {
	NPred      int
	NCtg       int // 0 for regression
	Trees      []*Tree
	Bits       *bitvec.Jagged
	Importance []float64 // per-predictor summed split info, spec §4.9
}

// treeResult is what one worker produces for one tree (spec §4.8's
// per-tree pipeline output plus its OOB rows for scoring).
type treeResult struct {
	tree       *Tree
	bits       *bitvec.Jagged
	oobRows    []int
	importance []float64
	warnings   []rferrors.Warning
}

// buildTree runs one tree's full sample -> stage -> frontier -> pre-tree
// pipeline and flattens the result into its own node array and bit
// region; each call owns a private *bitvec.Jagged and its own
// WarningSink so concurrent workers never share mutable state, and Fit
// stitches every tree's region and warnings into the forest-wide result
// afterward, single-threaded.
func buildTree(f *frame.Frame, rng *rand.Rand, cfg *rfconfig.TrainConfig, yReg []float64, yCtg []int, nCtg int) treeResult {
	nSamp := cfg.NSamp
	if nSamp == 0 {
		nSamp = f.NObs
	}

	nux := sampler.Draw(rng, f.NObs, nSamp, cfg.Replace, nil)
	so := sampler.Materialize(f.NObs, nux, yReg, yCtg, nCtg)

	op, stage := obspart.Stage(f, so)
	root := frontier.NewRootSeed(so)
	var warnings rferrors.WarningSink
	pt := frontier.Run(f, op, stage, so, rng, cfg, root, &warnings)
	pt.Merge(cfg.LeafMax)

	bits := bitvec.NewJagged()
	importance := make([]float64, f.NPred)
	nodes := make([]NodeRecord, len(pt.Nodes))
	for i, n := range pt.Nodes {
		rec := NodeRecord{LHDel: int32(n.LHDel), Score: n.Score, CtgSum: n.CtgSum, BitOffset: -1}
		if !n.IsTerminal() {
			rec.PredIdx = int32(n.PredIdx)
			rec.IsFactor = n.IsFactor
			importance[n.PredIdx] += n.Info
			if n.IsFactor {
				card := f.Cardinality(n.PredIdx)
				off := bits.Append(card)
				for lvl := 0; lvl < card; lvl++ {
					if n.BitsLeft&(1<<uint(lvl)) != 0 {
						bits.Set(off, lvl)
					}
				}
				rec.BitOffset = int32(off)
			} else {
				rec.CutValue = n.CutValue
			}
		}
		nodes[i] = rec
	}

	return treeResult{tree: &Tree{Nodes: nodes}, bits: bits, oobRows: so.OOBRows(), importance: importance, warnings: warnings.Items()}
}

// Fit trains cfg.NTree independent trees over f, dispatched across a
// channel-based worker pool (grounded on the teacher's
// forest/regressor.go Fit: a work channel of tree indices, nWorkers
// goroutines each drawing a bootstrap and fitting one tree, results
// drained off a shared results channel). seed seeds one independent
// *rand.Rand per tree so per-tree draws stay reproducible regardless of
// worker scheduling order; cfg.TreeBlock bounds how many in-flight jobs
// are queued at once, matching spec §6's tree-level parallelism grain.
func Fit(f *frame.Frame, cfg *rfconfig.TrainConfig, yReg []float64, yCtg []int, nCtg int, seed *rand.Rand, warnings *rferrors.WarningSink) (*Forest, [][]int) {
	nWorkers := cfg.NThread
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}

	type job struct {
		idx int
		rng *rand.Rand
	}
	type out struct {
		idx int
		res treeResult
	}

	jobs := make(chan job, cfg.TreeBlock)
	results := make(chan out, cfg.TreeBlock)

	go func() {
		for i := 0; i < cfg.NTree; i++ {
			jobs <- job{idx: i, rng: rand.New(rand.NewSource(seed.Int63()))}
		}
		close(jobs)
	}()

	for w := 0; w < nWorkers; w++ {
		go func() {
			for j := range jobs {
				res := buildTree(f, j.rng, cfg, yReg, yCtg, nCtg)
				results <- out{idx: j.idx, res: res}
			}
		}()
	}

	trees := make([]*Tree, cfg.NTree)
	oob := make([][]int, cfg.NTree)
	importance := make([]float64, f.NPred)
	finalBits := bitvec.NewJagged()

	for i := 0; i < cfg.NTree; i++ {
		o := <-results
		trees[o.idx] = rebaseTree(o.res.tree, o.res.bits, finalBits)
		oob[o.idx] = o.res.oobRows
		for p, v := range o.res.importance {
			importance[p] += v
		}
		for _, w := range o.res.warnings {
			warnings.Add("%s", w.Msg)
		}
	}

	return &Forest{NPred: f.NPred, NCtg: nCtg, Trees: trees, Bits: finalBits, Importance: importance}, oob
}

// rebaseTree appends src's private bit region onto dst and returns a
// copy of t whose BitOffset fields point into dst instead of src.
func rebaseTree(t *Tree, src *bitvec.Jagged, dst *bitvec.Jagged) *Tree {
	start := dst.AppendWords(src.Words())

	out := make([]NodeRecord, len(t.Nodes))
	copy(out, t.Nodes)
	for i := range out {
		if out[i].IsFactor {
			out[i].BitOffset += int32(start)
		}
	}
	return &Tree{Nodes: out}
}

// Predict returns, for each row of x, the mean of the landing leaves'
// Score across trees. It does not vote: for a classification forest the
// result is the average of the leaves' category indices, and
// PredictCtg returns the argmax category id.
func (fo *Forest) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, t := range fo.Trees {
			leaf := t.walk(row, fo.Bits)
			sum += t.Nodes[leaf].Score
		}
		out[i] = sum / float64(len(fo.Trees))
	}
	return out
}

// PredictProb returns, for each row of x, the forest-averaged per-class
// probability vector (classification only; nil for a regression forest).
func (fo *Forest) PredictProb(x [][]float64) [][]float64 {
	if fo.NCtg == 0 {
		return nil
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		probs := make([]float64, fo.NCtg)
		for _, t := range fo.Trees {
			leaf := t.walk(row, fo.Bits)
			cs := t.Nodes[leaf].CtgSum
			var total float64
			for _, v := range cs {
				total += v
			}
			if total == 0 {
				continue
			}
			for c, v := range cs {
				probs[c] += v / total
			}
		}
		for c := range probs {
			probs[c] /= float64(len(fo.Trees))
		}
		out[i] = probs
	}
	return out
}

// PredictCtg returns the argmax category id per row (classification).
func (fo *Forest) PredictCtg(x [][]float64) []int {
	probs := fo.PredictProb(x)
	out := make([]int, len(x))
	for i, p := range probs {
		best, bestV := 0, -1.0
		for c, v := range p {
			if v > bestV {
				bestV = v
				best = c
			}
		}
		out[i] = best
	}
	return out
}

// Save persists the forest via gob, matching the teacher's
// forest/forest.go Save/Load idiom exactly.
func (fo *Forest) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(fo)
}

// Load restores a forest previously written by Save.
func Load(r io.Reader) (*Forest, error) {
	fo := new(Forest)
	if err := gob.NewDecoder(r).Decode(fo); err != nil {
		return nil, err
	}
	return fo, nil
}

// WriteWire serializes the forest in the little-endian binary layout
// spec §6 names as the forest's wire format (distinct from the gob
// encoding Save uses for on-disk persistence): a header of counts
// followed by each tree's flattened node array and the shared bit
// stream, every numeric field little-endian via encoding/binary.
func (fo *Forest) WriteWire(w io.Writer) error {
	buf := make([]byte, 0, 4096)
	buf = appendI64(buf, int64(fo.NPred))
	buf = appendI64(buf, int64(fo.NCtg))
	buf = appendI64(buf, int64(len(fo.Trees)))

	for _, t := range fo.Trees {
		buf = appendI64(buf, int64(len(t.Nodes)))
		for _, n := range t.Nodes {
			buf = appendI64(buf, int64(n.LHDel))
			buf = appendI64(buf, int64(n.PredIdx))
			buf = appendBool(buf, n.IsFactor)
			buf = appendF64(buf, n.CutValue)
			buf = appendI64(buf, int64(n.BitOffset))
			buf = appendF64(buf, n.Score)
			buf = appendI64(buf, int64(len(n.CtgSum)))
			for _, v := range n.CtgSum {
				buf = appendF64(buf, v)
			}
		}
	}

	buf = appendI64(buf, int64(len(fo.Bits.Words())))
	buf = fo.Bits.AppendLE(buf)

	buf = appendI64(buf, int64(len(fo.Importance)))
	for _, v := range fo.Importance {
		buf = appendF64(buf, v)
	}

	_, err := w.Write(buf)
	return err
}

func appendI64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func appendF64(dst []byte, v float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return append(dst, b[:]...)
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// VarImp returns the per-predictor summed split information, the same
// metric the teacher exposes as VarImp() on Classifier/Regressor.
func (fo *Forest) VarImp() []float64 {
	out := make([]float64, len(fo.Importance))
	copy(out, fo.Importance)
	return out
}
