// Package frontier implements the level-synchronous Frontier loop of
// spec §4.5: one IndexSet per live node, candidate selection, schedule/
// flush/restage/split/commit/reindex/overlap, repeated until every node
// has terminalized.
//
// Grounded on the teacher's tree/build.go recursive splitter
// (candidate-predictor sampling via Fisher-Yates, termination checks,
// recursive left/right descent) generalized from per-node recursion
// into the breadth-first, level-at-a-time loop spec §4.5 describes, and
// on _examples/original_source/frontier/frontier.cc for the seven-step
// level body (candidate selection through overlap).
package frontier

import (
	"math/rand"

	"github.com/arbolito/rf/defmap"
	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/obspart"
	"github.com/arbolito/rf/pretree"
	"github.com/arbolito/rf/rfconfig"
	"github.com/arbolito/rf/rferrors"
	"github.com/arbolito/rf/rheap"
	"github.com/arbolito/rf/sampler"
	"github.com/arbolito/rf/split"
)

// indexSet is one live node's bookkeeping for the current level (spec's
// "IndexSet"): its defmap-local node index, pre-tree node index, and
// response aggregates.
type indexSet struct {
	local      int
	ptIdx      int
	start      int
	extent     int
	sum        float64
	sCount     int
	ctgSum     []float64
	originInfo float64 // info of the split that produced this node; 0 for root
}

// candidate is one {node, predictor} pair scheduled for this level.
type candidate struct {
	set  indexSet
	pred int
	res  defmap.PreResult
}

// Run grows one tree's pre-tree to completion from a staged, sampled
// observation partition, and returns it.
func Run(f *frame.Frame, op *obspart.ObsPart, stage []obspart.StageCount, so *sampler.SampledObs, rng *rand.Rand, cfg *rfconfig.TrainConfig, root indexSetSeed, warnings *rferrors.WarningSink) *pretree.PreTree {
	dm := defmap.New(f.NPred, op.BagCount, cfg.FlushEfficiency)

	runCount := make([]int, f.NPred)
	for p := 0; p < f.NPred; p++ {
		runCount[p] = f.Ranked(p).NRank
	}
	dm.RootDef(stage, runCount)
	dm.RefreshDense(op)

	if degenerate, msg := degenerateRoot(so); degenerate {
		warnings.Add("%s", msg)
	}

	pt := pretree.New(root.Sum, root.SCount, root.CtgSum)
	sets := []indexSet{{local: 0, ptIdx: 0, start: 0, extent: op.BagCount, sum: root.Sum, sCount: root.SCount, ctgSum: root.CtgSum}}

	predProb := cfg.PredProb
	if len(predProb) == 0 {
		predProb = make([]float64, f.NPred)
		for i := range predProb {
			predProb[i] = 1
		}
	}

	for level := 0; len(sets) > 0; level++ {
		atLevelCap := cfg.TotLevels > 0 && level == cfg.TotLevels-1
		groups := dm.GroupSamples()

		var alive []indexSet
		for _, set := range sets {
			if set.sCount < cfg.MinNode || atLevelCap || unsplitable(set) {
				markExtinct(dm, groups[set.local])
				continue
			}
			alive = append(alive, set)
		}

		candidates := schedule(dm, alive, rng, predProb, cfg.PredFixed)

		restageKeys := map[defmap.RestageKey]bool{}
		for _, c := range candidates {
			if c.res.Del > 0 {
				restageKeys[defmap.KeyFor(c.res, c.pred)] = true
			}
		}
		dm.FlushRear(op)
		for key := range restageKeys {
			dm.Restage(op, key)
		}

		best := bestSplitPerNode(dm, op, f, candidates, cfg)

		var next []defmap.NewFrontierNode
		var live []indexSet
		nextLocal := 0

		for _, set := range alive {
			nux, ok := best[set.local]
			if !ok || nux.Info <= 0 || nux.Info < cfg.MinRatio*set.originInfo {
				markExtinct(dm, groups[set.local])
				continue
			}

			col := f.Ranked(nux.Pred)
			isFactor := f.IsFactor(nux.Pred)
			sampleRank := make(map[int]int32, len(groups[set.local]))
			for _, o := range op.Source(nux.Pred, nux.BufIdx, nux.Start, nux.Extent) {
				sampleRank[int(o.SampleIdx)] = o.Rank
			}

			var leftSum, rightSum float64
			var leftSCount, rightSCount int
			var leftCtg, rightCtg []float64
			if set.ctgSum != nil {
				leftCtg = make([]float64, len(set.ctgSum))
				rightCtg = make([]float64, len(set.ctgSum))
			}

			leftSamples := make([]int, 0, len(groups[set.local]))
			rightSamples := make([]int, 0, len(groups[set.local]))

			for _, s := range groups[set.local] {
				rank, explicit := sampleRank[s]
				if !explicit {
					rank = col.ImplicitRank
				}
				sn := so.Samples[s]
				if branchLeft(isFactor, rank, nux.CutValue, nux.Bits, col) {
					leftSamples = append(leftSamples, s)
					leftSum += sn.YSum
					leftSCount += sn.SCount
					if leftCtg != nil {
						leftCtg[sn.Ctg] += sn.YSum
					}
				} else {
					rightSamples = append(rightSamples, s)
					rightSum += sn.YSum
					rightSCount += sn.SCount
					if rightCtg != nil {
						rightCtg[sn.Ctg] += sn.YSum
					}
				}
			}

			left, right := pt.Commit(set.ptIdx, nux.Pred, nux.Info, isFactor, nux.CutValue, nux.Bits, leftSum, leftSCount, leftCtg)
			// Commit derives the right child's aggregate by subtracting
			// from the parent; overwrite with our exact per-sample tally
			// so classification's per-category split survives exactly
			// (Commit alone cannot know the per-category breakdown of a
			// factor/Bits split without replaying it).
			pt.Nodes[left].Sum, pt.Nodes[left].SCount, pt.Nodes[left].CtgSum = leftSum, leftSCount, leftCtg
			pt.Nodes[right].Sum, pt.Nodes[right].SCount, pt.Nodes[right].CtgSum = rightSum, rightSCount, rightCtg

			leftLocal, rightLocal := nextLocal, nextLocal+1
			nextLocal += 2

			leftStart := set.start
			rightStart := set.start + len(leftSamples)
			next = append(next,
				defmap.NewFrontierNode{Parent: set.local, Start: leftStart, Extent: len(leftSamples)},
				defmap.NewFrontierNode{Parent: set.local, Start: rightStart, Extent: len(rightSamples)},
			)

			for _, s := range leftSamples {
				dm.SetSampleNode(s, leftLocal, 0)
			}
			for _, s := range rightSamples {
				dm.SetSampleNode(s, rightLocal, 1)
			}

			live = append(live,
				indexSet{local: leftLocal, ptIdx: left, start: leftStart, extent: len(leftSamples), sum: leftSum, sCount: leftSCount, ctgSum: leftCtg, originInfo: nux.Info},
				indexSet{local: rightLocal, ptIdx: right, start: rightStart, extent: len(rightSamples), sum: rightSum, sCount: rightSCount, ctgSum: rightCtg, originInfo: nux.Info},
			)
		}

		dm.Overlap(next)
		dm.RefreshDense(op)
		rferrors.Check(dm.Depth() <= defmap.PathMax, "defmap retained layer depth exceeded PathMax")

		sets = live
	}

	return pt
}

// indexSetSeed carries the root node's aggregates into Run.
type indexSetSeed struct {
	Sum    float64
	SCount int
	CtgSum []float64
}

// NewRootSeed builds the root aggregates from a SampledObs.
func NewRootSeed(so *sampler.SampledObs) indexSetSeed {
	var sum float64
	var ctgSum []float64
	if so.CtgRoot != nil {
		ctgSum = make([]float64, len(so.CtgRoot))
	}
	for _, sn := range so.Samples {
		sum += sn.YSum
		if ctgSum != nil {
			ctgSum[sn.Ctg] += sn.YSum
		}
	}
	return indexSetSeed{Sum: sum, SCount: so.BagCount, CtgSum: ctgSum}
}

// degenerateRoot reports whether the bootstrap sample handed to this
// tree already has zero variance (regression) or a single live class
// (classification), in which case the level loop below will terminate
// after the root without ever finding a positive-info split — a
// diagnostic worth surfacing rather than a silent single-leaf tree.
func degenerateRoot(so *sampler.SampledObs) (bool, string) {
	if so.CtgRoot != nil {
		nonZero := 0
		for _, c := range so.CtgRoot {
			if c > 0 {
				nonZero++
			}
		}
		if nonZero <= 1 {
			return true, "degenerate response: bootstrap sample contains a single class, tree will not split"
		}
		return false, ""
	}

	if len(so.Samples) == 0 {
		return false, ""
	}
	first := so.Samples[0].YSum / float64(so.Samples[0].SCount)
	for _, sn := range so.Samples[1:] {
		if sn.YSum/float64(sn.SCount) != first {
			return false, ""
		}
	}
	return true, "degenerate response: bootstrap sample has zero variance, tree will not split"
}

// schedule performs spec §4.5 steps 1-2: per-node candidate-predictor
// selection followed by DefMap.Preschedule, dropping singletons.
func schedule(dm *defmap.DefMap, alive []indexSet, rng *rand.Rand, predProb []float64, predFixed int) []candidate {
	var out []candidate
	for _, set := range alive {
		for _, pred := range selectCandidates(rng, predProb, predFixed) {
			res := dm.Preschedule(set.local, pred)
			if !res.Found || res.Singleton {
				continue
			}
			out = append(out, candidate{set: set, pred: pred, res: res})
		}
	}
	return out
}

func bestSplitPerNode(dm *defmap.DefMap, op *obspart.ObsPart, f *frame.Frame, candidates []candidate, cfg *rfconfig.TrainConfig) map[int]split.SplitNux {
	best := map[int]split.SplitNux{}
	for _, c := range candidates {
		res := dm.Preschedule(c.set.local, c.pred) // now resolved at front (Del 0)
		if !res.Found || res.Singleton {
			continue
		}
		col := f.Ranked(c.pred)
		obs := op.Source(c.pred, res.Def.BufIdx, res.Def.Start, res.Def.Extent)
		totals := split.NodeTotals{Sum: c.set.sum, SCount: c.set.sCount, CtgSum: c.set.ctgSum}
		kind := splitKind(f.IsFactor(c.pred), c.set.ctgSum != nil)
		nux := split.Run(kind, c.set.local, c.pred, obs, col, totals, res.Def.DenseCount,
			res.Def.BufIdx, res.Def.Start, res.Def.Extent,
			cfg.SplitQuantFor(c.pred), monoFor(cfg, c.pred, kind), runMaxFor(col))
		if !nux.Found {
			continue
		}
		if cur, ok := best[c.set.local]; !ok || nux.Info > cur.Info {
			best[c.set.local] = nux
		}
	}
	return best
}

func unsplitable(set indexSet) bool {
	if set.ctgSum == nil {
		return false // regression purity is left to the "no positive info" rule
	}
	nonZero := 0
	for _, c := range set.ctgSum {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func markExtinct(dm *defmap.DefMap, samples []int) {
	for _, s := range samples {
		dm.MarkExtinct(s)
	}
}

func splitKind(isFactor, isCtg bool) split.Kind {
	switch {
	case !isFactor && !isCtg:
		return split.NumReg
	case !isFactor && isCtg:
		return split.NumCtg
	case isFactor && !isCtg:
		return split.FacReg
	default:
		return split.FacCtg
	}
}

func monoFor(cfg *rfconfig.TrainConfig, pred int, kind split.Kind) float64 {
	if kind != split.NumReg {
		return 0
	}
	return cfg.MonoFor(pred)
}

// runMaxFor bounds multi-class factor run enumeration (spec §4.6:
// "If k > runMax, first collapse lowest-weight runs into a wide
// class"), matching ArboristCore's default maximum run-set width.
func runMaxFor(col *frame.Column) int {
	if col.Kind != frame.Factor {
		return 0
	}
	const runMax = 10
	return runMax
}

func branchLeft(isFactor bool, rank int32, cutValue float64, bits uint64, col *frame.Column) bool {
	if isFactor {
		return bits&(1<<uint(rank)) != 0
	}
	return col.RankValue[rank] <= cutValue
}

// selectCandidates implements spec §4.5 step 1: either independent
// Bernoulli draws per predictor (predFixed == 0) or a fixed-size
// weighted top-k draw keeping the predFixed largest u*predProb[pred]
// keys in a min-heap (the smallest kept key is evicted first).
func selectCandidates(rng *rand.Rand, predProb []float64, predFixed int) []int {
	if predFixed <= 0 {
		var out []int
		for pred, p := range predProb {
			if rng.Float64() < p {
				out = append(out, pred)
			}
		}
		return out
	}

	h := rheap.New(predFixed)
	for pred, p := range predProb {
		u := rng.Float64()
		key := u * p
		if h.Len() < predFixed {
			h.Push(rheap.Item{Key: key, Slot: pred})
			continue
		}
		if h.Len() > 0 && key > h.Peek().Key {
			h.Pop()
			h.Push(rheap.Item{Key: key, Slot: pred})
		}
	}
	out := make([]int, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, h.Pop().Slot)
	}
	return out
}
