// Package split implements the four split accumulators of spec §4.6:
// numeric/factor x regression/classification, sharing a "sweep the
// sorted slice, track best" skeleton.
//
// Grounded directly on the teacher's tree/valuer.go (giniValuer/
// varValuer: running classCtL/classCtR and sL/ssL/sR/ssR sums swept
// left to right over a sorted index) generalized to run-level sweeps
// for factor predictors and to rank-boundary sweeps for numeric ones,
// per _examples/original_source/split/splitnux.h and cart/sfcart.cc.
package split

import (
	"sort"

	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/obspart"
)

// Kind tags which of the four accumulator variants to run.
type Kind int

const (
	NumReg Kind = iota
	NumCtg
	FacReg
	FacCtg
)

// NodeTotals are the scheduled node's full response aggregates,
// including any dense/implicit contribution not present as Obs entries.
type NodeTotals struct {
	Sum    float64
	SCount int
	CtgSum []float64 // nil for regression
}

// SplitNux is the per-{node,pred} candidate result of spec §4.6: the
// best boundary/subset found, its information gain, and enough of a
// coordinate for PreTree.Commit to materialize the split.
type SplitNux struct {
	Node, Pred int
	Found      bool
	Info       float64
	BufIdx     int
	Start      int
	Extent     int
	SCountL    int
	SumL       float64

	// Numeric predictors only.
	CutRank  int32
	CutValue float64

	// Factor predictors only: bit i set means factor level (rank id) i,
	// including every level folded into a collapsed "wide" run, is
	// assigned to the true branch.
	Bits uint64
}

// run is one rank/level's swept aggregate, used by both the numeric
// rank-boundary sweep and the factor run-sort sweep.
type run struct {
	rank    int32
	sum     float64
	sCount  int
	ctgSum  []float64
	members []int32 // original rank ids folded into this run (>1 only for a collapsed "wide" run)
}

func buildRuns(obs []obspart.Obs, nCtg int) []run {
	var runs []run
	var cur *run
	for _, o := range obs {
		if cur == nil || cur.rank != o.Rank {
			runs = append(runs, run{rank: o.Rank, members: []int32{o.Rank}})
			cur = &runs[len(runs)-1]
			if nCtg > 0 {
				cur.ctgSum = make([]float64, nCtg)
			}
		}
		cur.sum += o.YSum
		cur.sCount += int(o.SCount)
		if nCtg > 0 {
			cur.ctgSum[o.Ctg] += o.YSum
		}
	}
	return runs
}

// insertDense folds the node's dense/implicit aggregate (computed by
// subtracting the explicit run sums from the node total, per spec
// §4.4's "dense samples are emitted as a trailing run whose ySum/sCount
// are derived by subtracting the explicit aggregates from the layer
// total") into runs at col's implicit rank, in ascending-rank order.
func insertDense(runs []run, col *frame.Column, denseCount int, totals NodeTotals) []run {
	if denseCount <= 0 || col.ImplicitRank < 0 {
		return runs
	}
	dr := run{rank: col.ImplicitRank, members: []int32{col.ImplicitRank}, sCount: denseCount}
	dr.sum = totals.Sum
	if totals.CtgSum != nil {
		dr.ctgSum = make([]float64, len(totals.CtgSum))
		copy(dr.ctgSum, totals.CtgSum)
	}
	for _, r := range runs {
		dr.sum -= r.sum
		for c := range dr.ctgSum {
			dr.ctgSum[c] -= r.ctgSum[c]
		}
	}

	out := make([]run, 0, len(runs)+1)
	inserted := false
	for _, r := range runs {
		if !inserted && col.ImplicitRank < r.rank {
			out = append(out, dr)
			inserted = true
		}
		out = append(out, r)
	}
	if !inserted {
		out = append(out, dr)
	}
	return out
}

// Run dispatches to the accumulator named by kind and returns its best
// candidate. obs must already be in ascending-rank order (true of every
// Source slice produced by obspart, since staging and restaging only
// ever filter, never reorder, entries).
func Run(kind Kind, node, pred int, obs []obspart.Obs, col *frame.Column, totals NodeTotals, denseCount int, bufIdx, start, extent int, splitQuant, mono float64, runMax int) SplitNux {
	base := SplitNux{Node: node, Pred: pred, BufIdx: bufIdx, Start: start, Extent: extent, CutRank: -1}

	switch kind {
	case NumReg:
		return sweepNumeric(base, obs, col, totals, denseCount, splitQuant, mono, false)
	case NumCtg:
		return sweepNumeric(base, obs, col, totals, denseCount, splitQuant, 0, true)
	case FacReg:
		return sweepFactor(base, obs, col, totals, denseCount, runMax, false)
	case FacCtg:
		return sweepFactor(base, obs, col, totals, denseCount, runMax, true)
	}
	return base
}

// sweepNumeric implements spec §4.6's numeric regression/classification
// accumulators: a single left-to-right sweep over rank boundaries,
// tracking running (sumL, sCountL, ctgSumL[]).
func sweepNumeric(base SplitNux, obs []obspart.Obs, col *frame.Column, totals NodeTotals, denseCount int, splitQuant, mono float64, ctg bool) SplitNux {
	nCtg := 0
	if ctg {
		nCtg = len(totals.CtgSum)
	}
	runs := buildRuns(obs, nCtg)
	runs = insertDense(runs, col, denseCount, totals)
	if len(runs) < 2 {
		return base
	}

	var sumL float64
	var sCountL int
	var ctgSumL []float64
	if ctg {
		ctgSumL = make([]float64, nCtg)
	}

	parentInfo := infoOf(totals.Sum, totals.SCount, totals.CtgSum, ctg)

	best := base
	for i := 0; i < len(runs)-1; i++ {
		r := runs[i]
		sumL += r.sum
		sCountL += r.sCount
		if ctg {
			for c := range ctgSumL {
				ctgSumL[c] += r.ctgSum[c]
			}
		}
		if sCountL == 0 || sCountL == totals.SCount {
			continue
		}

		sumR := totals.Sum - sumL
		sCountR := totals.SCount - sCountL
		var ctgSumR []float64
		if ctg {
			ctgSumR = make([]float64, nCtg)
			for c := range ctgSumR {
				ctgSumR[c] = totals.CtgSum[c] - ctgSumL[c]
			}
		}

		if mono != 0 && !ctg {
			meanL := sumL / float64(sCountL)
			meanR := sumR / float64(sCountR)
			if mono > 0 && meanL > meanR {
				continue
			}
			if mono < 0 && meanL < meanR {
				continue
			}
		}

		infoL := infoOf(sumL, sCountL, ctgSumL, ctg)
		infoR := infoOf(sumR, sCountR, ctgSumR, ctg)
		// gain = childL + childR - parent over the ss/count proxy: for
		// regression sumL²/nL + sumR²/nR - sum²/n (the variance
		// reduction), for classification the Gini reduction (teacher's
		// giniValuer.delta shares this same ss-of-counts shape, just over
		// categories).
		info := infoL + infoR - parentInfo

		if info > best.Info {
			best = base
			best.Found = true
			best.Info = info
			best.SCountL = sCountL
			best.SumL = sumL
			best.CutRank = r.rank
			best.CutValue = interpolate(col, r.rank, runs[i+1].rank, splitQuant)
		}
	}
	return best
}

// infoOf returns a run/node's impurity-proxy value: sum²/count for
// regression (the children's values minus the parent's is the variance
// reduction of teacher's meanVar), sum-of-squared-category-sums over
// count for classification (teacher's gini, rearranged into the
// ss/count form the sweep updates incrementally without a division per
// category per step).
func infoOf(sum float64, sCount int, ctgSum []float64, ctg bool) float64 {
	if sCount == 0 {
		return 0
	}
	if !ctg {
		return sum * sum / float64(sCount)
	}
	var ss float64
	for _, c := range ctgSum {
		ss += c * c
	}
	return ss / float64(sCount)
}

func interpolate(col *frame.Column, lo, hi int32, quant float64) float64 {
	if col.Kind != frame.Numeric {
		return 0
	}
	loVal := col.RankValue[lo]
	hiVal := col.RankValue[hi]
	return loVal + quant*(hiVal-loVal)
}

// sweepFactor implements spec §4.6's factor regression/classification
// accumulators: runs are sorted by mean response (or, for multi-class,
// enumerated as subsets bounded by runMax), then evaluated as prefix
// splits of that ordering.
func sweepFactor(base SplitNux, obs []obspart.Obs, col *frame.Column, totals NodeTotals, denseCount int, runMax int, ctg bool) SplitNux {
	nCtg := 0
	if ctg {
		nCtg = len(totals.CtgSum)
	}
	runs := buildRuns(obs, nCtg)
	runs = insertDense(runs, col, denseCount, totals)
	if len(runs) < 2 {
		return base
	}

	if ctg && nCtg > 2 {
		return subsetFactor(base, runs, totals, runMax)
	}
	return orderedFactor(base, runs, totals, ctg)
}

// orderedFactor handles regression and binary classification: sorting
// runs by proxy mean and sweeping prefixes is provably optimal for a
// one-dimensional response, matching spec's "sort runs by mean/proxy
// ratio and evaluate in that order" for both cases.
func orderedFactor(base SplitNux, runs []run, totals NodeTotals, ctg bool) SplitNux {
	sort.Slice(runs, func(i, j int) bool {
		return proxy(runs[i], ctg) < proxy(runs[j], ctg)
	})

	var sumL float64
	var sCountL int
	var ctgSumL []float64
	nCtg := len(totals.CtgSum)
	if ctg {
		ctgSumL = make([]float64, nCtg)
	}
	parentInfo := infoOf(totals.Sum, totals.SCount, totals.CtgSum, ctg)

	best := base
	var leftRanks []int32
	for i := 0; i < len(runs)-1; i++ {
		r := runs[i]
		sumL += r.sum
		sCountL += r.sCount
		leftRanks = append(leftRanks, r.members...)
		if ctg {
			for c := range ctgSumL {
				ctgSumL[c] += r.ctgSum[c]
			}
		}
		if sCountL == 0 || sCountL == totals.SCount {
			continue
		}

		sumR := totals.Sum - sumL
		sCountR := totals.SCount - sCountL
		var ctgSumR []float64
		if ctg {
			ctgSumR = make([]float64, nCtg)
			for c := range ctgSumR {
				ctgSumR[c] = totals.CtgSum[c] - ctgSumL[c]
			}
		}

		infoL := infoOf(sumL, sCountL, ctgSumL, ctg)
		infoR := infoOf(sumR, sCountR, ctgSumR, ctg)
		info := infoL + infoR - parentInfo

		if info > best.Info {
			best = base
			best.Found = true
			best.Info = info
			best.SCountL = sCountL
			best.SumL = sumL
			best.Bits = bitsOf(leftRanks)
		}
	}
	return best
}

func proxy(r run, ctg bool) float64 {
	if r.sCount == 0 {
		return 0
	}
	if ctg {
		return r.ctgSum[len(r.ctgSum)-1] / float64(r.sCount)
	}
	return r.sum / float64(r.sCount)
}

// subsetFactor handles multi-class factor splits by enumerating
// non-empty, non-full run subsets (spec: "≤ 2^(k-1)-1" by fixing run 0
// to the right side to avoid evaluating complementary masks twice),
// first collapsing the lowest-weight runs into a single "wide" run if
// there are more than runMax of them.
func subsetFactor(base SplitNux, runs []run, totals NodeTotals, runMax int) SplitNux {
	if runMax > 0 && len(runs) > runMax {
		sort.Slice(runs, func(i, j int) bool { return runs[i].sCount < runs[j].sCount })
		nCtg := len(totals.CtgSum)
		wide := run{rank: runs[0].rank, ctgSum: make([]float64, nCtg)}
		excess := len(runs) - (runMax - 1)
		for i := 0; i < excess; i++ {
			wide.sum += runs[i].sum
			wide.sCount += runs[i].sCount
			wide.members = append(wide.members, runs[i].members...)
			for c := range wide.ctgSum {
				wide.ctgSum[c] += runs[i].ctgSum[c]
			}
		}
		runs = append([]run{wide}, runs[excess:]...)
	}

	k := len(runs)
	parentInfo := infoOf(totals.Sum, totals.SCount, totals.CtgSum, true)
	nCtg := len(totals.CtgSum)

	best := base
	for mask := uint64(2); mask < uint64(1)<<uint(k); mask += 2 {
		// bit0 (run 0) is always 0 (right side), halving the search space.
		var sumL float64
		var sCountL int
		ctgSumL := make([]float64, nCtg)
		var leftRanks []int32
		for i, r := range runs {
			if mask&(1<<uint(i)) == 0 {
				continue
			}
			sumL += r.sum
			sCountL += r.sCount
			leftRanks = append(leftRanks, r.members...)
			for c := range ctgSumL {
				ctgSumL[c] += r.ctgSum[c]
			}
		}
		if sCountL == 0 || sCountL == totals.SCount {
			continue
		}
		sumR := totals.Sum - sumL
		sCountR := totals.SCount - sCountL
		ctgSumR := make([]float64, nCtg)
		for c := range ctgSumR {
			ctgSumR[c] = totals.CtgSum[c] - ctgSumL[c]
		}

		infoL := infoOf(sumL, sCountL, ctgSumL, true)
		infoR := infoOf(sumR, sCountR, ctgSumR, true)
		info := infoL + infoR - parentInfo

		if info > best.Info {
			best = base
			best.Found = true
			best.Info = info
			best.SCountL = sCountL
			best.SumL = sumL
			best.Bits = bitsOf(leftRanks)
		}
	}
	return best
}

func bitsOf(ranks []int32) uint64 {
	var bits uint64
	for _, r := range ranks {
		bits |= 1 << uint(r)
	}
	return bits
}
