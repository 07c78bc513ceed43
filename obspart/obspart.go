// Package obspart implements the double-buffered Observation Partition
// of spec §4.3: per-predictor (rank, sampleIdx, sampleSummary) tuples,
// staged once from the RankedFrame and restaged in place as the
// frontier's DefMap commits splits.
//
// Grounded on _examples/original_source/obs/sampledobs.h for the stage/
// restage shape, and on the teacher's tree/build.go splitter (which
// copies a predictor's values into a scratch buffer and resorts them
// per node) as the idiomatic Go ancestor of "a per-predictor scratch
// buffer swapped in as the authoritative source".
package obspart

import (
	"github.com/arbolito/rf/frame"
	"github.com/arbolito/rf/sampler"
)

// Obs is one staged/restaged observation entry (spec §3 "Obs entry").
type Obs struct {
	Rank      int32
	SampleIdx int32
	YSum      float64
	SCount    int32
	Ctg       int32 // -1 when the tree is a regression tree
}

// StageCount is the per-predictor result of initial staging (spec
// §4.3): the number of explicit slots written, and whether the
// predictor is a root singleton (every in-bag row shares one rank).
type StageCount struct {
	Expl      int
	Singleton bool
}

// buffer holds one predictor's two double-buffered Obs arrays.
type buffer struct {
	slots [2][]Obs
}

// ObsPart is the per-tree, exclusively-owned observation partition: two
// buffers per predictor, each sized to bagCount.
type ObsPart struct {
	Frame      *frame.Frame
	BagCount   int
	predictors []buffer
	dense      [][]int32 // per predictor: bagged sample ids holding the implicit rank
}

// DenseSamples returns predictor pred's bagged sample ids whose value is
// its implicit/dense rank (nil if the predictor has no implicit rank).
// DefMap.RefreshDense uses this, together with the current sampleNode
// map, to recompute each live node's dense count every level without
// needing any per-row Obs entry for rows that were never materialized.
func (op *ObsPart) DenseSamples(pred int) []int32 { return op.dense[pred] }

// Stage allocates an ObsPart and performs the initial root-level stage
// (spec §4.3 "Initial staging"): for each predictor, walk its ranked
// (rank,row) list and, for sampled rows, write an Obs entry into buffer
// 0 at the next slot for that predictor; rows holding the implicit rank
// get no Obs entry, and only their bagged sample ids are kept (see
// DenseSamples).
func Stage(f *frame.Frame, so *sampler.SampledObs) (*ObsPart, []StageCount) {
	op := &ObsPart{
		Frame:      f,
		BagCount:   so.BagCount,
		predictors: make([]buffer, f.NPred),
		dense:      make([][]int32, f.NPred),
	}

	counts := make([]StageCount, f.NPred)

	for pred := 0; pred < f.NPred; pred++ {
		col := f.Ranked(pred)
		op.predictors[pred].slots[0] = make([]Obs, 0, so.BagCount)
		op.predictors[pred].slots[1] = make([]Obs, so.BagCount)

		listedRows := make(map[int32]bool, len(col.Pairs))
		seenRanks := make(map[int32]bool)
		for _, pair := range col.Pairs {
			listedRows[pair.Row] = true
			sIdx := so.Row2Sample[pair.Row]
			if sIdx < 0 {
				continue // out of bag
			}
			sn := so.Samples[sIdx]
			seenRanks[pair.Rank] = true
			op.predictors[pred].slots[0] = append(op.predictors[pred].slots[0], Obs{
				Rank:      pair.Rank,
				SampleIdx: int32(sIdx),
				YSum:      sn.YSum,
				SCount:    int32(sn.SCount),
				Ctg:       int32(sn.Ctg),
			})
		}

		if col.ImplicitRank >= 0 {
			// any in-bag row of the implicit rank also counts toward the
			// rank's presence, even though no Obs entry is written for it.
			for row := 0; row < f.NObs; row++ {
				if listedRows[int32(row)] {
					continue
				}
				if sIdx := so.Row2Sample[row]; sIdx >= 0 {
					seenRanks[col.ImplicitRank] = true
					op.dense[pred] = append(op.dense[pred], int32(sIdx))
				}
			}
		}

		counts[pred] = StageCount{
			Expl:      len(op.predictors[pred].slots[0]),
			Singleton: len(seenRanks) <= 1,
		}
		op.predictors[pred].slots[0] = op.predictors[pred].slots[0][:so.BagCount]
	}

	return op, counts
}

// Source returns predictor pred's authoritative (source) buffer.
func (op *ObsPart) Source(pred, bufIdx int, start, extent int) []Obs {
	return op.predictors[pred].slots[bufIdx][start : start+extent]
}

// Target returns predictor pred's complementary (restage target)
// buffer, a fixed-size scratch slice the caller writes into directly by
// index; its backing array is shared, so index-writes are visible
// immediately without a further store-back step.
func (op *ObsPart) Target(pred, bufIdx int) []Obs {
	return op.predictors[pred].slots[1-bufIdx]
}
