// Package pretree implements the pre-tree of spec §4.7: a dense,
// pre-order array of nodes built incrementally as Frontier commits
// splits, plus leaf-count-bounded merging once the tree is complete.
//
// Grounded on _examples/original_source/forest/pretree.h for the dense
// lhDel/predIdx/score node layout, and on the teacher's tree/build.go
// Node{left,right,...} recursive shape generalized into the flat
// pre-order array the level-synchronous frontier needs (a node's final
// position isn't known until its parent commits, so nodes are appended
// in commit order and wired together by index, not by pointer).
package pretree

import "github.com/arbolito/rf/rheap"

// Node is one pre-tree entry (spec §4.7): a non-terminal carries LHDel
// (offset to its left child; the right child is always LHDel+1),
// PredIdx, and either a numeric cut or a factor (bitOffset,cardinality)
// reference; a terminal (LHDel == 0) carries Score together with the
// SCount/Sum/CtgSum aggregates it was scored from.
type Node struct {
	LHDel    int
	PredIdx  int
	Info     float64
	IsFactor bool
	CutValue float64 // numeric non-terminal
	BitsLeft uint64  // factor non-terminal: bit i set => level/run i goes left

	Score  float64 // regression mean, or winning category's index as float64
	SCount int      // bagged sample count reaching this node
	Sum    float64  // response sum reaching this node (regression) / not meaningful for ctg
	CtgSum []float64 // classification only

	parent int // -1 for root; used only during merge bookkeeping
}

// IsTerminal reports whether n is currently a leaf.
func (n *Node) IsTerminal() bool { return n.LHDel == 0 }

// PreTree is the dense pre-order node array for one tree under
// construction.
type PreTree struct {
	Nodes []Node
}

// New starts a pre-tree with a single root leaf carrying the supplied
// root aggregates.
func New(sum float64, sCount int, ctgSum []float64) *PreTree {
	return &PreTree{Nodes: []Node{{Sum: sum, SCount: sCount, CtgSum: ctgSum, parent: -1, Score: meanOrMode(sum, sCount, ctgSum)}}}
}

// Commit converts the leaf at nodeIdx into a non-terminal split on pred,
// appending its two new terminal children and returning their indices
// (true branch first, matching spec's "lhDel = offset to left child").
func (pt *PreTree) Commit(nodeIdx, pred int, info float64, isFactor bool, cutValue float64, bitsLeft uint64, sumL float64, sCountL int, ctgSumL []float64) (left, right int) {
	sumR := pt.Nodes[nodeIdx].Sum - sumL
	sCountR := pt.Nodes[nodeIdx].SCount - sCountL
	var ctgSumR []float64
	if ctgSumL != nil {
		ctgSumR = make([]float64, len(ctgSumL))
		for c := range ctgSumR {
			ctgSumR[c] = pt.Nodes[nodeIdx].CtgSum[c] - ctgSumL[c]
		}
	}

	left = len(pt.Nodes)
	pt.Nodes = append(pt.Nodes, Node{Sum: sumL, SCount: sCountL, CtgSum: ctgSumL, parent: nodeIdx, Score: meanOrMode(sumL, sCountL, ctgSumL)})
	right = len(pt.Nodes)
	pt.Nodes = append(pt.Nodes, Node{Sum: sumR, SCount: sCountR, CtgSum: ctgSumR, parent: nodeIdx, Score: meanOrMode(sumR, sCountR, ctgSumR)})

	pt.Nodes[nodeIdx].LHDel = left - nodeIdx
	pt.Nodes[nodeIdx].PredIdx = pred
	pt.Nodes[nodeIdx].Info = info
	pt.Nodes[nodeIdx].IsFactor = isFactor
	pt.Nodes[nodeIdx].CutValue = cutValue
	pt.Nodes[nodeIdx].BitsLeft = bitsLeft
	return left, right
}

func meanOrMode(sum float64, sCount int, ctgSum []float64) float64 {
	if ctgSum == nil {
		if sCount == 0 {
			return 0
		}
		return sum / float64(sCount)
	}
	best, bestC := 0, -1.0
	for c, v := range ctgSum {
		if v > bestC {
			bestC = v
			best = c
		}
	}
	return float64(best)
}

// LeafCount returns the number of terminal nodes reachable from the
// root. A merge leaves the losing children's array slots in place but
// unreachable (nothing's LHDel points at them any longer), so counting
// every physical Node rather than walking from the root would overstate
// the live leaf count and defeat Merge's leafMax termination check.
func (pt *PreTree) LeafCount() int {
	if len(pt.Nodes) == 0 {
		return 0
	}
	n := 0
	var walk func(idx int)
	walk = func(idx int) {
		node := &pt.Nodes[idx]
		if node.IsTerminal() {
			n++
			return
		}
		left := idx + node.LHDel
		walk(left)
		walk(left + 1)
	}
	walk(0)
	return n
}

// Merge reduces the tree's leaf count to at most leafMax (spec §4.7
// "Leaf merging"): repeatedly finds the lowest-info mergeable
// non-terminal (both children terminal), converts it to a leaf whose
// score is the response-weighted combination of its two children, and
// pushes its parent onto the candidate heap if it just became
// mergeable. A leafMax of 0 disables merging.
func (pt *PreTree) Merge(leafMax int) {
	if leafMax <= 0 {
		return
	}

	mergeable := rheap.New(len(pt.Nodes))
	childrenTerminal := func(idx int) bool {
		if pt.Nodes[idx].IsTerminal() {
			return false
		}
		l := idx + pt.Nodes[idx].LHDel
		r := l + 1
		return pt.Nodes[l].IsTerminal() && pt.Nodes[r].IsTerminal()
	}
	for i := range pt.Nodes {
		if childrenTerminal(i) {
			mergeable.Push(rheap.Item{Key: pt.Nodes[i].Info, Slot: i})
		}
	}

	for pt.LeafCount() > leafMax && mergeable.Len() > 0 {
		idx := mergeable.Pop().Slot
		if pt.Nodes[idx].IsTerminal() {
			continue // already merged via an earlier pop of a stale entry
		}

		l := idx + pt.Nodes[idx].LHDel
		r := l + 1
		sum := pt.Nodes[l].Sum + pt.Nodes[r].Sum
		sCount := pt.Nodes[l].SCount + pt.Nodes[r].SCount
		var ctgSum []float64
		if pt.Nodes[l].CtgSum != nil {
			ctgSum = make([]float64, len(pt.Nodes[l].CtgSum))
			for c := range ctgSum {
				ctgSum[c] = pt.Nodes[l].CtgSum[c] + pt.Nodes[r].CtgSum[c]
			}
		}

		pt.Nodes[idx].LHDel = 0
		pt.Nodes[idx].PredIdx = 0
		pt.Nodes[idx].Sum = sum
		pt.Nodes[idx].SCount = sCount
		pt.Nodes[idx].CtgSum = ctgSum
		pt.Nodes[idx].Score = meanOrMode(sum, sCount, ctgSum)

		parent := pt.Nodes[idx].parent
		if parent >= 0 && childrenTerminal(parent) {
			mergeable.Push(rheap.Item{Key: pt.Nodes[parent].Info, Slot: parent})
		}
	}
}
