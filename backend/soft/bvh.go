package soft

import (
	"cmp"
	"slices"

	"github.com/vkngwrapper/accel/hal"
)

const (
	defaultLeafSize   = 4
	fastTraceLeafSize = 2
	lowMemoryLeafSize = 8
)

type primitiveRef struct {
	bounds   hal.AabbPositions
	centroid [3]float32
	record   []byte
}

// bvhBuilder builds a binary BVH in preorder. BuildPreferFastTrace switches from median splits to a
// surface area heuristic, BuildLowMemory allows larger leaves.
type bvhBuilder struct {
	refs                 []primitiveRef
	nodes                []blobNode
	maxLeafSize          int
	surfaceAreaHeuristic bool
}

func newBvhBuilder(refs []primitiveRef, flags hal.BuildFlags) *bvhBuilder {
	builder := &bvhBuilder{
		refs:        refs,
		maxLeafSize: defaultLeafSize,
	}

	if flags.Contains(hal.BuildPreferFastTrace) && !flags.Contains(hal.BuildPreferFastBuild) {
		builder.surfaceAreaHeuristic = true
		builder.maxLeafSize = fastTraceLeafSize
	}
	if flags.Contains(hal.BuildLowMemory) {
		builder.maxLeafSize = lowMemoryLeafSize
	}

	return builder
}

// build returns the nodes. refs is reordered so that leaves cover contiguous runs of it.
func (b *bvhBuilder) build() []blobNode {
	b.nodes = make([]blobNode, 0, max(1, 2*len(b.refs)-1))

	if len(b.refs) == 0 {
		b.nodes = append(b.nodes, blobNode{bounds: hal.EmptyAabb(), b: leafFlag})
		return b.nodes
	}

	b.buildRange(0, len(b.refs))
	return b.nodes
}

func (b *bvhBuilder) buildRange(start, end int) uint32 {
	index := uint32(len(b.nodes))
	b.nodes = append(b.nodes, blobNode{})

	bounds := hal.EmptyAabb()
	centroidBounds := hal.EmptyAabb()
	for _, ref := range b.refs[start:end] {
		bounds = bounds.Union(ref.bounds)
		centroidBounds = centroidBounds.Extend(ref.centroid)
	}

	count := end - start
	if count <= b.maxLeafSize {
		b.nodes[index] = blobNode{bounds: bounds, a: uint32(start), b: leafFlag | uint32(count)}
		return index
	}

	var mid int
	if b.surfaceAreaHeuristic {
		mid = b.splitSurfaceArea(start, end)
	} else {
		mid = b.splitMedian(start, end, centroidBounds)
	}

	left := b.buildRange(start, mid)
	right := b.buildRange(mid, end)
	b.nodes[index] = blobNode{bounds: bounds, a: left, b: right}
	return index
}

func widestAxis(box hal.AabbPositions) int {
	axis := 0
	extent := box.Max[0] - box.Min[0]
	for candidate := 1; candidate < 3; candidate++ {
		if e := box.Max[candidate] - box.Min[candidate]; e > extent {
			axis, extent = candidate, e
		}
	}
	return axis
}

func (b *bvhBuilder) sortByAxis(start, end, axis int) {
	slices.SortStableFunc(b.refs[start:end], func(l, r primitiveRef) int {
		return cmp.Compare(l.centroid[axis], r.centroid[axis])
	})
}

func (b *bvhBuilder) splitMedian(start, end int, centroidBounds hal.AabbPositions) int {
	b.sortByAxis(start, end, widestAxis(centroidBounds))
	return start + (end-start)/2
}

// splitSurfaceArea evaluates every split position along every axis and keeps the cheapest
func (b *bvhBuilder) splitSurfaceArea(start, end int) int {
	count := end - start
	rightAreas := make([]float32, count)

	bestAxis, bestSplit := -1, start+count/2
	var bestCost float32

	for axis := 0; axis < 3; axis++ {
		b.sortByAxis(start, end, axis)

		right := hal.EmptyAabb()
		for i := count - 1; i > 0; i-- {
			right = right.Union(b.refs[start+i].bounds)
			rightAreas[i] = right.SurfaceArea()
		}

		left := hal.EmptyAabb()
		for i := 1; i < count; i++ {
			left = left.Union(b.refs[start+i-1].bounds)
			cost := left.SurfaceArea()*float32(i) + rightAreas[i]*float32(count-i)
			if bestAxis < 0 || cost < bestCost {
				bestAxis, bestSplit, bestCost = axis, start+i, cost
			}
		}
	}

	if bestAxis != 2 {
		b.sortByAxis(start, end, bestAxis)
	}
	return bestSplit
}

// refit recomputes node bounds bottom up from per-record bounds. Preorder layout means every child has a
// larger index than its parent, so one reverse pass suffices.
func refit(nodes []blobNode, recordBounds []hal.AabbPositions) {
	for index := len(nodes) - 1; index >= 0; index-- {
		node := &nodes[index]

		bounds := hal.EmptyAabb()
		if node.isLeaf() {
			first, count := node.leafRange()
			for _, box := range recordBounds[first : first+count] {
				bounds = bounds.Union(box)
			}
		} else {
			bounds = nodes[node.a].bounds.Union(nodes[node.b].bounds)
		}
		node.bounds = bounds
	}
}
