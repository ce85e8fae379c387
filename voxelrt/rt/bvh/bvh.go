package bvh

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Node is an interior node when Leaf < 0, otherwise it holds the single box
// with index Leaf.
type Node struct {
	Min, Max    mgl32.Vec3
	Left, Right int32
	Leaf        int32
}

type item struct {
	box      [2]mgl32.Vec3
	centroid mgl32.Vec3
	index    int
}

// Tree is a median-split bounding volume hierarchy over a fixed set of
// boxes. Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

func Build(boxes [][2]mgl32.Vec3) *Tree {
	t := &Tree{}
	if len(boxes) == 0 {
		return t
	}
	items := make([]item, len(boxes))
	for i, b := range boxes {
		items[i] = item{box: b, centroid: b[0].Add(b[1]).Mul(0.5), index: i}
	}
	t.Nodes = make([]Node, 0, 2*len(boxes)-1)
	t.build(items)
	return t
}

func (t *Tree) build(items []item) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Leaf: -1})

	inf := float32(math.Inf(1))
	minB := mgl32.Vec3{inf, inf, inf}
	maxB := mgl32.Vec3{-inf, -inf, -inf}
	for _, it := range items {
		for a := 0; a < 3; a++ {
			minB[a] = min(minB[a], it.box[0][a])
			maxB[a] = max(maxB[a], it.box[1][a])
		}
	}
	t.Nodes[idx].Min = minB
	t.Nodes[idx].Max = maxB

	if len(items) == 1 {
		t.Nodes[idx].Leaf = int32(items[0].index)
		return idx
	}

	// Split along the longest axis.
	extent := maxB.Sub(minB)
	axis := 0
	if extent[1] > extent[axis] {
		axis = 1
	}
	if extent[2] > extent[axis] {
		axis = 2
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := t.build(items[:mid])
	right := t.build(items[mid:])
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}

// Query calls visit for every leaf whose box, and whose ancestors' boxes,
// pass accept. Subtrees whose bounds fail are skipped whole.
func (t *Tree) Query(accept func(box [2]mgl32.Vec3) bool, visit func(index int)) {
	if len(t.Nodes) == 0 {
		return
	}
	stack := []int32{0}
	for len(stack) > 0 {
		n := t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !accept([2]mgl32.Vec3{n.Min, n.Max}) {
			continue
		}
		if n.Leaf >= 0 {
			visit(int(n.Leaf))
			continue
		}
		stack = append(stack, n.Right, n.Left)
	}
}

// Depth is the number of levels below and including the root.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var depth func(i int32) int
	depth = func(i int32) int {
		n := t.Nodes[i]
		if n.Leaf >= 0 {
			return 1
		}
		return 1 + max(depth(n.Left), depth(n.Right))
	}
	return depth(0)
}
