package volume

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	ChunkEdge       = 64
	ChunkVoxelCount = ChunkEdge * ChunkEdge * ChunkEdge // 262144

	OccupancyWords    = ChunkVoxelCount / 32 // 8192
	OccupancyByteSize = OccupancyWords * 4

	// AttributeSize is the wire size of one VoxelAttribute record:
	// normal.xyz then color.xyz, little-endian f32, no padding.
	AttributeSize = 24
)

// VoxelAttribute is the shading data carried by an occupied voxel.
// Normal is expected to be unit length; it is not validated.
type VoxelAttribute struct {
	Normal mgl32.Vec3
	Color  mgl32.Vec3
}

// AppendBytes appends the 24-byte record to dst.
func (a VoxelAttribute) AppendBytes(dst []byte) []byte {
	var buf [AttributeSize]byte
	a.put(buf[:])
	return append(dst, buf[:]...)
}

func (a VoxelAttribute) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(a.Normal[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(a.Normal[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(a.Normal[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(a.Color[0]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(a.Color[1]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(a.Color[2]))
}

// ReadAttribute decodes one record. buf must hold at least AttributeSize bytes.
func ReadAttribute(buf []byte) VoxelAttribute {
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return VoxelAttribute{
		Normal: mgl32.Vec3{f(0), f(4), f(8)},
		Color:  mgl32.Vec3{f(12), f(16), f(20)},
	}
}

// Kind tags the storage strategy of a Volume. Only dense storage exists.
type Kind uint8

const (
	KindFull Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Cell is one voxel slot: empty, or occupied with an attribute.
type Cell struct {
	Attr     VoxelAttribute
	Occupied bool
}

// Filled returns an occupied cell.
func Filled(attr VoxelAttribute) Cell {
	return Cell{Attr: attr, Occupied: true}
}

// Volume is an immutable 64³ chunk. Cell i is at (x, y, z) with
// i = x + 64*y + 4096*z.
type Volume struct {
	kind  Kind
	cells []Cell
}

// NewFullVolume copies cells into a new volume. The slice must hold exactly
// ChunkVoxelCount entries in x-fastest order.
func NewFullVolume(cells []Cell) (*Volume, error) {
	if len(cells) != ChunkVoxelCount {
		return nil, fmt.Errorf("chunk volume needs %d cells, got %d", ChunkVoxelCount, len(cells))
	}
	owned := make([]Cell, ChunkVoxelCount)
	copy(owned, cells)
	return &Volume{kind: KindFull, cells: owned}, nil
}

// Build evaluates fn for every coordinate, x fastest.
func Build(fn func(x, y, z int) (VoxelAttribute, bool)) *Volume {
	cells := make([]Cell, ChunkVoxelCount)
	i := 0
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge; y++ {
			for x := 0; x < ChunkEdge; x++ {
				attr, ok := fn(x, y, z)
				cells[i] = Cell{Attr: attr, Occupied: ok}
				i++
			}
		}
	}
	return &Volume{kind: KindFull, cells: cells}
}

// Empty returns a volume with no occupied cells.
func Empty() *Volume {
	return &Volume{kind: KindFull, cells: make([]Cell, ChunkVoxelCount)}
}

func (v *Volume) Kind() Kind { return v.kind }
func (v *Volume) Len() int   { return len(v.cells) }

// At returns the attribute of cell i and whether it is occupied.
func (v *Volume) At(i int) (VoxelAttribute, bool) {
	c := v.cells[i]
	return c.Attr, c.Occupied
}

func (v *Volume) Get(x, y, z int) (VoxelAttribute, bool) {
	if !InBounds(x, y, z) {
		return VoxelAttribute{}, false
	}
	return v.At(Index(x, y, z))
}

// Count returns the number of occupied cells.
func (v *Volume) Count() int {
	n := 0
	for i := range v.cells {
		if v.cells[i].Occupied {
			n++
		}
	}
	return n
}

// Equal compares occupancy and, for occupied cells, attributes.
// Attributes stored under empty cells are ignored.
func (v *Volume) Equal(o *Volume) bool {
	if v.kind != o.kind || len(v.cells) != len(o.cells) {
		return false
	}
	for i := range v.cells {
		a, b := v.cells[i], o.cells[i]
		if a.Occupied != b.Occupied {
			return false
		}
		if a.Occupied && a.Attr != b.Attr {
			return false
		}
	}
	return true
}

func Index(x, y, z int) int {
	return x + ChunkEdge*y + ChunkEdge*ChunkEdge*z
}

func Coord(i int) (x, y, z int) {
	return i % ChunkEdge, (i / ChunkEdge) % ChunkEdge, i / (ChunkEdge * ChunkEdge)
}

func InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < ChunkEdge && y < ChunkEdge && z < ChunkEdge
}
