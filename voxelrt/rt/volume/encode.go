package volume

import (
	"encoding/binary"
	"math/bits"
)

// Encoded is the GPU-facing form of a Volume.
// len(Attributes) == PopCount(Occupancy) always holds.
type Encoded struct {
	Occupancy  []uint32
	Attributes []VoxelAttribute
}

// Encode builds the occupancy and attribute sections of v.
func Encode(v *Volume) Encoded {
	return Encoded{
		Occupancy:  EncodeOccupancy(v),
		Attributes: EncodeAttributes(v),
	}
}

// EncodeOccupancy packs the occupancy map: bit j of word i is set iff
// cell 32*i+j is occupied.
func EncodeOccupancy(v *Volume) []uint32 {
	words := make([]uint32, OccupancyWords)
	for i := range words {
		base := i * 32
		var w uint32
		for j := 0; j < 32; j++ {
			if v.cells[base+j].Occupied {
				w |= 1 << j
			}
		}
		words[i] = w
	}
	return words
}

// EncodeAttributes keeps the attributes of occupied cells in index order.
func EncodeAttributes(v *Volume) []VoxelAttribute {
	attrs := make([]VoxelAttribute, 0, v.Count())
	for i := range v.cells {
		if v.cells[i].Occupied {
			attrs = append(attrs, v.cells[i].Attr)
		}
	}
	return attrs
}

// EncodeCombined returns occupancy bytes immediately followed by the packed
// attribute records.
func EncodeCombined(v *Volume) []byte {
	return Encode(v).CombinedBytes()
}

func PopCount(words []uint32) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount32(w)
	}
	return n
}

func OccupancyToBytes(words []uint32) []byte {
	return appendWords(make([]byte, 0, len(words)*4), words)
}

func AttributesToBytes(attrs []VoxelAttribute) []byte {
	return appendAttributes(make([]byte, 0, len(attrs)*AttributeSize), attrs)
}

func (e Encoded) OccupancyBytes() []byte { return OccupancyToBytes(e.Occupancy) }

func (e Encoded) AttributeBytes() []byte { return AttributesToBytes(e.Attributes) }

func (e Encoded) CombinedBytes() []byte {
	buf := make([]byte, 0, e.CombinedSize())
	buf = appendWords(buf, e.Occupancy)
	return appendAttributes(buf, e.Attributes)
}

func (e Encoded) CombinedSize() int {
	return len(e.Occupancy)*4 + len(e.Attributes)*AttributeSize
}

func appendWords(dst []byte, words []uint32) []byte {
	for _, w := range words {
		dst = binary.LittleEndian.AppendUint32(dst, w)
	}
	return dst
}

func appendAttributes(dst []byte, attrs []VoxelAttribute) []byte {
	for _, a := range attrs {
		dst = a.AppendBytes(dst)
	}
	return dst
}
