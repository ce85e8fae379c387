package volume

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// DecodeCombined rebuilds a Volume from the combined layout produced by
// EncodeCombined.
func DecodeCombined(buf []byte) (*Volume, error) {
	if len(buf) < OccupancyByteSize {
		return nil, fmt.Errorf("combined chunk buffer too small: %d bytes, occupancy alone needs %d", len(buf), OccupancyByteSize)
	}

	words := make([]uint32, OccupancyWords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}

	attrBytes := buf[OccupancyByteSize:]
	want := PopCount(words)
	if len(attrBytes) != want*AttributeSize {
		return nil, fmt.Errorf("combined chunk buffer holds %d attribute bytes, occupancy expects %d records (%d bytes)",
			len(attrBytes), want, want*AttributeSize)
	}

	cells := make([]Cell, ChunkVoxelCount)
	next := 0
	for i, w := range words {
		for w != 0 {
			j := bits.TrailingZeros32(w)
			w &^= 1 << j
			cells[i*32+j] = Filled(ReadAttribute(attrBytes[next*AttributeSize:]))
			next++
		}
	}
	return &Volume{kind: KindFull, cells: cells}, nil
}
