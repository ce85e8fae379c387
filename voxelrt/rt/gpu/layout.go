package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/go-gl/mathgl/mgl32"
)

// Bind slots of the direct lighting pass. Slots below SlotTransforms are
// binding arrays sized by MaxChunks.
const (
	SlotOccupancy = iota
	SlotAttributes
	SlotOutput
	SlotTransforms
	SlotLights
	SlotCount
)

const (
	// DefaultMaxChunks sizes the binding arrays. Raising it changes the
	// shader's binding layout; the pipeline must be rebuilt from a shader
	// generated for the new value.
	DefaultMaxChunks = 8

	WorkgroupEdge = 16

	OutputStride     = 12 // vec3<f32>, tightly packed
	OutputBufferSize = volume.ChunkVoxelCount * OutputStride
	TransformSize    = 64

	// Storage bindings cannot be empty, so empty attribute sections are
	// uploaded as one zero record.
	minAttributeBufferSize = volume.AttributeSize
)

var slotNames = [SlotCount]string{"occupancy", "attributes", "output", "transforms", "lights"}

func SlotName(slot int) string {
	if slot < 0 || slot >= SlotCount {
		return "unknown"
	}
	return slotNames[slot]
}

// WorkgroupSize is the @workgroup_size of the lighting shader.
func WorkgroupSize() [3]uint32 {
	return [3]uint32{WorkgroupEdge, WorkgroupEdge, 1}
}

// WorkgroupsPerChunk tiles one chunk: 4x4 workgroups per layer, one layer
// per z slice.
func WorkgroupsPerChunk() [3]uint32 {
	return [3]uint32{volume.ChunkEdge / WorkgroupEdge, volume.ChunkEdge / WorkgroupEdge, volume.ChunkEdge}
}

// DispatchSize stacks chunks along the third grid dimension.
func DispatchSize(chunks int) [3]uint32 {
	per := WorkgroupsPerChunk()
	return [3]uint32{per[0], per[1], per[2] * uint32(chunks)}
}

// BindingIndex lowers (slot, element) to a flat @binding number in group 0.
// Array slots occupy maxChunks consecutive bindings each.
func BindingIndex(slot, element, maxChunks int) uint32 {
	switch {
	case slot < SlotTransforms:
		return uint32(slot*maxChunks + element)
	case slot == SlotTransforms:
		return uint32(3 * maxChunks)
	default:
		return uint32(3*maxChunks + 1)
	}
}

func mat4ToBytes(m mgl32.Mat4) []byte {
	buf := make([]byte, TransformSize)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func align4(n uint64) uint64 {
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}
