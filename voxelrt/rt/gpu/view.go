package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Chunk view bindings. The view pass reads back the lit output of the last
// dispatch: occupancy[i] at i, lit[i] at MaxChunks+i, then the world to chunk
// matrices and the view uniform.
const (
	ViewOccupancy = iota
	ViewLit
	ViewWorldToChunk
	ViewUniform
)

// ViewUniformSize is the std140 size of the view uniform: inverse view
// projection, eye, background and chunk count, padded to 16 bytes.
const ViewUniformSize = 112

func ViewBindingIndex(kind, i, maxChunks int) uint32 {
	switch kind {
	case ViewOccupancy:
		return uint32(i)
	case ViewLit:
		return uint32(maxChunks + i)
	case ViewWorldToChunk:
		return uint32(2 * maxChunks)
	}
	return uint32(2*maxChunks + 1)
}

// ViewCamera is what the view pass needs to cast one ray per pixel.
type ViewCamera struct {
	ViewProj   mgl32.Mat4
	Eye        mgl32.Vec3
	Background [4]float32
}

// ViewFrame is the part of a prepared frame the view pass draws from. It is
// captured before the frame's set is released; the pooled outputs keep their
// contents until the next dispatch overwrites them.
type ViewFrame struct {
	Tick         uint64
	Occupancy    []BufferBinding
	Lit          []BufferHandle
	WorldToChunk []byte
}

func NewViewFrame(set *FrameResourceSet) ViewFrame {
	f := ViewFrame{Tick: set.Tick}
	for _, inst := range set.Instances {
		f.Occupancy = append(f.Occupancy, inst.Occupancy)
		f.Lit = append(f.Lit, inst.Output)
		f.WorldToChunk = append(f.WorldToChunk, mat4ToBytes(inst.Transform.Inv())...)
	}
	return f
}

func (f ViewFrame) Len() int { return len(f.Lit) }

func EncodeViewUniform(cam ViewCamera, chunks int) []byte {
	buf := make([]byte, ViewUniformSize)
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	copy(buf, mat4ToBytes(cam.ViewProj.Inv()))
	for i := 0; i < 3; i++ {
		put(64+i*4, cam.Eye[i])
	}
	put(76, 1)
	for i, v := range cam.Background {
		put(80+i*4, v)
	}
	binary.LittleEndian.PutUint32(buf[96:], uint32(chunks))
	return buf
}
