package volume

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVolume(seed int64, density float64) *Volume {
	rng := rand.New(rand.NewSource(seed))
	return Build(func(x, y, z int) (VoxelAttribute, bool) {
		if rng.Float64() >= density {
			return VoxelAttribute{}, false
		}
		return VoxelAttribute{
			Normal: mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}.Normalize(),
			Color:  mgl32.Vec3{float32(x) / 63, float32(y) / 63, float32(z) / 63},
		}, true
	})
}

func TestIndexCoordRoundTrip(t *testing.T) {
	assert.Equal(t, 0, Index(0, 0, 0))
	assert.Equal(t, 1, Index(1, 0, 0))
	assert.Equal(t, 64, Index(0, 1, 0))
	assert.Equal(t, 4096, Index(0, 0, 1))
	assert.Equal(t, ChunkVoxelCount-1, Index(63, 63, 63))

	for _, i := range []int{0, 1, 63, 64, 4095, 4096, 123457, ChunkVoxelCount - 1} {
		x, y, z := Coord(i)
		assert.Equal(t, i, Index(x, y, z))
	}
}

func TestNewFullVolumeRejectsWrongLength(t *testing.T) {
	_, err := NewFullVolume(make([]Cell, 10))
	require.Error(t, err)

	cells := make([]Cell, ChunkVoxelCount)
	cells[5] = Filled(VoxelAttribute{Color: mgl32.Vec3{1, 0, 0}})
	v, err := NewFullVolume(cells)
	require.NoError(t, err)

	// The volume owns a copy.
	cells[5] = Cell{}
	_, ok := v.At(5)
	assert.True(t, ok)
	assert.Equal(t, KindFull, v.Kind())
}

func TestOccupancyMatchesCells(t *testing.T) {
	v := randomVolume(1, 0.3)
	words := EncodeOccupancy(v)
	require.Len(t, words, OccupancyWords)

	for i := 0; i < ChunkVoxelCount; i++ {
		_, occupied := v.At(i)
		bit := words[i/32]&(1<<(i%32)) != 0
		if bit != occupied {
			t.Fatalf("cell %d: occupancy bit %v, cell occupied %v", i, bit, occupied)
		}
	}
}

func TestPopCountEqualsAttributeCount(t *testing.T) {
	for seed, density := range []float64{0, 0.01, 0.5, 0.99, 1} {
		v := randomVolume(int64(seed), density)
		enc := Encode(v)
		assert.Equal(t, len(enc.Attributes), PopCount(enc.Occupancy), "density %v", density)
		assert.Equal(t, v.Count(), len(enc.Attributes))
	}
}

func TestAttributesPreserveSourceOrder(t *testing.T) {
	// Tag each occupied cell with its index so order is observable.
	v := Build(func(x, y, z int) (VoxelAttribute, bool) {
		i := Index(x, y, z)
		if i%7 != 0 {
			return VoxelAttribute{}, false
		}
		return VoxelAttribute{Color: mgl32.Vec3{float32(i), 0, 0}}, true
	})

	attrs := EncodeAttributes(v)
	require.NotEmpty(t, attrs)
	for k := 1; k < len(attrs); k++ {
		require.Less(t, attrs[k-1].Color[0], attrs[k].Color[0])
	}
	assert.Equal(t, float32(0), attrs[0].Color[0])
	assert.Equal(t, float32(7), attrs[1].Color[0])
}

func TestEmptyChunk(t *testing.T) {
	v := Empty()
	words := EncodeOccupancy(v)
	for _, w := range words {
		require.Zero(t, w)
	}
	assert.Len(t, words, 8192)
	assert.Empty(t, EncodeAttributes(v))
	assert.Len(t, EncodeCombined(v), 8192*4)
}

func TestFullChunk(t *testing.T) {
	attr := VoxelAttribute{Normal: mgl32.Vec3{0, 1, 0}, Color: mgl32.Vec3{0.25, 0.5, 0.75}}
	v := Build(func(x, y, z int) (VoxelAttribute, bool) { return attr, true })

	for _, w := range EncodeOccupancy(v) {
		require.Equal(t, uint32(0xFFFFFFFF), w)
	}
	assert.Len(t, EncodeAttributes(v), ChunkVoxelCount)
	assert.Len(t, EncodeCombined(v), 8192*4+262144*24)
}

func TestAttributeWireLayout(t *testing.T) {
	a := VoxelAttribute{
		Normal: mgl32.Vec3{1, -0.5, 0.25},
		Color:  mgl32.Vec3{0.1, 0.2, 0.3},
	}
	buf := a.AppendBytes(nil)
	require.Len(t, buf, AttributeSize)

	want := []float32{1, -0.5, 0.25, 0.1, 0.2, 0.3}
	for i, f := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		assert.Equal(t, f, got, "field %d", i)
	}
	assert.Equal(t, a, ReadAttribute(buf))
}

func TestCombinedAgreesWithSplitForms(t *testing.T) {
	v := randomVolume(7, 0.2)
	enc := Encode(v)
	combined := EncodeCombined(v)

	occ := enc.OccupancyBytes()
	attrs := enc.AttributeBytes()
	require.Len(t, combined, len(occ)+len(attrs))
	assert.Equal(t, occ, combined[:OccupancyByteSize])
	assert.Equal(t, attrs, combined[OccupancyByteSize:])
	assert.Equal(t, enc.CombinedSize(), len(combined))
}

func TestDecodeCombinedRoundTrip(t *testing.T) {
	for _, v := range []*Volume{Empty(), DebugSphere(), randomVolume(3, 0.4)} {
		got, err := DecodeCombined(EncodeCombined(v))
		require.NoError(t, err)
		assert.True(t, v.Equal(got))
	}
}

func TestDecodeCombinedRejectsMismatchedLengths(t *testing.T) {
	_, err := DecodeCombined(make([]byte, 100))
	require.Error(t, err)

	buf := EncodeCombined(DebugSphere())
	_, err = DecodeCombined(buf[:len(buf)-1])
	require.Error(t, err)

	_, err = DecodeCombined(append(buf, make([]byte, AttributeSize)...))
	require.Error(t, err)
}

func TestSphereLatticeCount(t *testing.T) {
	tests := []struct {
		name   string
		center mgl32.Vec3
		radius float32
	}{
		{"centered r=10", mgl32.Vec3{32, 32, 32}, 10},
		{"off-center r=5.5", mgl32.Vec3{10, 20, 30}, 5.5},
		{"clipped by chunk edge", mgl32.Vec3{0, 0, 0}, 12},
		{"single point", mgl32.Vec3{3, 4, 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Sphere(tt.center, tt.radius, mgl32.Vec3{1, 0, 0})

			want := 0
			r2 := tt.radius * tt.radius
			for z := 0; z < ChunkEdge; z++ {
				for y := 0; y < ChunkEdge; y++ {
					for x := 0; x < ChunkEdge; x++ {
						d := mgl32.Vec3{float32(x), float32(y), float32(z)}.Sub(tt.center)
						if d.LenSqr() <= r2 {
							want++
						}
					}
				}
			}

			assert.Equal(t, want, PopCount(EncodeOccupancy(v)))
		})
	}
}

func TestDebugSphere(t *testing.T) {
	v := DebugSphere()

	_, ok := v.Get(32, 32, 32)
	assert.True(t, ok, "center is occupied")
	_, ok = v.Get(0, 0, 0)
	assert.False(t, ok, "corner is empty")

	attr, ok := v.Get(63, 32, 32)
	require.True(t, ok)
	assert.InDelta(t, 1.0, attr.Normal.Len(), 1e-5)
	assert.InDelta(t, 1.0+attr.Normal[0]*0.5, attr.Color[0], 1e-5)
}

func TestSolidBoxNormals(t *testing.T) {
	v := SolidBox([3]int{10, 10, 10}, [3]int{20, 20, 20}, mgl32.Vec3{0, 1, 0})
	assert.Equal(t, 11*11*11, v.Count())

	attr, ok := v.Get(10, 15, 15)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{-1, 0, 0}, attr.Normal)

	attr, ok = v.Get(15, 15, 20)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, attr.Normal)

	_, ok = v.Get(21, 15, 15)
	assert.False(t, ok)
}

func TestConeIsBoundedByAxis(t *testing.T) {
	v := Cone(mgl32.Vec3{32, 32, 0}, mgl32.Vec3{32, 32, 40}, 10, mgl32.Vec3{1, 1, 1})
	assert.Positive(t, v.Count())

	_, ok := v.Get(32, 32, 1)
	assert.True(t, ok)
	_, ok = v.Get(32, 32, 50)
	assert.False(t, ok)

	assert.True(t, Cone(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1}, 4, mgl32.Vec3{}).Equal(Empty()))
}
