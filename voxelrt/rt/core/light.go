package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GpuSunLightSize is the std430 stride of the shader's SunLight struct:
//
//	color:       vec4<f32> @ 0
//	illuminance: f32       @ 16
//	direction:   vec3<f32> @ 32
const GpuSunLightSize = 48

// SunLight is a directional light. Color is linear RGBA; the light shines
// along the transform's forward axis.
type SunLight struct {
	Color       [4]float32
	Illuminance float32
	Transform   *Transform
}

// GpuSunLight is the per-frame light record handed to the GPU.
type GpuSunLight struct {
	Color       [4]float32
	Illuminance float32
	Direction   mgl32.Vec3
}

func (l *SunLight) Extract() GpuSunLight {
	dir := mgl32.Vec3{0, 0, -1}
	if l.Transform != nil {
		dir = l.Transform.Forward()
	}
	return GpuSunLight{
		Color:       l.Color,
		Illuminance: l.Illuminance,
		Direction:   dir,
	}
}

func (l GpuSunLight) AppendBytes(dst []byte) []byte {
	var buf [GpuSunLightSize]byte
	for i, c := range l.Color {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(l.Illuminance))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(l.Direction[0]))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(l.Direction[1]))
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(l.Direction[2]))
	return append(dst, buf[:]...)
}

// EncodeSunLights packs records densely; an empty slice encodes to nil.
func EncodeSunLights(lights []GpuSunLight) []byte {
	if len(lights) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(lights)*GpuSunLightSize)
	for _, l := range lights {
		buf = l.AppendBytes(buf)
	}
	return buf
}

// LinearRGBA converts an 8-bit sRGB color to linear floats. Alpha is linear
// already.
func LinearRGBA(c [4]uint8) [4]float32 {
	conv := func(v uint8) float32 {
		s := float64(v) / 255
		if s <= 0.04045 {
			return float32(s / 12.92)
		}
		return float32(math.Pow((s+0.055)/1.055, 2.4))
	}
	return [4]float32{conv(c[0]), conv(c[1]), conv(c[2]), float32(c[3]) / 255}
}
