package volume

import (
	"github.com/go-gl/mathgl/mgl32"
)

// DebugSphere is the reference test chunk: a sphere spanning the whole chunk,
// tinted by its own normal.
func DebugSphere() *Volume {
	return Build(func(x, y, z int) (VoxelAttribute, bool) {
		frac := mgl32.Vec3{float32(x), float32(y), float32(z)}.Mul(1.0 / 32.0).Sub(mgl32.Vec3{1, 1, 1})
		if frac.Len() > 1 {
			return VoxelAttribute{}, false
		}
		n := safeNormalize(frac)
		return VoxelAttribute{
			Normal: n,
			Color:  n.Mul(0.5).Add(mgl32.Vec3{1, 1, 1}),
		}, true
	})
}

// Sphere fills every lattice point within radius of center.
func Sphere(center mgl32.Vec3, radius float32, color mgl32.Vec3) *Volume {
	r2 := radius * radius
	return Build(func(x, y, z int) (VoxelAttribute, bool) {
		d := mgl32.Vec3{float32(x), float32(y), float32(z)}.Sub(center)
		if d.LenSqr() > r2 {
			return VoxelAttribute{}, false
		}
		return VoxelAttribute{Normal: safeNormalize(d), Color: color}, true
	})
}

// SolidBox fills the inclusive integer box [minB, maxB], clipped to the chunk.
// Normals point out of the nearest face.
func SolidBox(minB, maxB [3]int, color mgl32.Vec3) *Volume {
	return Build(func(x, y, z int) (VoxelAttribute, bool) {
		p := [3]int{x, y, z}
		for a := 0; a < 3; a++ {
			if p[a] < minB[a] || p[a] > maxB[a] {
				return VoxelAttribute{}, false
			}
		}

		best, axis, sign := int(^uint(0)>>1), 0, float32(1)
		for a := 0; a < 3; a++ {
			if d := p[a] - minB[a]; d < best {
				best, axis, sign = d, a, -1
			}
			if d := maxB[a] - p[a]; d < best {
				best, axis, sign = d, a, 1
			}
		}
		var n mgl32.Vec3
		n[axis] = sign
		return VoxelAttribute{Normal: n, Color: color}, true
	})
}

// Cone fills a cone from the base disc center to tip. Normals come from the
// occupancy gradient.
func Cone(base, tip mgl32.Vec3, radius float32, color mgl32.Vec3) *Volume {
	heightVec := tip.Sub(base)
	height := heightVec.Len()
	if height < 1e-5 {
		return Empty()
	}
	axis := heightVec.Normalize()

	occupied := make([]bool, ChunkVoxelCount)
	for i := range occupied {
		x, y, z := Coord(i)
		v := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}.Sub(base)
		distOnAxis := v.Dot(axis)
		if distOnAxis < 0 || distOnAxis > height {
			continue
		}
		radiusAtDist := radius * (1.0 - distOnAxis/height)
		distToAxis2 := v.LenSqr() - distOnAxis*distOnAxis
		occupied[i] = distToAxis2 <= radiusAtDist*radiusAtDist
	}
	return fromOccupancy(occupied, func(int) mgl32.Vec3 { return color })
}

// fromOccupancy assigns gradient normals and per-cell colors to a boolean grid.
func fromOccupancy(occupied []bool, color func(i int) mgl32.Vec3) *Volume {
	solid := func(x, y, z int) float32 {
		if InBounds(x, y, z) && occupied[Index(x, y, z)] {
			return 1
		}
		return 0
	}
	return Build(func(x, y, z int) (VoxelAttribute, bool) {
		i := Index(x, y, z)
		if !occupied[i] {
			return VoxelAttribute{}, false
		}
		// Points from solid towards empty space.
		g := mgl32.Vec3{
			solid(x-1, y, z) - solid(x+1, y, z),
			solid(x, y-1, z) - solid(x, y+1, z),
			solid(x, y, z-1) - solid(x, y, z+1),
		}
		return VoxelAttribute{Normal: safeNormalize(g), Color: color(i)}, true
	})
}

// safeNormalize falls back to +Z for the zero vector.
func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.LenSqr() < 1e-12 {
		return mgl32.Vec3{0, 0, 1}
	}
	return v.Normalize()
}
