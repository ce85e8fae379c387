package core

import (
	"github.com/gekko3d/manoka/voxelrt/rt/bvh"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/go-gl/mathgl/mgl32"
)

// AssetId identifies a chunk asset across frames.
type AssetId string

// ChunkInstance is one placement of a chunk asset.
type ChunkInstance struct {
	Ordinal   uint64
	Asset     AssetId
	Transform *Transform
	Hidden    bool

	Visible   bool
	WorldAABB [2]mgl32.Vec3 // Min, Max
}

// InstanceRecord is the per-frame view of an instance handed to the renderer.
type InstanceRecord struct {
	Ordinal   uint64
	Asset     AssetId
	Transform mgl32.Mat4
	Visible   bool
}

// InstanceSource is the pull interface the frame preparer reads from.
type InstanceSource interface {
	Snapshot(tick uint64) []InstanceRecord
}

func (inst *ChunkInstance) UpdateWorldAABB() {
	edge := float32(volume.ChunkEdge)
	corners := [8]mgl32.Vec3{
		{0, 0, 0}, {edge, 0, 0}, {0, edge, 0}, {edge, edge, 0},
		{0, 0, edge}, {edge, 0, edge}, {0, edge, edge}, {edge, edge, edge},
	}

	o2w := inst.Transform.ObjectToWorld()

	inf := float32(1e20)
	wMin := mgl32.Vec3{inf, inf, inf}
	wMax := mgl32.Vec3{-inf, -inf, -inf}
	for _, c := range corners {
		wc := o2w.Mul4x1(c.Vec4(1.0)).Vec3()
		for a := 0; a < 3; a++ {
			wMin[a] = min(wMin[a], wc[a])
			wMax[a] = max(wMax[a], wc[a])
		}
	}
	inst.WorldAABB = [2]mgl32.Vec3{wMin, wMax}
}

type Scene struct {
	Instances []*ChunkInstance
	Suns      []*SunLight

	// CullDepth is the depth of the hierarchy built by the last Commit.
	CullDepth int

	nextOrdinal uint64
}

func NewScene() *Scene {
	return &Scene{}
}

// Spawn places asset with the given transform. Ordinals are handed out in
// spawn order and never reused.
func (s *Scene) Spawn(asset AssetId, t *Transform) *ChunkInstance {
	if t == nil {
		t = NewTransform()
	}
	inst := &ChunkInstance{
		Ordinal:   s.nextOrdinal,
		Asset:     asset,
		Transform: t,
		Visible:   true,
	}
	s.nextOrdinal++
	inst.UpdateWorldAABB()
	s.Instances = append(s.Instances, inst)
	return inst
}

func (s *Scene) Despawn(inst *ChunkInstance) {
	for i, o := range s.Instances {
		if o == inst {
			s.Instances = append(s.Instances[:i], s.Instances[i+1:]...)
			return
		}
	}
}

func (s *Scene) AddSun(sun *SunLight) {
	s.Suns = append(s.Suns, sun)
}

// Commit refreshes world bounds and visibility flags. Zero planes accept
// everything.
func (s *Scene) Commit(planes [6]mgl32.Vec4) {
	boxes := make([][2]mgl32.Vec3, len(s.Instances))
	for i, inst := range s.Instances {
		inst.UpdateWorldAABB()
		inst.Visible = false
		boxes[i] = inst.WorldAABB
	}
	// A subtree outside one plane is outside for every box in it, so the
	// result matches testing each box.
	tree := bvh.Build(boxes)
	tree.Query(func(box [2]mgl32.Vec3) bool {
		return AABBInFrustum(box, planes)
	}, func(i int) {
		s.Instances[i].Visible = !s.Instances[i].Hidden
	})
	s.CullDepth = tree.Depth()
}

func (s *Scene) Snapshot(tick uint64) []InstanceRecord {
	out := make([]InstanceRecord, len(s.Instances))
	for i, inst := range s.Instances {
		out[i] = InstanceRecord{
			Ordinal:   inst.Ordinal,
			Asset:     inst.Asset,
			Transform: inst.Transform.ObjectToWorld(),
			Visible:   inst.Visible,
		}
	}
	return out
}

func (s *Scene) SunLights() []GpuSunLight {
	out := make([]GpuSunLight, len(s.Suns))
	for i, sun := range s.Suns {
		out[i] = sun.Extract()
	}
	return out
}

// AABBInFrustum checks if an AABB is visible within the frustum defined by 6 planes.
// Planes are expected to be in Ax+By+Cz+D=0 form, with the normal pointing INSIDE.
func AABBInFrustum(aabb [2]mgl32.Vec3, planes [6]mgl32.Vec4) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]
		// The corner furthest along the normal; if it is outside, all are.
		var p mgl32.Vec3
		for a := 0; a < 3; a++ {
			if plane[a] > 0 {
				p[a] = aabb[1][a]
			} else {
				p[a] = aabb[0][a]
			}
		}

		dist := plane[0]*p[0] + plane[1]*p[1] + plane[2]*p[2] + plane[3]
		if dist < 0 {
			return false
		}
	}
	return true
}
