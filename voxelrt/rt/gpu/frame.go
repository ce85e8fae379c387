package gpu

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gekko3d/manoka/voxelrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// RenderedChunkInstance is one visible chunk placement in a frame. The
// occupancy and attribute bindings are borrowed from the cache; Output is
// owned by the frame.
type RenderedChunkInstance struct {
	Ordinal    uint64
	Asset      core.AssetId
	Transform  mgl32.Mat4
	Occupancy  BufferBinding
	Attributes BufferBinding
	Output     BufferHandle
	VoxelCount int
}

// SkippedInstance is a visible instance left out because its asset is not
// ready.
type SkippedInstance struct {
	Ordinal uint64
	Asset   core.AssetId
	Reason  error
}

// FrameResourceSet is everything the lighting dispatch binds for one frame.
// Instances are in ascending ordinal order and Transforms[i] belongs to
// Instances[i].
type FrameResourceSet struct {
	Tick       uint64
	MaxChunks  int
	Instances  []RenderedChunkInstance
	Transforms BufferBinding
	Lights     BufferBinding
	Skipped    []SkippedInstance

	pool *outputPool
}

func (s *FrameResourceSet) Len() int { return len(s.Instances) }

// Release hands the frame's output buffers back for reuse. Safe to call more
// than once.
func (s *FrameResourceSet) Release() {
	if s == nil || s.pool == nil {
		return
	}
	for i := range s.Instances {
		s.pool.release(s.Instances[i].Output)
		s.Instances[i].Output = NilBuffer
	}
	s.pool = nil
}

// FramePreparer turns the scene's per-frame instance records into a
// FrameResourceSet. Not safe for concurrent use; frames are prepared one at a
// time.
type FramePreparer struct {
	device    Device
	cache     *ResourceCache
	assets    AssetSource
	maxChunks int
	logger    core.Logger

	pool       *outputPool
	transforms BufferHandle
}

func NewFramePreparer(device Device, cache *ResourceCache, assets AssetSource, maxChunks int, logger core.Logger) (*FramePreparer, error) {
	if maxChunks < 1 {
		return nil, fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	transforms, err := device.CreateBuffer(BufferDescriptor{
		Label: "chunk transforms",
		Size:  uint64(maxChunks) * TransformSize,
		Usage: BufferUsageStorage | BufferUsageCopyDst,
	})
	if err != nil {
		return nil, &DeviceError{Label: "transform buffer", Err: err}
	}
	return &FramePreparer{
		device:     device,
		cache:      cache,
		assets:     assets,
		maxChunks:  maxChunks,
		logger:     core.OrNop(logger),
		pool:       newOutputPool(device),
		transforms: transforms,
	}, nil
}

func (p *FramePreparer) MaxChunks() int { return p.maxChunks }

type pendingInstance struct {
	rec   core.InstanceRecord
	asset ChunkAsset
}

// Prepare builds the resource set for one frame. Hidden records are ignored
// and records whose asset is not loaded are reported in Skipped. More
// renderable instances than MaxChunks fail with a *CapacityError before any
// upload; buffer creation failures fail with a *DeviceError. On error nothing
// acquired by this call is left outstanding. Each asset is resolved once, so
// every instance of it in the frame binds the same version.
func (p *FramePreparer) Prepare(tick uint64, records []core.InstanceRecord, lights BufferBinding) (*FrameResourceSet, error) {
	// The previous frame's set is released by now.
	if n := p.cache.ReleaseRetired(); n > 0 {
		p.logger.Debugf("frame %d: released %d replaced chunk versions", tick, n)
	}

	set := &FrameResourceSet{
		Tick:      tick,
		MaxChunks: p.maxChunks,
		Lights:    lights,
		pool:      p.pool,
	}

	type resolved struct {
		asset ChunkAsset
		ok    bool
	}
	lookups := make(map[core.AssetId]resolved)
	pending := make([]pendingInstance, 0, len(records))
	for _, rec := range records {
		if !rec.Visible {
			continue
		}
		r, seen := lookups[rec.Asset]
		if !seen {
			r.asset, r.ok = p.assets.Lookup(rec.Asset)
			lookups[rec.Asset] = r
		}
		asset, ok := r.asset, r.ok
		if !ok {
			set.Skipped = append(set.Skipped, SkippedInstance{
				Ordinal: rec.Ordinal,
				Asset:   rec.Asset,
				Reason:  &MissingBindingError{Ordinal: rec.Ordinal, Asset: rec.Asset},
			})
			continue
		}
		pending = append(pending, pendingInstance{rec: rec, asset: asset})
	}

	slices.SortFunc(pending, func(a, b pendingInstance) int {
		return cmp.Or(
			cmp.Compare(a.rec.Ordinal, b.rec.Ordinal),
			cmp.Compare(a.rec.Asset, b.rec.Asset),
		)
	})
	slices.SortFunc(set.Skipped, func(a, b SkippedInstance) int {
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	if len(pending) > p.maxChunks {
		return nil, &CapacityError{Max: p.maxChunks, Visible: len(pending)}
	}

	set.Instances = make([]RenderedChunkInstance, 0, len(pending))
	for _, pi := range pending {
		res, err := p.cache.Prepare(pi.asset)
		if err != nil {
			set.Release()
			return nil, err
		}
		out, err := p.pool.acquire()
		if err != nil {
			set.Release()
			var de *DeviceError
			if errors.As(err, &de) {
				de.Asset = pi.rec.Asset
			}
			return nil, err
		}
		set.Instances = append(set.Instances, RenderedChunkInstance{
			Ordinal:    pi.rec.Ordinal,
			Asset:      pi.rec.Asset,
			Transform:  pi.rec.Transform,
			Occupancy:  res.Occupancy,
			Attributes: res.Attributes,
			Output:     out,
			VoxelCount: res.VoxelCount,
		})
	}

	n := uint64(len(set.Instances))
	if n > 0 {
		data := make([]byte, 0, n*TransformSize)
		for _, inst := range set.Instances {
			data = append(data, mat4ToBytes(inst.Transform)...)
		}
		if err := p.device.WriteBuffer(p.transforms, 0, data); err != nil {
			set.Release()
			return nil, &DeviceError{Label: "transform buffer", Err: err}
		}
	}
	// Slot 3 is bound even when empty, so it always covers at least one
	// matrix.
	set.Transforms = BufferBinding{Buffer: p.transforms, Size: max(n, 1) * TransformSize}

	for _, s := range set.Skipped {
		p.logger.Debugf("frame %d: %v", tick, s.Reason)
	}
	p.logger.Debugf("frame %d: %d renderable chunks, %d skipped", tick, len(set.Instances), len(set.Skipped))
	return set, nil
}

// TrimOutputs destroys idle pooled output buffers beyond keep.
func (p *FramePreparer) TrimOutputs(keep int) int {
	return p.pool.trim(keep)
}

func (p *FramePreparer) IdleOutputs() int {
	return p.pool.idle()
}

// Release destroys the transform buffer and every idle output buffer. Sets
// still held by the caller must be released first.
func (p *FramePreparer) Release() {
	p.pool.trim(0)
	if p.transforms != NilBuffer {
		p.device.ReleaseBuffer(p.transforms)
		p.transforms = NilBuffer
	}
}
