package manoka

import (
	"fmt"
	"time"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/gpu"
)

// FrameSource is what the renderer reads from the scene each frame.
type FrameSource interface {
	core.InstanceSource
	SunLights() []core.GpuSunLight
}

type FrameStats struct {
	Tick         uint64
	Chunks       int
	Skipped      int
	Dispatched   bool
	PrepareTime  time.Duration
	DispatchTime time.Duration
}

// ChunkRenderer runs the per-frame chunk lighting pipeline against a device.
// It is the error boundary: capacity and device failures abort the frame,
// assets that are not ready only drop their instances.
type ChunkRenderer struct {
	device gpu.Device
	assets *AssetServer
	logger core.Logger

	cache    *gpu.ResourceCache
	preparer *gpu.FramePreparer
	issuer   *gpu.DispatchIssuer
	lights   *gpu.LightUploader

	workers      int
	seenRemovals uint64
	warned       map[core.AssetId]bool
	onPrepared   func(set *gpu.FrameResourceSet)
}

func NewChunkRenderer(device gpu.Device, assets *AssetServer, cfg Config, logger core.Logger) (*ChunkRenderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = core.OrNop(logger)

	cache := gpu.NewResourceCache(device, cfg.Layout(), logger)
	preparer, err := gpu.NewFramePreparer(device, cache, assets, cfg.MaxChunks, logger)
	if err != nil {
		return nil, err
	}
	issuer, err := gpu.NewDispatchIssuer(device, cfg.MaxChunks, logger)
	if err != nil {
		preparer.Release()
		return nil, err
	}

	return &ChunkRenderer{
		device:   device,
		assets:   assets,
		logger:   logger,
		cache:    cache,
		preparer: preparer,
		issuer:   issuer,
		lights:   gpu.NewLightUploader(device),
		workers:  cfg.EncodeWorkers,
		warned:   make(map[core.AssetId]bool),
	}, nil
}

func (r *ChunkRenderer) Cache() *gpu.ResourceCache { return r.cache }

// OnPrepared registers fn to see each frame's resource set after its dispatch
// is issued and before the set is released. Aborted frames are not reported.
func (r *ChunkRenderer) OnPrepared(fn func(set *gpu.FrameResourceSet)) {
	r.onPrepared = fn
}

// Warm uploads every loaded asset ahead of the first frame.
func (r *ChunkRenderer) Warm() error {
	ready := r.assets.Ready()
	start := time.Now()
	if err := r.cache.Warm(ready, r.workers); err != nil {
		return fmt.Errorf("warming chunk cache: %w", err)
	}
	r.logger.Infof("warmed %d chunk assets in %v", len(ready), time.Since(start))
	return nil
}

// RenderFrame prepares and dispatches one frame. On error nothing was
// dispatched.
func (r *ChunkRenderer) RenderFrame(tick uint64, scene FrameSource) (FrameStats, error) {
	stats := FrameStats{Tick: tick}
	r.evictRemoved()

	start := time.Now()
	lights, err := r.lights.Upload(scene.SunLights())
	if err != nil {
		r.logger.Errorf("frame %d aborted: %v", tick, err)
		return stats, err
	}

	set, err := r.preparer.Prepare(tick, scene.Snapshot(tick), lights)
	stats.PrepareTime = time.Since(start)
	if err != nil {
		r.logger.Errorf("frame %d aborted: %v", tick, err)
		return stats, err
	}
	defer set.Release()

	stats.Chunks = set.Len()
	stats.Skipped = len(set.Skipped)
	r.warnSkipped(set)

	start = time.Now()
	stats.Dispatched = r.issuer.Issue(set)
	stats.DispatchTime = time.Since(start)
	if r.onPrepared != nil {
		r.onPrepared(set)
	}
	return stats, nil
}

// warnSkipped warns once per asset until it becomes ready.
func (r *ChunkRenderer) warnSkipped(set *gpu.FrameResourceSet) {
	skipped := make(map[core.AssetId]bool, len(set.Skipped))
	for _, s := range set.Skipped {
		skipped[s.Asset] = true
		if r.warned[s.Asset] {
			continue
		}
		r.warned[s.Asset] = true
		if err := r.assets.Err(s.Asset); err != nil {
			r.logger.Warnf("instance %d skipped: asset %s failed to load: %v", s.Ordinal, s.Asset, err)
		} else {
			r.logger.Warnf("instance %d skipped: %v", s.Ordinal, s.Reason)
		}
	}
	for id := range r.warned {
		if !skipped[id] {
			delete(r.warned, id)
		}
	}
}

func (r *ChunkRenderer) evictRemoved() {
	if n := r.assets.Removals(); n != r.seenRemovals {
		r.seenRemovals = n
		if dropped := r.cache.Retain(r.assets.Has); dropped > 0 {
			r.logger.Debugf("evicted %d removed chunk assets", dropped)
		}
	}
}

func (r *ChunkRenderer) Release() {
	r.issuer.Release()
	r.preparer.Release()
	r.lights.Release()
	r.cache.Release()
}
