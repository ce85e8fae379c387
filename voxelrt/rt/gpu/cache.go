package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/alitto/pond/v2"
	"golang.org/x/sync/singleflight"
)

// ChunkAsset is a loaded chunk. Version must change whenever the volume is
// replaced.
type ChunkAsset interface {
	ID() core.AssetId
	Version() uint64
	Volume() *volume.Volume
}

// AssetSource resolves asset ids to loaded assets. ok is false while the
// asset is still loading or has been removed.
type AssetSource interface {
	Lookup(id core.AssetId) (asset ChunkAsset, ok bool)
}

// ChunkLayout selects how encoded chunks are uploaded.
type ChunkLayout int

const (
	// LayoutSplit uploads occupancy and attributes as two buffers.
	LayoutSplit ChunkLayout = iota
	// LayoutCombined uploads the combined encoding once and binds two ranges
	// of it.
	LayoutCombined
)

func (l ChunkLayout) String() string {
	switch l {
	case LayoutSplit:
		return "split"
	case LayoutCombined:
		return "combined"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func ParseChunkLayout(s string) (ChunkLayout, error) {
	switch s {
	case "", "split":
		return LayoutSplit, nil
	case "combined":
		return LayoutCombined, nil
	}
	return 0, fmt.Errorf("unknown chunk layout %q (want split or combined)", s)
}

// ChunkResources are the GPU buffers of one asset version.
type ChunkResources struct {
	Asset      core.AssetId
	Version    uint64
	Occupancy  BufferBinding
	Attributes BufferBinding
	VoxelCount int

	buffers []BufferHandle
}

// ResourceCache owns the per-asset occupancy and attribute buffers. Uploads
// are single-flight per asset; distinct assets may be prepared concurrently.
// Entries replaced by a newer version are retired rather than released, since
// the frame being prepared may still bind them; ReleaseRetired frees them
// once no set holds them.
type ResourceCache struct {
	device Device
	layout ChunkLayout
	logger core.Logger

	mu      sync.Mutex
	entries map[core.AssetId]*ChunkResources
	retired []*ChunkResources
	uploads int

	flight singleflight.Group
}

func NewResourceCache(device Device, layout ChunkLayout, logger core.Logger) *ResourceCache {
	return &ResourceCache{
		device:  device,
		layout:  layout,
		logger:  core.OrNop(logger),
		entries: make(map[core.AssetId]*ChunkResources),
	}
}

func (c *ResourceCache) Get(id core.AssetId) (*ChunkResources, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[id]
	return res, ok
}

func (c *ResourceCache) lookup(id core.AssetId, version uint64) *ChunkResources {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.entries[id]; ok && res.Version == version {
		return res
	}
	return nil
}

// Prepare returns the resources for the asset's current version, encoding
// and uploading it if needed. A stale entry for an older version is retired
// once the new upload succeeds.
func (c *ResourceCache) Prepare(asset ChunkAsset) (*ChunkResources, error) {
	id, version := asset.ID(), asset.Version()
	for {
		if res := c.lookup(id, version); res != nil {
			return res, nil
		}

		v, err, _ := c.flight.Do(string(id), func() (any, error) {
			if res := c.lookup(id, version); res != nil {
				return res, nil
			}
			res, err := c.upload(asset)
			if err != nil {
				return nil, err
			}
			c.store(res)
			return res, nil
		})
		if err != nil {
			return nil, err
		}

		// A concurrent flight for another version of the same asset may have
		// answered; go around and upload ours.
		if res := v.(*ChunkResources); res.Version == version {
			return res, nil
		}
	}
}

func (c *ResourceCache) store(res *ChunkResources) {
	c.mu.Lock()
	old := c.entries[res.Asset]
	c.entries[res.Asset] = res
	c.uploads++
	if old != nil {
		c.retired = append(c.retired, old)
	}
	c.mu.Unlock()

	if old != nil {
		c.logger.Debugf("chunk %s: replacing version %d with %d", res.Asset, old.Version, res.Version)
	}
}

// ReleaseRetired frees the buffers of replaced versions. Call it between
// frames, after the previous frame's set has been released.
func (c *ResourceCache) ReleaseRetired() int {
	c.mu.Lock()
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()

	for _, res := range retired {
		c.releaseResources(res)
	}
	return len(retired)
}

// Retired counts replaced versions awaiting ReleaseRetired.
func (c *ResourceCache) Retired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retired)
}

func (c *ResourceCache) upload(asset ChunkAsset) (*ChunkResources, error) {
	id := asset.ID()
	enc := volume.Encode(asset.Volume())
	res := &ChunkResources{
		Asset:      id,
		Version:    asset.Version(),
		VoxelCount: len(enc.Attributes),
	}

	attrBytes := enc.AttributeBytes()
	attrSize := uint64(len(attrBytes))
	if attrSize < minAttributeBufferSize {
		attrSize = minAttributeBufferSize
	}

	switch c.layout {
	case LayoutCombined:
		buf, err := c.createBuffer(id, "combined", BufferDescriptor{
			Size:     volume.OccupancyByteSize + attrSize,
			Usage:    BufferUsageStorage | BufferUsageCopyDst,
			Contents: enc.CombinedBytes(),
		})
		if err != nil {
			return nil, err
		}
		res.buffers = []BufferHandle{buf}
		res.Occupancy = BufferBinding{Buffer: buf, Offset: 0, Size: volume.OccupancyByteSize}
		res.Attributes = BufferBinding{Buffer: buf, Offset: volume.OccupancyByteSize, Size: attrSize}

	default:
		occ, err := c.createBuffer(id, "occupancy", BufferDescriptor{
			Size:     volume.OccupancyByteSize,
			Usage:    BufferUsageStorage | BufferUsageCopyDst,
			Contents: enc.OccupancyBytes(),
		})
		if err != nil {
			return nil, err
		}
		attrs, err := c.createBuffer(id, "attributes", BufferDescriptor{
			Size:     attrSize,
			Usage:    BufferUsageStorage | BufferUsageCopyDst,
			Contents: attrBytes,
		})
		if err != nil {
			c.device.ReleaseBuffer(occ)
			return nil, err
		}
		res.buffers = []BufferHandle{occ, attrs}
		res.Occupancy = BufferBinding{Buffer: occ, Size: volume.OccupancyByteSize}
		res.Attributes = BufferBinding{Buffer: attrs, Size: attrSize}
	}

	c.logger.Debugf("chunk %s v%d: uploaded %d voxels (%s layout)", id, res.Version, res.VoxelCount, c.layout)
	return res, nil
}

func (c *ResourceCache) createBuffer(id core.AssetId, what string, desc BufferDescriptor) (BufferHandle, error) {
	desc.Label = fmt.Sprintf("chunk %s %s", id, what)
	buf, err := c.device.CreateBuffer(desc)
	if err != nil {
		return NilBuffer, &DeviceError{Asset: id, Label: what + " buffer", Err: err}
	}
	return buf, nil
}

// Warm prepares assets on a pool of workers. Every asset is attempted; the
// failures are joined.
func (c *ResourceCache) Warm(assets []ChunkAsset, workers int) error {
	if len(assets) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	pool := pond.NewPool(workers)

	var mu sync.Mutex
	var errs []error
	for _, asset := range assets {
		pool.Submit(func() {
			if _, err := c.Prepare(asset); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	pool.StopAndWait()

	return errors.Join(errs...)
}

// Evict drops and releases the entry for id, if any.
func (c *ResourceCache) Evict(id core.AssetId) {
	c.mu.Lock()
	res, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if ok {
		c.releaseResources(res)
	}
}

// Retain evicts every entry whose asset keep rejects.
func (c *ResourceCache) Retain(keep func(id core.AssetId) bool) int {
	c.mu.Lock()
	var dropped []*ChunkResources
	for id, res := range c.entries {
		if !keep(id) {
			dropped = append(dropped, res)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, res := range dropped {
		c.releaseResources(res)
	}
	return len(dropped)
}

func (c *ResourceCache) Release() {
	c.Retain(func(core.AssetId) bool { return false })
	c.ReleaseRetired()
}

func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Uploads counts successful uploads since creation.
func (c *ResourceCache) Uploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

func (c *ResourceCache) releaseResources(res *ChunkResources) {
	for _, b := range res.buffers {
		c.device.ReleaseBuffer(b)
	}
	res.buffers = nil
}
