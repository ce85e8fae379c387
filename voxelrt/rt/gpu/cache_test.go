package gpu

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCachePrepareIsIdempotent(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)
	asset := &testAsset{id: "sphere", version: 1, vol: volume.DebugSphere()}

	first, err := cache.Prepare(asset)
	require.NoError(t, err)
	second, err := cache.Prepare(asset)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Uploads())
	assert.Equal(t, 2, dev.liveCount(), "one occupancy and one attribute buffer")

	enc := volume.Encode(asset.vol)
	assert.Equal(t, enc.OccupancyBytes(), dev.bytes(first.Occupancy.Buffer))
	assert.Equal(t, enc.AttributeBytes(), dev.bytes(first.Attributes.Buffer))
	assert.Equal(t, len(enc.Attributes), first.VoxelCount)
	assert.Equal(t, uint64(volume.OccupancyByteSize), first.Occupancy.Size)
}

func TestResourceCacheVersionInvalidation(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)
	asset := &testAsset{id: "a", version: 1, vol: volume.DebugSphere()}

	v1, err := cache.Prepare(asset)
	require.NoError(t, err)
	oldOcc := v1.Occupancy.Buffer

	asset.version = 2
	asset.vol = volume.SolidBox([3]int{0, 0, 0}, [3]int{7, 7, 7}, mgl32.Vec3{1, 0, 0})
	v2, err := cache.Prepare(asset)
	require.NoError(t, err)

	assert.NotSame(t, v1, v2)
	assert.Equal(t, uint64(2), v2.Version)
	assert.Equal(t, 512, v2.VoxelCount)
	assert.NotContains(t, dev.released, oldOcc, "stale version stays alive until retired buffers are released")
	assert.Equal(t, 1, cache.Retired())
	assert.Equal(t, 4, dev.liveCount())
	assert.Equal(t, 1, cache.Len())

	assert.Equal(t, 1, cache.ReleaseRetired())
	assert.Contains(t, dev.released, oldOcc)
	assert.Equal(t, 2, dev.liveCount())
	assert.Zero(t, cache.ReleaseRetired())
}

func TestResourceCacheEmptyChunkGetsPlaceholderRecord(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)

	res, err := cache.Prepare(&testAsset{id: "empty", version: 1, vol: volume.Empty()})
	require.NoError(t, err)

	assert.Zero(t, res.VoxelCount)
	assert.Equal(t, uint64(volume.AttributeSize), res.Attributes.Size)
	assert.Equal(t, make([]byte, volume.AttributeSize), dev.bytes(res.Attributes.Buffer))
}

func TestResourceCacheCombinedLayout(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutCombined, nil)
	asset := &testAsset{id: "sphere", version: 1, vol: volume.DebugSphere()}

	res, err := cache.Prepare(asset)
	require.NoError(t, err)

	assert.Equal(t, 1, dev.liveCount())
	assert.Equal(t, res.Occupancy.Buffer, res.Attributes.Buffer)
	assert.Equal(t, uint64(0), res.Occupancy.Offset)
	assert.Equal(t, uint64(volume.OccupancyByteSize), res.Attributes.Offset)
	assert.Equal(t, volume.EncodeCombined(asset.vol), dev.bytes(res.Occupancy.Buffer))
}

func TestResourceCacheDeviceFailureNamesAsset(t *testing.T) {
	dev := newFakeDevice()
	dev.setFail("attributes")
	cache := NewResourceCache(dev, LayoutSplit, nil)

	_, err := cache.Prepare(&testAsset{id: "rock", version: 1, vol: volume.DebugSphere()})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDeviceResourceExhausted)
	assert.ErrorIs(t, err, errOutOfMemory)
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, core.AssetId("rock"), de.Asset)
	assert.Contains(t, err.Error(), "rock")

	assert.Zero(t, dev.liveCount(), "occupancy buffer is released when attributes fail")
	assert.Zero(t, cache.Len(), "no partially initialized entry")
}

func TestResourceCacheSingleFlight(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)
	asset := &testAsset{id: "shared", version: 1, vol: volume.DebugSphere()}

	var wg sync.WaitGroup
	results := make([]*ChunkResources, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.Prepare(asset)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Uploads())
	assert.Equal(t, 1, dev.createdCount("occupancy"))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestResourceCacheWarm(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)

	var assets []ChunkAsset
	for i := 0; i < 6; i++ {
		assets = append(assets, &testAsset{
			id:      core.AssetId(fmt.Sprintf("box-%d", i)),
			version: 1,
			vol:     volume.SolidBox([3]int{0, 0, 0}, [3]int{i, 0, 0}, mgl32.Vec3{1, 1, 1}),
		})
	}
	require.NoError(t, cache.Warm(assets, 3))
	assert.Equal(t, 6, cache.Len())

	for i, a := range assets {
		res, ok := cache.Get(a.ID())
		require.True(t, ok)
		assert.Equal(t, i+1, res.VoxelCount)
	}
}

func TestResourceCacheWarmJoinsFailures(t *testing.T) {
	dev := newFakeDevice()
	dev.setFail("bad")
	cache := NewResourceCache(dev, LayoutSplit, nil)

	err := cache.Warm([]ChunkAsset{
		&testAsset{id: "good", version: 1, vol: volume.Empty()},
		&testAsset{id: "bad-1", version: 1, vol: volume.Empty()},
		&testAsset{id: "bad-2", version: 1, vol: volume.Empty()},
	}, 2)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceResourceExhausted))
	assert.Contains(t, err.Error(), "bad-1")
	assert.Contains(t, err.Error(), "bad-2")
	assert.Equal(t, 1, cache.Len())
}

func TestResourceCacheEvictAndRetain(t *testing.T) {
	dev := newFakeDevice()
	cache := NewResourceCache(dev, LayoutSplit, nil)
	for _, id := range []core.AssetId{"a", "b", "c"} {
		_, err := cache.Prepare(&testAsset{id: id, version: 1, vol: volume.Empty()})
		require.NoError(t, err)
	}
	require.Equal(t, 6, dev.liveCount())

	cache.Evict("a")
	cache.Evict("missing")
	assert.Equal(t, 2, cache.Len())

	dropped := cache.Retain(func(id core.AssetId) bool { return id == "b" })
	assert.Equal(t, 1, dropped)
	_, ok := cache.Get("b")
	assert.True(t, ok)

	cache.Release()
	assert.Zero(t, cache.Len())
	assert.Zero(t, dev.liveCount())
}

func TestParseChunkLayout(t *testing.T) {
	for in, want := range map[string]ChunkLayout{"": LayoutSplit, "split": LayoutSplit, "combined": LayoutCombined} {
		got, err := ParseChunkLayout(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseChunkLayout("interleaved")
	assert.Error(t, err)
}
