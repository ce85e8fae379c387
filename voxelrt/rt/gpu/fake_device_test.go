package gpu

import (
	"errors"
	"strings"
	"sync"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"
)

var errOutOfMemory = errors.New("out of device memory")

type fakeBuffer struct {
	desc BufferDescriptor
	data []byte
}

// fakeDevice records everything the GPU side is asked to do. failLabel makes
// CreateBuffer fail for any label containing it.
type fakeDevice struct {
	mu         sync.Mutex
	next       BufferHandle
	live       map[BufferHandle]*fakeBuffer
	created    []BufferDescriptor
	released   []BufferHandle
	writes     int
	dispatches []DispatchCommand

	failLabel string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{live: make(map[BufferHandle]*fakeBuffer)}
}

func (d *fakeDevice) CreateBuffer(desc BufferDescriptor) (BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failLabel != "" && strings.Contains(desc.Label, d.failLabel) {
		return NilBuffer, errOutOfMemory
	}
	d.next++
	data := make([]byte, max(desc.Size, uint64(len(desc.Contents))))
	copy(data, desc.Contents)
	d.live[d.next] = &fakeBuffer{desc: desc, data: data}
	d.created = append(d.created, desc)
	return d.next, nil
}

func (d *fakeDevice) WriteBuffer(h BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.live[h]
	if !ok {
		return errors.New("unknown buffer")
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return errors.New("write out of bounds")
	}
	copy(buf.data[offset:], data)
	d.writes++
	return nil
}

func (d *fakeDevice) ReleaseBuffer(h BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, h)
	d.released = append(d.released, h)
}

func (d *fakeDevice) Dispatch(cmd DispatchCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = append(d.dispatches, cmd)
}

func (d *fakeDevice) liveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *fakeDevice) createdCount(label string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.created {
		if strings.Contains(c.Label, label) {
			n++
		}
	}
	return n
}

func (d *fakeDevice) bytes(h BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.live[h]; ok {
		return b.data
	}
	return nil
}

func (d *fakeDevice) setFail(label string) {
	d.mu.Lock()
	d.failLabel = label
	d.mu.Unlock()
}

type testAsset struct {
	id      core.AssetId
	version uint64
	vol     *volume.Volume
}

func (a *testAsset) ID() core.AssetId       { return a.id }
func (a *testAsset) Version() uint64        { return a.version }
func (a *testAsset) Volume() *volume.Volume { return a.vol }

type assetMap map[core.AssetId]*testAsset

func (m assetMap) Lookup(id core.AssetId) (ChunkAsset, bool) {
	a, ok := m[id]
	if !ok {
		return nil, false
	}
	return a, true
}

func (m assetMap) add(id core.AssetId, vol *volume.Volume) *testAsset {
	a := &testAsset{id: id, version: 1, vol: vol}
	m[id] = a
	return a
}
