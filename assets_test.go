package manoka

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVox writes a single-model MagicaVoxel file with the default palette.
func writeVox(t *testing.T, voxels [][4]byte) string {
	t.Helper()
	chunk := func(buf *bytes.Buffer, id string, data []byte) {
		buf.WriteString(id)
		binary.Write(buf, binary.LittleEndian, int32(len(data)))
		binary.Write(buf, binary.LittleEndian, int32(0))
		buf.Write(data)
	}
	size := make([]byte, 12)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(size[i*4:], 8)
	}
	xyzi := binary.LittleEndian.AppendUint32(nil, uint32(len(voxels)))
	for _, v := range voxels {
		xyzi = append(xyzi, v[:]...)
	}

	var buf bytes.Buffer
	buf.WriteString(volume.VOXMagicNumber)
	binary.Write(&buf, binary.LittleEndian, int32(150))
	chunk(&buf, "MAIN", nil)
	chunk(&buf, "SIZE", size)
	chunk(&buf, "XYZI", xyzi)

	path := filepath.Join(t.TempDir(), "model.vox")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestAssetServerCreateAndLookup(t *testing.T) {
	s := NewAssetServer(nil)
	id := s.CreateChunk(volume.DebugSphere())

	_, err := uuid.Parse(string(id))
	assert.NoError(t, err, "ids are uuids")

	a, ok := s.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, id, a.ID())
	assert.Equal(t, uint64(1), a.Version())
	assert.Len(t, s.Ready(), 1)

	_, ok = s.Lookup("nope")
	assert.False(t, ok)
}

func TestAssetServerReserveFulfill(t *testing.T) {
	s := NewAssetServer(nil)
	id := s.Reserve()

	_, ok := s.Lookup(id)
	assert.False(t, ok, "reserved assets are not ready")
	assert.True(t, s.Has(id))
	assert.Empty(t, s.Ready())

	require.NoError(t, s.Fulfill(id, volume.Empty()))
	a, ok := s.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), a.Version())

	require.NoError(t, s.Fulfill(id, volume.DebugSphere()))
	a, _ = s.Lookup(id)
	assert.Equal(t, uint64(2), a.Version(), "replacing bumps the version")

	assert.Error(t, s.Fulfill("unknown", volume.Empty()))

	s.Remove(id)
	s.Remove(id)
	assert.False(t, s.Has(id))
	assert.Equal(t, uint64(1), s.Removals())
}

func TestAssetServerLoadVox(t *testing.T) {
	s := NewAssetServer(nil)
	id, err := s.LoadVox(writeVox(t, [][4]byte{{1, 2, 3, 1}, {4, 4, 4, 9}}))
	require.NoError(t, err)

	a, ok := s.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 2, a.Volume().Count())
	_, occupied := a.Volume().Get(1, 2, 3)
	assert.True(t, occupied)

	_, err = s.LoadVox(filepath.Join(t.TempDir(), "missing.vox"))
	assert.Error(t, err)
}

func TestAssetServerLoadVoxAsync(t *testing.T) {
	s := NewAssetServer(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	good := s.LoadVoxAsync(writeVox(t, [][4]byte{{0, 0, 0, 1}}), func(core.AssetId, error) { wg.Done() })
	bad := s.LoadVoxAsync(filepath.Join(t.TempDir(), "missing.vox"), func(_ core.AssetId, err error) {
		assert.Error(t, err)
		wg.Done()
	})
	wg.Wait()

	_, ok := s.Lookup(good)
	assert.True(t, ok)
	assert.NoError(t, s.Err(good))

	_, ok = s.Lookup(bad)
	assert.False(t, ok)
	assert.Error(t, s.Err(bad))
}
