package manoka

import (
	"fmt"
	"sync"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
	"github.com/gekko3d/manoka/voxelrt/rt/gpu"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"

	"github.com/google/uuid"
)

type ChunkAsset struct {
	id      core.AssetId
	version uint64
	vol     *volume.Volume
}

func (a *ChunkAsset) ID() core.AssetId       { return a.id }
func (a *ChunkAsset) Version() uint64        { return a.version }
func (a *ChunkAsset) Volume() *volume.Volume { return a.vol }

type assetState struct {
	asset *ChunkAsset // nil while loading
	err   error
}

// AssetServer owns chunk volumes by id. Assets may be reserved before their
// volume exists; lookups report them as not ready until they are fulfilled.
// Safe for concurrent use.
type AssetServer struct {
	logger core.Logger

	mu       sync.RWMutex
	assets   map[core.AssetId]*assetState
	removals uint64
}

func NewAssetServer(logger core.Logger) *AssetServer {
	return &AssetServer{
		logger: core.OrNop(logger),
		assets: make(map[core.AssetId]*assetState),
	}
}

func makeAssetId() core.AssetId {
	return core.AssetId(uuid.NewString())
}

// CreateChunk registers a ready asset.
func (s *AssetServer) CreateChunk(vol *volume.Volume) core.AssetId {
	id := makeAssetId()
	s.mu.Lock()
	s.assets[id] = &assetState{asset: &ChunkAsset{id: id, version: 1, vol: vol}}
	s.mu.Unlock()
	return id
}

// Reserve registers an id whose volume arrives later through Fulfill.
func (s *AssetServer) Reserve() core.AssetId {
	id := makeAssetId()
	s.mu.Lock()
	s.assets[id] = &assetState{}
	s.mu.Unlock()
	return id
}

// Fulfill sets the volume of id. Fulfilling a ready asset replaces its volume
// and bumps its version, which invalidates cached GPU buffers.
func (s *AssetServer) Fulfill(id core.AssetId, vol *volume.Volume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.assets[id]
	if !ok {
		return fmt.Errorf("unknown chunk asset %s", id)
	}
	version := uint64(1)
	if st.asset != nil {
		version = st.asset.version + 1
	}
	st.asset = &ChunkAsset{id: id, version: version, vol: vol}
	st.err = nil
	return nil
}

func (s *AssetServer) fail(id core.AssetId, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.assets[id]; ok {
		st.err = err
	}
}

// LoadVox reads the first model of a MagicaVoxel file into a new asset.
func (s *AssetServer) LoadVox(path string) (core.AssetId, error) {
	vol, err := loadVoxVolume(path)
	if err != nil {
		return "", err
	}
	return s.CreateChunk(vol), nil
}

// LoadVoxAsync reserves an id and loads the file in the background. done,
// if not nil, is called once the load finishes.
func (s *AssetServer) LoadVoxAsync(path string, done func(id core.AssetId, err error)) core.AssetId {
	id := s.Reserve()
	go func() {
		vol, err := loadVoxVolume(path)
		if err == nil {
			err = s.Fulfill(id, vol)
		}
		if err != nil {
			s.logger.Errorf("loading %s: %v", path, err)
			s.fail(id, err)
		}
		if done != nil {
			done(id, err)
		}
	}()
	return id
}

func loadVoxVolume(path string) (*volume.Volume, error) {
	f, err := volume.LoadVoxFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("loading %s: no models", path)
	}
	return volume.FromVoxModel(f.Models[0], f.Palette), nil
}

func (s *AssetServer) Remove(id core.AssetId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[id]; ok {
		delete(s.assets, id)
		s.removals++
	}
}

// Lookup returns the asset if its volume is loaded.
func (s *AssetServer) Lookup(id core.AssetId) (gpu.ChunkAsset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[id]
	if !ok || st.asset == nil {
		return nil, false
	}
	return st.asset, true
}

// Err returns the load failure of id, if any.
func (s *AssetServer) Err(id core.AssetId) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.assets[id]; ok {
		return st.err
	}
	return nil
}

// Has reports whether id is registered, loaded or not.
func (s *AssetServer) Has(id core.AssetId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assets[id]
	return ok
}

// Removals counts Remove calls that dropped an asset.
func (s *AssetServer) Removals() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removals
}

// Ready returns every loaded asset.
func (s *AssetServer) Ready() []gpu.ChunkAsset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gpu.ChunkAsset, 0, len(s.assets))
	for _, st := range s.assets {
		if st.asset != nil {
			out = append(out, st.asset)
		}
	}
	return out
}
