package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	VOXMagicNumber = "VOX "
)

type VoxVoxel struct {
	X, Y, Z, ColorIndex byte
}

type VoxModel struct {
	SizeX, SizeY, SizeZ uint32
	Voxels              []VoxVoxel
}

type VoxPalette [256][4]byte // RGBA colors

type VoxFile struct {
	Version int
	Models  []VoxModel
	Palette VoxPalette
}

var ErrNotVox = errors.New("not a valid VOX file")

func LoadVoxFile(filename string) (*VoxFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vf, err := ReadVox(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return vf, nil
}

// ReadVox parses the SIZE, XYZI, RGBA and PACK chunks of a MagicaVoxel file.
// Scene graph and material chunks are skipped.
func ReadVox(r io.Reader) (*VoxFile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != VOXMagicNumber {
		return nil, ErrNotVox
	}

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}

	vf := &VoxFile{
		Version: int(version),
		Palette: DefaultVoxPalette(),
	}

	// Index of the model the next XYZI chunk fills.
	next := 0
	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		var chunkSize, childrenSize int32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &childrenSize); err != nil {
			return nil, err
		}
		if chunkSize < 0 {
			return nil, fmt.Errorf("chunk %q has negative size", chunkID[:])
		}

		data := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}

		switch string(chunkID[:]) {
		case "MAIN":
			// children follow inline
			continue
		case "PACK":
			if len(data) < 4 {
				return nil, errors.New("PACK chunk too small")
			}
			if n := binary.LittleEndian.Uint32(data[:4]); n > 0 {
				vf.Models = make([]VoxModel, n)
			}
		case "SIZE":
			if len(data) < 12 {
				return nil, errors.New("SIZE chunk too small")
			}
			if next >= len(vf.Models) {
				vf.Models = append(vf.Models, VoxModel{})
			}
			m := &vf.Models[next]
			m.SizeX = binary.LittleEndian.Uint32(data[0:4])
			m.SizeY = binary.LittleEndian.Uint32(data[4:8])
			m.SizeZ = binary.LittleEndian.Uint32(data[8:12])
		case "XYZI":
			if next >= len(vf.Models) {
				return nil, errors.New("XYZI chunk without SIZE")
			}
			if len(data) < 4 {
				return nil, errors.New("XYZI chunk too small")
			}
			n := int(binary.LittleEndian.Uint32(data[:4]))
			if 4+n*4 > len(data) {
				return nil, errors.New("XYZI chunk data overflow")
			}
			m := &vf.Models[next]
			m.Voxels = make([]VoxVoxel, n)
			for i := 0; i < n; i++ {
				off := 4 + i*4
				m.Voxels[i] = VoxVoxel{X: data[off], Y: data[off+1], Z: data[off+2], ColorIndex: data[off+3]}
			}
			next++
		case "RGBA":
			// Entry i describes color index i+1.
			for i := 0; i < 255 && i*4+3 < len(data); i++ {
				copy(vf.Palette[i+1][:], data[i*4:i*4+4])
			}
		}
	}

	return vf, nil
}

// DefaultVoxPalette is MagicaVoxel's built-in palette, used by files without
// an RGBA chunk. Index 0 is unused. Indices 1-215 walk the 6x6x6 web color
// cube (red outermost, black omitted), followed by ten-step ramps of red,
// green and blue and a gray ramp.
func DefaultVoxPalette() VoxPalette {
	var palette VoxPalette
	cube := [6]byte{0xff, 0xcc, 0x99, 0x66, 0x33, 0x00}
	i := 1
	for _, r := range cube {
		for _, g := range cube {
			for _, b := range cube {
				if r == 0 && g == 0 && b == 0 {
					continue
				}
				palette[i] = [4]byte{r, g, b, 0xff}
				i++
			}
		}
	}
	ramp := [10]byte{0xee, 0xdd, 0xbb, 0xaa, 0x88, 0x77, 0x55, 0x44, 0x22, 0x11}
	for channel := 0; channel < 3; channel++ {
		for _, v := range ramp {
			palette[i][channel] = v
			palette[i][3] = 0xff
			i++
		}
	}
	for _, v := range ramp {
		palette[i] = [4]byte{v, v, v, 0xff}
		i++
	}
	return palette
}

// FromVoxModel places a model at the chunk origin. Voxels outside the 64³
// chunk are dropped; colors are the palette entries scaled to [0,1].
func FromVoxModel(model VoxModel, palette VoxPalette) *Volume {
	occupied := make([]bool, ChunkVoxelCount)
	colorIdx := make([]byte, ChunkVoxelCount)
	for _, v := range model.Voxels {
		x, y, z := int(v.X), int(v.Y), int(v.Z)
		if !InBounds(x, y, z) {
			continue
		}
		i := Index(x, y, z)
		occupied[i] = true
		colorIdx[i] = v.ColorIndex
	}
	return fromOccupancy(occupied, func(i int) mgl32.Vec3 {
		c := palette[colorIdx[i]]
		return mgl32.Vec3{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255}
	})
}
