package shaders

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/gekko3d/manoka/voxelrt/rt/gpu"
	"github.com/gekko3d/manoka/voxelrt/rt/volume"
)

//go:embed direct_lighting.wgsl.tmpl
var directLightingTmpl string

var directLighting = template.Must(template.New("direct_lighting").Parse(directLightingTmpl))

//go:embed chunk_view.wgsl.tmpl
var chunkViewTmpl string

var chunkView = template.Must(template.New("chunk_view").Parse(chunkViewTmpl))

type chunkBindings struct {
	Index      int
	Occupancy  uint32
	Attributes uint32
	Output     uint32
}

type lightingParams struct {
	MaxChunks     int
	ChunkEdge     int
	WorkgroupEdge int
	Chunks        []chunkBindings
	Transforms    uint32
	Lights        uint32
}

// DirectLightingWGSL generates the lighting compute shader with binding
// arrays sized for maxChunks. Bindings follow gpu.BindingIndex.
func DirectLightingWGSL(maxChunks int) (string, error) {
	if maxChunks < 1 {
		return "", fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	p := lightingParams{
		MaxChunks:     maxChunks,
		ChunkEdge:     volume.ChunkEdge,
		WorkgroupEdge: gpu.WorkgroupEdge,
		Transforms:    gpu.BindingIndex(gpu.SlotTransforms, 0, maxChunks),
		Lights:        gpu.BindingIndex(gpu.SlotLights, 0, maxChunks),
	}
	for i := 0; i < maxChunks; i++ {
		p.Chunks = append(p.Chunks, chunkBindings{
			Index:      i,
			Occupancy:  gpu.BindingIndex(gpu.SlotOccupancy, i, maxChunks),
			Attributes: gpu.BindingIndex(gpu.SlotAttributes, i, maxChunks),
			Output:     gpu.BindingIndex(gpu.SlotOutput, i, maxChunks),
		})
	}

	var buf bytes.Buffer
	if err := directLighting.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering direct lighting shader: %w", err)
	}
	return buf.String(), nil
}

type viewChunkBindings struct {
	Index     int
	Occupancy uint32
	Lit       uint32
}

type viewParams struct {
	MaxChunks    int
	ChunkEdge    int
	MaxSteps     int
	Chunks       []viewChunkBindings
	WorldToChunk uint32
	View         uint32
}

// ChunkViewWGSL generates the fullscreen shader that raycasts the lit chunks
// of a frame. Bindings follow gpu.ViewBindingIndex.
func ChunkViewWGSL(maxChunks int) (string, error) {
	if maxChunks < 1 {
		return "", fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	p := viewParams{
		MaxChunks: maxChunks,
		ChunkEdge: volume.ChunkEdge,
		// A ray crosses at most three edges' worth of cells.
		MaxSteps:     3 * volume.ChunkEdge,
		WorldToChunk: gpu.ViewBindingIndex(gpu.ViewWorldToChunk, 0, maxChunks),
		View:         gpu.ViewBindingIndex(gpu.ViewUniform, 0, maxChunks),
	}
	for i := 0; i < maxChunks; i++ {
		p.Chunks = append(p.Chunks, viewChunkBindings{
			Index:     i,
			Occupancy: gpu.ViewBindingIndex(gpu.ViewOccupancy, i, maxChunks),
			Lit:       gpu.ViewBindingIndex(gpu.ViewLit, i, maxChunks),
		})
	}

	var buf bytes.Buffer
	if err := chunkView.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering chunk view shader: %w", err)
	}
	return buf.String(), nil
}
