package gpu

import (
	"fmt"

	"github.com/gekko3d/manoka/voxelrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// ViewPass draws the lit chunks of the last dispatched frame with one ray per
// pixel over a fullscreen triangle.
type ViewPass struct {
	dev       *WGPUDevice
	maxChunks int
	logger    core.Logger

	pipeline    *wgpu.RenderPipeline
	uniform     *wgpu.Buffer
	placeholder *wgpu.Buffer
	matrices    *wgpu.Buffer
	bindGroup   *wgpu.BindGroup

	frame ViewFrame
}

func NewViewPass(dev *WGPUDevice, code string, format wgpu.TextureFormat, logger core.Logger) (*ViewPass, error) {
	p := &ViewPass{dev: dev, maxChunks: dev.maxChunks, logger: core.OrNop(logger)}

	module, err := dev.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Chunk View",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("creating view shader module: %w", err)
	}
	defer module.Release()

	p.pipeline, err = dev.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Chunk View Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating view pipeline: %w", err)
	}

	p.uniform, err = dev.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "chunk view uniform",
		Size:  ViewUniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("creating view uniform: %w", err)
	}
	p.placeholder, err = dev.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "chunk view placeholder",
		Size:  16,
		Usage: wgpu.BufferUsageStorage,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("creating view placeholder: %w", err)
	}
	p.matrices, err = dev.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "chunk view matrices",
		Size:  uint64(p.maxChunks) * TransformSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("creating view matrices: %w", err)
	}
	return p, nil
}

// Capture records the bindings of a dispatched frame. Call it before the
// set is released.
func (p *ViewPass) Capture(set *FrameResourceSet) {
	p.frame = NewViewFrame(set)
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
}

// Clear forgets the captured frame, so the next Draw shows only the
// background.
func (p *ViewPass) Clear() {
	p.Capture(&FrameResourceSet{})
}

// Draw writes the view uniform and records the fullscreen draw into pass.
func (p *ViewPass) Draw(pass *wgpu.RenderPassEncoder, cam ViewCamera) {
	if err := p.dev.Queue.WriteBuffer(p.uniform, 0, EncodeViewUniform(cam, p.frame.Len())); err != nil {
		p.logger.Errorf("writing view uniform: %v", err)
		return
	}
	if p.bindGroup == nil {
		if err := p.bind(); err != nil {
			p.logger.Errorf("frame %d: %v", p.frame.Tick, err)
			return
		}
	}
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
}

func (p *ViewPass) bind() error {
	if len(p.frame.WorldToChunk) > 0 {
		if err := p.dev.Queue.WriteBuffer(p.matrices, 0, p.frame.WorldToChunk); err != nil {
			return fmt.Errorf("writing view matrices: %w", err)
		}
	}

	entries := make([]wgpu.BindGroupEntry, 0, 2*p.maxChunks+2)
	for i := 0; i < p.maxChunks; i++ {
		occ := wgpu.BindGroupEntry{Binding: ViewBindingIndex(ViewOccupancy, i, p.maxChunks), Buffer: p.placeholder, Size: wgpu.WholeSize}
		lit := wgpu.BindGroupEntry{Binding: ViewBindingIndex(ViewLit, i, p.maxChunks), Buffer: p.placeholder, Size: wgpu.WholeSize}
		if i < p.frame.Len() {
			b := p.frame.Occupancy[i]
			buf, ok := p.dev.buffer(b.Buffer)
			if !ok {
				return fmt.Errorf("view occupancy[%d] references unknown buffer %d", i, b.Buffer)
			}
			occ.Buffer, occ.Offset, occ.Size = buf, b.Offset, b.Size
			if occ.Size == 0 {
				occ.Size = wgpu.WholeSize
			}
			if lit.Buffer, ok = p.dev.buffer(p.frame.Lit[i]); !ok {
				return fmt.Errorf("view lit[%d] references unknown buffer %d", i, p.frame.Lit[i])
			}
		}
		entries = append(entries, occ, lit)
	}
	entries = append(entries,
		wgpu.BindGroupEntry{Binding: ViewBindingIndex(ViewWorldToChunk, 0, p.maxChunks), Buffer: p.matrices, Size: wgpu.WholeSize},
		wgpu.BindGroupEntry{Binding: ViewBindingIndex(ViewUniform, 0, p.maxChunks), Buffer: p.uniform, Size: ViewUniformSize},
	)

	layout := p.pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := p.dev.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("chunk view frame %d", p.frame.Tick),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("creating view bind group: %w", err)
	}
	p.bindGroup = bg
	return nil
}

func (p *ViewPass) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	for _, b := range []**wgpu.Buffer{&p.uniform, &p.placeholder, &p.matrices} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}
