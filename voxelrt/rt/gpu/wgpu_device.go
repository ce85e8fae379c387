package gpu

import (
	"fmt"
	"sync"

	"github.com/gekko3d/manoka/voxelrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDevice implements Device on a webgpu device and queue. Dispatches are
// recorded against the lighting pipeline built by CreatePipeline.
type WGPUDevice struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	maxChunks int
	logger    core.Logger

	mu       sync.Mutex
	buffers  map[BufferHandle]*wgpu.Buffer
	next     BufferHandle
	pipeline *wgpu.ComputePipeline
}

func NewWGPUDevice(device *wgpu.Device, maxChunks int, logger core.Logger) *WGPUDevice {
	return &WGPUDevice{
		Device:    device,
		Queue:     device.GetQueue(),
		maxChunks: maxChunks,
		logger:    core.OrNop(logger),
		buffers:   make(map[BufferHandle]*wgpu.Buffer),
	}
}

// RequiredLimits raises the per-stage storage buffer limit to what the
// lowered binding layout needs: three arrays of maxChunks plus transforms and
// lights.
func RequiredLimits(maxChunks int) *wgpu.RequiredLimits {
	limits := wgpu.DefaultLimits()
	need := uint32(3*maxChunks + 2)
	if limits.MaxStorageBuffersPerShaderStage < need {
		limits.MaxStorageBuffersPerShaderStage = need
	}
	return &wgpu.RequiredLimits{Limits: limits}
}

// CreatePipeline compiles the lighting shader and makes it the dispatch
// target. The shader must be generated for the same maxChunks.
func (d *WGPUDevice) CreatePipeline(code string) error {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Direct Lighting CS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return fmt.Errorf("creating shader module: %w", err)
	}
	defer module.Release()

	pipeline, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Direct Lighting Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("creating compute pipeline: %w", err)
	}

	d.mu.Lock()
	old := d.pipeline
	d.pipeline = pipeline
	d.mu.Unlock()
	if old != nil {
		old.Release()
	}
	return nil
}

func toWGPUUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	return out
}

func (d *WGPUDevice) CreateBuffer(desc BufferDescriptor) (BufferHandle, error) {
	size := align4(max(desc.Size, uint64(len(desc.Contents))))
	usage := toWGPUUsage(desc.Usage)

	var (
		buf *wgpu.Buffer
		err error
	)
	if len(desc.Contents) > 0 {
		contents := desc.Contents
		if uint64(len(contents)) < size {
			contents = make([]byte, size)
			copy(contents, desc.Contents)
		}
		buf, err = d.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		buf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  size,
			Usage: usage,
		})
	}
	if err != nil {
		return NilBuffer, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.buffers[d.next] = buf
	return d.next, nil
}

func (d *WGPUDevice) buffer(h BufferHandle) (*wgpu.Buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	return buf, ok
}

func (d *WGPUDevice) WriteBuffer(h BufferHandle, offset uint64, data []byte) error {
	buf, ok := d.buffer(h)
	if !ok {
		return fmt.Errorf("write to unknown buffer %d", h)
	}
	return d.Queue.WriteBuffer(buf, offset, data)
}

func (d *WGPUDevice) ReleaseBuffer(h BufferHandle) {
	d.mu.Lock()
	buf, ok := d.buffers[h]
	delete(d.buffers, h)
	d.mu.Unlock()
	if ok {
		buf.Release()
	}
}

// Dispatch binds every slot of cmd to group 0 and submits one compute pass.
// Failures are logged; the frame is simply not lit.
func (d *WGPUDevice) Dispatch(cmd DispatchCommand) {
	d.mu.Lock()
	pipeline := d.pipeline
	d.mu.Unlock()
	if pipeline == nil {
		d.logger.Errorf("%s: no pipeline", cmd.Label)
		return
	}

	entries := make([]wgpu.BindGroupEntry, 0, 3*d.maxChunks+2)
	for slot, bindings := range cmd.Slots {
		for i, b := range bindings {
			buf, ok := d.buffer(b.Buffer)
			if !ok {
				d.logger.Errorf("%s: %s[%d] references unknown buffer %d", cmd.Label, SlotName(slot), i, b.Buffer)
				return
			}
			size := b.Size
			if size == 0 {
				size = wgpu.WholeSize
			}
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: BindingIndex(slot, i, d.maxChunks),
				Buffer:  buf,
				Offset:  b.Offset,
				Size:    size,
			})
		}
	}

	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   cmd.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		d.logger.Errorf("%s: creating bind group: %v", cmd.Label, err)
		return
	}
	defer bindGroup.Release()

	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		d.logger.Errorf("%s: creating command encoder: %v", cmd.Label, err)
		return
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(cmd.Workgroups[0], cmd.Workgroups[1], cmd.Workgroups[2])
	if err := pass.End(); err != nil {
		d.logger.Errorf("%s: ending compute pass: %v", cmd.Label, err)
		return
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		d.logger.Errorf("%s: finishing encoder: %v", cmd.Label, err)
		return
	}
	defer cmdBuf.Release()
	d.Queue.Submit(cmdBuf)
}

// Release destroys every live buffer and the pipeline.
func (d *WGPUDevice) Release() {
	d.mu.Lock()
	bufs := d.buffers
	d.buffers = make(map[BufferHandle]*wgpu.Buffer)
	pipeline := d.pipeline
	d.pipeline = nil
	d.mu.Unlock()

	for _, b := range bufs {
		b.Release()
	}
	if pipeline != nil {
		pipeline.Release()
	}
}
