package gpu

import (
	"fmt"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
)

// DispatchIssuer records one lighting dispatch per frame. Array slots are
// padded to MaxChunks with small placeholder buffers that the shader never
// touches. Read-only and read-write slots get separate placeholders: a buffer
// may not be bound both ways in one bind group.
type DispatchIssuer struct {
	device            Device
	maxChunks         int
	placeholder       BufferHandle
	outputPlaceholder BufferHandle
	logger            core.Logger
}

func NewDispatchIssuer(device Device, maxChunks int, logger core.Logger) (*DispatchIssuer, error) {
	if maxChunks < 1 {
		return nil, fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	placeholder, err := device.CreateBuffer(BufferDescriptor{
		Label: "binding placeholder",
		Size:  minAttributeBufferSize,
		Usage: BufferUsageStorage,
	})
	if err != nil {
		return nil, &DeviceError{Label: "placeholder buffer", Err: err}
	}
	outputPlaceholder, err := device.CreateBuffer(BufferDescriptor{
		Label: "output placeholder",
		Size:  OutputStride,
		Usage: BufferUsageStorage,
	})
	if err != nil {
		device.ReleaseBuffer(placeholder)
		return nil, &DeviceError{Label: "output placeholder buffer", Err: err}
	}
	return &DispatchIssuer{
		device:            device,
		maxChunks:         maxChunks,
		placeholder:       placeholder,
		outputPlaceholder: outputPlaceholder,
		logger:            core.OrNop(logger),
	}, nil
}

// Command builds the dispatch for set without submitting it.
func (d *DispatchIssuer) Command(set *FrameResourceSet) DispatchCommand {
	n := len(set.Instances)
	cmd := DispatchCommand{
		Label:      fmt.Sprintf("direct lighting frame %d", set.Tick),
		Workgroups: DispatchSize(n),
	}

	pads := map[int]BufferBinding{
		SlotOccupancy:  {Buffer: d.placeholder},
		SlotAttributes: {Buffer: d.placeholder},
		SlotOutput:     {Buffer: d.outputPlaceholder},
	}
	for slot, pad := range pads {
		cmd.Slots[slot] = make([]BufferBinding, d.maxChunks)
		for i := range cmd.Slots[slot] {
			cmd.Slots[slot][i] = pad
		}
	}
	for i, inst := range set.Instances {
		cmd.Slots[SlotOccupancy][i] = inst.Occupancy
		cmd.Slots[SlotAttributes][i] = inst.Attributes
		cmd.Slots[SlotOutput][i] = BufferBinding{Buffer: inst.Output, Size: OutputBufferSize}
	}
	cmd.Slots[SlotTransforms] = []BufferBinding{set.Transforms}
	cmd.Slots[SlotLights] = []BufferBinding{set.Lights}
	return cmd
}

// Issue submits the dispatch for set and reports whether anything was
// submitted. An empty set submits nothing.
func (d *DispatchIssuer) Issue(set *FrameResourceSet) bool {
	if set == nil || len(set.Instances) == 0 {
		return false
	}
	if len(set.Instances) > d.maxChunks {
		// Prepare enforces this; a mismatched preparer would corrupt the
		// binding layout.
		d.logger.Errorf("frame %d: %v", set.Tick, &CapacityError{Max: d.maxChunks, Visible: len(set.Instances)})
		return false
	}
	cmd := d.Command(set)
	d.logger.Debugf("%s: %d chunks, grid %v", cmd.Label, len(set.Instances), cmd.Workgroups)
	d.device.Dispatch(cmd)
	return true
}

func (d *DispatchIssuer) Release() {
	for _, h := range []*BufferHandle{&d.placeholder, &d.outputPlaceholder} {
		if *h != NilBuffer {
			d.device.ReleaseBuffer(*h)
			*h = NilBuffer
		}
	}
}
