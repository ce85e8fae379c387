package gpu

import (
	"github.com/gekko3d/manoka/voxelrt/rt/core"
)

// LightUploader keeps the sun light list in one grow-only storage buffer.
type LightUploader struct {
	device Device
	buf    BufferHandle
	size   uint64
}

func NewLightUploader(device Device) *LightUploader {
	return &LightUploader{device: device}
}

// Upload writes lights and returns the binding covering exactly them. An
// empty list binds one zero record, which contributes no light.
func (u *LightUploader) Upload(lights []core.GpuSunLight) (BufferBinding, error) {
	data := core.EncodeSunLights(lights)
	if len(data) == 0 {
		data = make([]byte, core.GpuSunLightSize)
	}
	need := uint64(len(data))

	if u.buf == NilBuffer || need > u.size {
		if u.buf != NilBuffer {
			u.device.ReleaseBuffer(u.buf)
			u.buf = NilBuffer
		}
		buf, err := u.device.CreateBuffer(BufferDescriptor{
			Label:    "sun lights",
			Size:     need,
			Usage:    BufferUsageStorage | BufferUsageCopyDst,
			Contents: data,
		})
		if err != nil {
			u.size = 0
			return BufferBinding{}, &DeviceError{Label: "light buffer", Err: err}
		}
		u.buf, u.size = buf, need
	} else if err := u.device.WriteBuffer(u.buf, 0, data); err != nil {
		return BufferBinding{}, &DeviceError{Label: "light buffer", Err: err}
	}

	return BufferBinding{Buffer: u.buf, Size: need}, nil
}

func (u *LightUploader) Release() {
	if u.buf != NilBuffer {
		u.device.ReleaseBuffer(u.buf)
		u.buf, u.size = NilBuffer, 0
	}
}
