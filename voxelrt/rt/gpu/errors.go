package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/manoka/voxelrt/rt/core"
)

var (
	ErrCapacityExceeded        = errors.New("chunk capacity exceeded")
	ErrDeviceResourceExhausted = errors.New("device resource exhausted")
	ErrMissingBinding          = errors.New("chunk asset not ready")
)

// CapacityError reports more renderable instances than binding array slots.
type CapacityError struct {
	Max     int
	Visible int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%d visible chunk instances exceed MaxChunks=%d; raise max_chunks (and regenerate the shader) or hide %d instances",
		e.Visible, e.Max, e.Visible-e.Max)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// DeviceError reports a failed buffer creation for one chunk asset.
type DeviceError struct {
	Asset core.AssetId
	Label string
	Err   error
}

func (e *DeviceError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("creating %s: %v", e.Label, e.Err)
	}
	return fmt.Sprintf("preparing chunk asset %s: creating %s: %v", e.Asset, e.Label, e.Err)
}

func (e *DeviceError) Is(target error) bool { return target == ErrDeviceResourceExhausted }

func (e *DeviceError) Unwrap() error { return e.Err }

// MissingBindingError marks an instance whose asset has no GPU resources yet.
type MissingBindingError struct {
	Ordinal uint64
	Asset   core.AssetId
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("instance %d: asset %s is not ready", e.Ordinal, e.Asset)
}

func (e *MissingBindingError) Is(target error) bool { return target == ErrMissingBinding }
