package gpu

// BufferHandle is an opaque reference to a device buffer. Zero is never a
// valid handle.
type BufferHandle uint64

const NilBuffer BufferHandle = 0

type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageCopySrc
	BufferUsageCopyDst
)

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// Contents is uploaded at creation. Size may exceed len(Contents); the
	// remainder is zeroed.
	Contents []byte
}

// BufferBinding is a range of a buffer bound to one shader slot element.
// Size 0 binds through the end of the buffer.
type BufferBinding struct {
	Buffer BufferHandle
	Offset uint64
	Size   uint64
}

// DispatchCommand is one compute dispatch against the direct lighting
// pipeline. Slots follow the Slot* order; array slots hold MaxChunks
// entries.
type DispatchCommand struct {
	Label      string
	Slots      [SlotCount][]BufferBinding
	Workgroups [3]uint32
}

// Device is the rendering host's side of the GPU contract. Buffer creation
// may fail; dispatch is fire-and-forget and reports nothing synchronously.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (BufferHandle, error)
	WriteBuffer(buf BufferHandle, offset uint64, data []byte) error
	ReleaseBuffer(buf BufferHandle)
	Dispatch(cmd DispatchCommand)
}
