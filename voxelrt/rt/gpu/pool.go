package gpu

import (
	"fmt"
	"sync"
)

// outputPool recycles per-instance output buffers between frames. Buffers are
// handed out without clearing; the lighting pass writes every cell.
type outputPool struct {
	device Device

	mu      sync.Mutex
	free    []BufferHandle
	created uint64
}

func newOutputPool(device Device) *outputPool {
	return &outputPool{device: device}
}

func (p *outputPool) acquire() (BufferHandle, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return buf, nil
	}
	p.created++
	label := fmt.Sprintf("chunk output %d", p.created)
	p.mu.Unlock()

	buf, err := p.device.CreateBuffer(BufferDescriptor{
		Label: label,
		Size:  OutputBufferSize,
		Usage: BufferUsageStorage | BufferUsageCopySrc,
	})
	if err != nil {
		return NilBuffer, &DeviceError{Label: "output buffer", Err: err}
	}
	return buf, nil
}

func (p *outputPool) release(bufs ...BufferHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bufs {
		if b != NilBuffer {
			p.free = append(p.free, b)
		}
	}
}

// trim destroys idle buffers beyond keep.
func (p *outputPool) trim(keep int) int {
	p.mu.Lock()
	if keep < 0 {
		keep = 0
	}
	var drop []BufferHandle
	if len(p.free) > keep {
		drop = append(drop, p.free[keep:]...)
		p.free = p.free[:keep]
	}
	p.mu.Unlock()

	for _, b := range drop {
		p.device.ReleaseBuffer(b)
	}
	return len(drop)
}

func (p *outputPool) idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
