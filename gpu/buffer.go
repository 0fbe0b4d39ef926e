package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// NewStorageBuffer allocates a device-resident buffer of the given size,
// usable as a copy source/destination and as compute-shader storage.
func (c *Context) NewStorageBuffer(size uint64) (*wgpu.Buffer, error) {
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "pipeflow-device-block",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create storage buffer: %w", err)
	}
	return buf, nil
}

// NewStagingBuffer allocates a host-visible buffer used for pinned-style
// host<->device transfers and as the fence vehicle for completion events.
func (c *Context) NewStagingBuffer(size uint64, forWrite bool) (*wgpu.Buffer, error) {
	usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	if forWrite {
		usage = wgpu.BufferUsageMapWrite | wgpu.BufferUsageCopySrc
	}
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "pipeflow-staging",
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	return buf, nil
}

// CopyBufferToBuffer submits a single copy command and returns once it has
// been enqueued on the device queue (not once it has completed — completion
// is observed separately via MapAsync+Poll, see gevent.Event).
func (c *Context) CopyBufferToBuffer(src, dst *wgpu.Buffer, size uint64) error {
	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu: finish command: %w", err)
	}
	c.Queue.Submit(cmd)
	return nil
}

// MapAndWait maps buf for the given mode and blocks (polling the device)
// until the map completes, fails, or ctx is done. This is the completion
// signal an event's Wait is built on.
func (c *Context) MapAndWait(ctx context.Context, buf *wgpu.Buffer, mode wgpu.MapMode, size uint64) error {
	done := make(chan struct{})
	var mapErr error

	err := buf.MapAsync(mode, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("gpu: map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return fmt.Errorf("gpu: MapAsync: %w", err)
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			return mapErr
		case <-ctx.Done():
			return fmt.Errorf("gpu: map wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
