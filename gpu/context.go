// Package gpu owns the process-wide WebGPU device context used as the
// device-kind backend for the device and pinned memory resources and for
// completion events. It is never touched by a pipeline that only uses
// host-kind memory.
package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Debug gates verbose adapter/device selection logging. Off by default so
// the common case (a pipeline that never needs a device) stays silent.
var Debug = false

func logf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}

// Context holds the single WebGPU instance/adapter/device/queue for the
// process, analogous to a CUDA primary context.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

var (
	ctx     Context
	once    sync.Once
	initErr error
)

// GetContext returns the singleton device context, initializing it on first
// call. Initialization prefers an NVIDIA adapter if one is enumerable, then
// falls back through high-performance, low-power, and default adapter
// requests. Returns an error (never a panic) if no adapter/device can be
// obtained — callers on the host-only path must never call this.
func GetContext() (*Context, error) {
	once.Do(func() {
		ctx.Instance = wgpu.CreateInstance(nil)
		if ctx.Instance == nil {
			initErr = fmt.Errorf("gpu: failed to create WebGPU instance")
			return
		}

		for _, a := range ctx.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			logf("gpu: adapter %s (vendor %s)\n", info.Name, info.VendorName)
			if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
				strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
				ctx.Adapter = a
				break
			}
		}

		tryInit := func(opts *wgpu.RequestAdapterOptions) error {
			if ctx.Adapter != nil {
				return nil
			}
			var err error
			ctx.Adapter, err = ctx.Instance.RequestAdapter(opts)
			return err
		}

		var err error
		if ctx.Adapter == nil {
			err = tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
		}
		if ctx.Adapter == nil {
			err = tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
		}
		if ctx.Adapter == nil {
			err = tryInit(nil)
		}
		if ctx.Adapter == nil {
			initErr = fmt.Errorf("gpu: no adapter available: %w", err)
			return
		}

		info := ctx.Adapter.GetInfo()
		logf("gpu: using adapter %s (vendor %s)\n", info.Name, info.VendorName)

		ctx.Device, err = ctx.Adapter.RequestDevice(nil)
		if err != nil {
			initErr = fmt.Errorf("gpu: failed to request device: %w", err)
			return
		}
		ctx.Queue = ctx.Device.GetQueue()
	})

	if initErr != nil {
		return nil, initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("gpu: device or queue not initialized")
	}
	return &ctx, nil
}

// Available reports whether a device context can be obtained, discarding
// the initialization error.
func Available() bool {
	_, err := GetContext()
	return err == nil
}
