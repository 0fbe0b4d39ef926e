package mm

import "sync"

var (
	defaultHostOnce sync.Once
	defaultHost     *HostResource
)

// DefaultHostResource returns the process-wide default resource for plain
// host memory, constructing it on first use.
func DefaultHostResource() *HostResource {
	defaultHostOnce.Do(func() {
		defaultHost = NewHostResource()
	})
	return defaultHost
}
