// Package registry fans discovery out across the configured finders and
// keeps the last-known device list available for selection and routing.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"streamer/internal/device"
	"streamer/internal/observability"
)

// Registry holds the configured finders and the devices each last reported.
// Grounded on castbot's DeviceFinderCollection: refresh is fan-out with a
// per-finder timeout, and find-by-name/list-all read the last completed
// refresh, running a new one first only when that result is empty.
type Registry struct {
	finders []device.Finder

	mu      sync.RWMutex
	devices []device.Device
}

// New builds a Registry over the given finders. Finders are queried in the
// order given, but RefreshAll runs them concurrently.
func New(finders []device.Finder) *Registry {
	return &Registry{finders: finders}
}

// RefreshAll queries every finder concurrently, bounding each one to its own
// RequestTimeout()+1s (the "+1" matches the source's async_timeout.timeout
// wrapper giving the finder headroom past its own internal timeout), and
// replaces the device list with whatever came back. A finder that errors or
// times out contributes no devices and does not fail the refresh as a
// whole.
func (r *Registry) RefreshAll(ctx context.Context) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []device.Device
	)

	for _, f := range r.finders {
		wg.Add(1)
		go func(f device.Finder) {
			defer wg.Done()

			timeout := time.Duration(f.RequestTimeout())*time.Second + time.Second
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			found, err := f.Find(fctx)
			observability.DevicesFound.WithLabelValues(finderLabel(f)).Set(float64(len(found)))
			if err != nil {
				return
			}

			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	r.mu.Lock()
	r.devices = all
	r.mu.Unlock()
}

// ListAll returns the devices found by the most recent RefreshAll. If no
// refresh has run yet, it triggers one first (lazy-refresh-if-empty, per
// the source's list_all_devices).
func (r *Registry) ListAll(ctx context.Context) []device.Device {
	r.mu.RLock()
	devs := r.devices
	r.mu.RUnlock()

	if len(devs) == 0 {
		r.RefreshAll(ctx)
		r.mu.RLock()
		devs = r.devices
		r.mu.RUnlock()
	}
	return devs
}

// FindByName returns the device with the given name from the last refresh,
// refreshing first if the cache is empty. Returns nil if no such device is
// currently known.
func (r *Registry) FindByName(ctx context.Context, name string) device.Device {
	for _, d := range r.ListAll(ctx) {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Routes collects every finder's extra HTTP routes (UPnP NOTIFY sink, web
// register/poll endpoints) for streamserver to mount alongside the stream
// handler.
func (r *Registry) Routes() []device.Route {
	var routes []device.Route
	for _, f := range r.finders {
		routes = append(routes, f.Routes()...)
	}
	return routes
}

// finderLabel derives the Prometheus label identifying which finder
// reported a device count, since device.Finder carries no user-facing name
// of its own (only discovered devices are named).
func finderLabel(f device.Finder) string {
	return fmt.Sprintf("%T", f)
}
