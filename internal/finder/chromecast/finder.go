package chromecast

import (
	"context"
	"sync"
	"time"

	gocast "github.com/barnybug/go-cast"

	"streamer/internal/device"
)

// Finder discovers Chromecast receivers on the LAN via mDNS, caching
// discovered devices by IP address across calls the way catt.api.discover()
// does in the source (ChromecastDeviceFinder's singleton cache), so a cast
// already in progress survives being re-discovered.
type Finder struct {
	requestTimeout int

	mu      sync.Mutex
	byAddr  map[string]*Device
}

// NewFinder builds a Chromecast Finder bounding discovery to
// requestTimeout seconds.
func NewFinder(requestTimeout int) *Finder {
	return &Finder{requestTimeout: requestTimeout, byAddr: make(map[string]*Device)}
}

func (f *Finder) RequestTimeout() int { return f.requestTimeout }

func (f *Finder) Routes() []device.Route { return nil }

func (f *Finder) Find(ctx context.Context) ([]device.Device, error) {
	timeout := time.Duration(f.requestTimeout) * time.Second
	entries, err := gocast.Discover(ctx, timeout)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var devices []device.Device
	for _, entry := range entries {
		addr := entry.AddrV4.String()
		dev, ok := f.byAddr[addr]
		if !ok {
			dev = newDevice(entry.Name, entry.AddrV4, entry.Port)
			f.byAddr[addr] = dev
		}
		devices = append(devices, dev)
	}

	return devices, nil
}
