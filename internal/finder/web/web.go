// Package web implements the polled pseudo-device: a cast target with no
// real playback transport of its own, consumed by a thin browser page that
// long-polls for the next URL to play. Grounded 1:1 on
// castbot/devices/web.py.
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"streamer/internal/device"
	"streamer/internal/token"
)

// Device is one registered browser session polling for a URL to play.
type Device struct {
	name string

	mu               sync.Mutex
	urlToPlay        string
	manipulationTime time.Time
}

func newDevice(name string) *Device {
	return &Device{name: name, manipulationTime: time.Now()}
}

func (d *Device) Name() string { return d.name }

// Stop clears any pending URL without affecting anything already loaded
// client-side — the web pseudo-device has no remote-stop primitive.
func (d *Device) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urlToPlay = ""
	return nil
}

// Play stores url for the next poll to pick up.
func (d *Device) Play(ctx context.Context, url, title string, tok token.LocalToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urlToPlay = url
	return nil
}

func (d *Device) OnClose(ctx context.Context, tok token.LocalToken) {}

// manipulateTimestamp records now as the last time this device was touched
// (by registration or a poll) and returns the previous value, the same
// read-old-then-update contract as manipulate_timestamp.
func (d *Device) manipulateTimestamp() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.manipulationTime
	d.manipulationTime = time.Now()
	return old
}

// consumeURL returns the pending URL and clears it — a one-shot read,
// matching get_url_to_play.
func (d *Device) consumeURL() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.urlToPlay == "" {
		return "", false
	}
	url := d.urlToPlay
	d.urlToPlay = ""
	return url, true
}

// Finder tracks registered web devices, expiring any that haven't been
// polled within requestTimeout, and exposes the register/poll HTTP routes
// browsers use. Grounded on WebDeviceFinder.
type Finder struct {
	password       string
	requestTimeout time.Duration

	mu      sync.Mutex
	devices map[string]*Device
}

// NewFinder builds a web Finder. password gates registration; requestTimeout
// is how long a registered device may go unpolled before it's dropped.
func NewFinder(password string, requestTimeout time.Duration) *Finder {
	return &Finder{password: password, requestTimeout: requestTimeout, devices: make(map[string]*Device)}
}

func (f *Finder) RequestTimeout() int { return int(f.requestTimeout.Seconds()) }

// Find expires stale devices, then returns whatever remains, mirroring
// WebDeviceFinder.find's expire-then-list order.
func (f *Finder) Find(ctx context.Context) ([]device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for tok, dev := range f.devices {
		dev.mu.Lock()
		last := dev.manipulationTime
		dev.mu.Unlock()
		if last.Before(now.Add(-f.requestTimeout)) {
			delete(f.devices, tok)
		}
	}

	var devices []device.Device
	for _, dev := range f.devices {
		devices = append(devices, dev)
	}
	return devices, nil
}

func (f *Finder) Routes() []device.Route {
	return []device.Route{
		{Method: http.MethodGet, Path: "/web/api/register/{password}", Handler: f.handleRegister},
		{Method: http.MethodGet, Path: "/web/api/poll/{remote_token}", Handler: f.handlePoll},
	}
}

func (f *Finder) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("password") != f.password {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	remoteToken, err := secretToken()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	name := fmt.Sprintf("web @(%s)", r.RemoteAddr)
	dev := newDevice(name)

	f.mu.Lock()
	f.devices[remoteToken] = dev
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(remoteToken))
}

func (f *Finder) handlePoll(w http.ResponseWriter, r *http.Request) {
	remoteToken := r.PathValue("remote_token")

	f.mu.Lock()
	dev, ok := f.devices[remoteToken]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	dev.manipulateTimestamp()

	url, ok := dev.consumeURL()
	if !ok {
		w.WriteHeader(http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(url))
}

// secretToken mints the opaque per-registration token browsers carry in
// poll URLs. A v4 UUID rather than a raw counter, so two registrations
// racing the same instant still can't collide or be guessed sequentially.
func secretToken() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
