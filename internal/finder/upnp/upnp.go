// Package upnp casts to UPnP/DLNA AVTransport renderers: discovery via
// SSDP M-SEARCH, playback control via SOAP, and playback-state tracking via
// GENA event subscription. Grounded 1:1 on castbot/devices/upnp.py.
package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"streamer/internal/device"
	"streamer/internal/token"
)

const (
	videoFlags = "21700000000000000000000000000000"

	didlMetadataTemplate = `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" ` +
		`xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" ` +
		`xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
		`<item id="R:0/0/0" parentID="R:0/0" restricted="true">` +
		`<dc:title>%s</dc:title>` +
		`<upnp:class>object.item.videoItem.movie</upnp:class>` +
		`<res protocolInfo="http-get:*:video/mp4:DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=` + videoFlags + `">%s</res>` +
		`</item></DIDL-Lite>`

	resubscribeInterval = 10 * time.Second
)

// asciiOnly strips non-ASCII characters, matching the source's guard
// against renderers choking on non-Latin titles in DIDL metadata.
func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// deviceStatus tracks one cast's reachability as reported by NOTIFY events.
type deviceStatus struct {
	dev     *Device
	playing bool
	errored bool
}

// NotifyServer routes GENA event NOTIFY callbacks to the device whose
// session token they carry, and triggers Device.reconnect on the
// ERROR-after-PLAY-then-NOTHING transition. Grounded 1:1 on
// castbot/devices/upnp.py::UpnpNotifyServer.
type NotifyServer struct {
	mu      sync.Mutex
	devices map[token.LocalToken]*deviceStatus
}

// NewNotifyServer creates an empty NotifyServer.
func NewNotifyServer() *NotifyServer {
	return &NotifyServer{devices: make(map[token.LocalToken]*deviceStatus)}
}

func (n *NotifyServer) addDevice(tok token.LocalToken, dev *Device) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices[tok] = &deviceStatus{dev: dev}
}

func (n *NotifyServer) removeDevice(tok token.LocalToken) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.devices, tok)
}

// Route returns the NOTIFY handler to mount at /upnp/notify/{token}.
func (n *NotifyServer) Route() device.Route {
	return device.Route{
		Method:  "NOTIFY",
		Path:    "/upnp/notify/{token}",
		Handler: n.handle,
	}
}

func (n *NotifyServer) handle(w http.ResponseWriter, r *http.Request) {
	rawToken := r.PathValue("token")

	tok, err := token.Parse(rawToken)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	status, ok := n.devices[tok]
	n.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	body, _ := io.ReadAll(r.Body)
	playerStatus := parsePlayerStatus(body)

	n.mu.Lock()
	if playerStatus == statusPlaying {
		status.playing = true
	}
	if playerStatus == statusError && status.playing {
		status.errored = true
	}
	reconnectNeeded := status.errored && playerStatus == statusNothing
	if reconnectNeeded {
		status.errored = false
		status.playing = false
	}
	n.mu.Unlock()

	if reconnectNeeded {
		if err := status.dev.reconnect(r.Context()); err != nil {
			slog.Warn("upnp reconnect failed", "device", status.dev.Name(), "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

type playerStatus int

const (
	statusNothing playerStatus = iota
	statusPlaying
	statusError
	statusStopped
)

// transportStatusEvent is the subset of a GENA LastChange event body this
// package reads: just the TransportStatus val attribute. Grounded on
// _player_status's iterparse scan for the TransportStatus tag.
type transportStatusEvent struct {
	Instances []struct {
		TransportStatus struct {
			Val string `xml:"val,attr"`
		} `xml:"TransportStatus"`
	} `xml:"InstanceID"`
}

func parsePlayerStatus(body []byte) playerStatus {
	decoded := html.UnescapeString(string(body))

	var event transportStatusEvent
	if err := xml.Unmarshal([]byte(decoded), &event); err != nil {
		return statusNothing
	}

	reachOK := false
	for _, inst := range event.Instances {
		switch inst.TransportStatus.Val {
		case "OK":
			reachOK = true
		case "STOPPED":
			return statusStopped
		case "ERROR_OCCURRED":
			return statusError
		}
	}

	if reachOK {
		return statusPlaying
	}
	return statusNothing
}

// Device casts to one UPnP AVTransport renderer.
type Device struct {
	name        string
	controlURL  string
	eventSubURL string
	notify      *NotifyServer
	listenHost  string
	listenPort  int

	mu   sync.Mutex
	sub  *subscribeTask
}

func newDevice(desc deviceDescription, notify *NotifyServer, listenHost string, listenPort int) *Device {
	return &Device{
		name:        desc.FriendlyName,
		controlURL:  desc.ControlURL,
		eventSubURL: desc.EventSubURL,
		notify:      notify,
		listenHost:  listenHost,
		listenPort:  listenPort,
	}
}

func (d *Device) Name() string { return d.name }

// Stop issues an AVTransport Stop, swallowing the "transition not
// available"/"action stop failed" faults renderers return when nothing is
// playing — grounded 1:1 on _upnp_safe_stop.
func (d *Device) Stop(ctx context.Context) error {
	err := soapCall(ctx, d.controlURL, avTransportSchema, "Stop", map[string]string{"InstanceID": "0"})
	if err == nil {
		return nil
	}
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "transition not available") || strings.Contains(lowered, "action stop failed") {
		return nil
	}
	return err
}

// Play sets the transport URI with DIDL-Lite metadata, subscribes to the
// device's AVTransport events for NOTIFY-driven status tracking, then
// issues Play. Grounded 1:1 on UpnpDevice.play.
func (d *Device) Play(ctx context.Context, mediaURL, title string, tok token.LocalToken) error {
	meta := fmt.Sprintf(didlMetadataTemplate, escapeXML(asciiOnly(title)), escapeXML(mediaURL))

	if err := soapCall(ctx, d.controlURL, avTransportSchema, "SetAVTransportURI", map[string]string{
		"InstanceID":         "0",
		"CurrentURI":         mediaURL,
		"CurrentURIMetaData": meta,
	}); err != nil {
		return err
	}

	d.notify.addDevice(tok, d)

	callbackURL := fmt.Sprintf("http://%s:%d/upnp/notify/%s", d.listenHost, d.listenPort, tok.String())

	d.mu.Lock()
	sub := newSubscribeTask(d.eventSubURL, callbackURL)
	d.sub = sub
	d.mu.Unlock()
	sub.start()

	return soapCall(ctx, d.controlURL, avTransportSchema, "Play", map[string]string{
		"InstanceID": "0",
		"Speed":      "1",
	})
}

// Pause satisfies device.Pauser.
func (d *Device) Pause(ctx context.Context) error {
	return soapCall(ctx, d.controlURL, avTransportSchema, "Pause", map[string]string{"InstanceID": "0"})
}

// Resume satisfies device.Resumer.
func (d *Device) Resume(ctx context.Context) error {
	return soapCall(ctx, d.controlURL, avTransportSchema, "Play", map[string]string{
		"InstanceID": "0",
		"Speed":      "1",
	})
}

// reconnect re-issues Play, the NOTIFY handler's response to an
// ERROR-after-PLAY-then-NOTHING transition.
func (d *Device) reconnect(ctx context.Context) error {
	return soapCall(ctx, d.controlURL, avTransportSchema, "Play", map[string]string{
		"InstanceID": "0",
		"Speed":      "1",
	})
}

// OnClose stops the resubscribe loop and forgets the token.
func (d *Device) OnClose(ctx context.Context, tok token.LocalToken) {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	if sub != nil {
		sub.close()
	}
	d.notify.removeDevice(tok)
}

// subscribeTask holds a GENA subscription alive by unsubscribing and
// resubscribing every 10 seconds rather than renewing, since renewal
// doesn't work reliably against Samsung TVs — the comment in the source
// this is grounded on is explicit about why.
type subscribeTask struct {
	eventSubURL string
	callbackURL string
	sid         string

	stop chan struct{}
	done chan struct{}
}

func newSubscribeTask(eventSubURL, callbackURL string) *subscribeTask {
	return &subscribeTask{
		eventSubURL: eventSubURL,
		callbackURL: callbackURL,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (t *subscribeTask) start() {
	go t.loop()
}

func (t *subscribeTask) loop() {
	defer close(t.done)

	if err := t.subscribe(); err != nil {
		slog.Warn("upnp subscribe failed", "url", t.eventSubURL, "error", err)
	}

	ticker := time.NewTicker(resubscribeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			t.unsubscribe()
			return
		case <-ticker.C:
			t.unsubscribe()
			if err := t.subscribe(); err != nil {
				slog.Warn("upnp resubscribe failed", "url", t.eventSubURL, "error", err)
			}
		}
	}
}

func (t *subscribeTask) close() {
	close(t.stop)
	<-t.done
}

func (t *subscribeTask) subscribe() error {
	req, err := http.NewRequest("SUBSCRIBE", t.eventSubURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("CALLBACK", "<"+t.callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", "Second-1800")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe: http %d", resp.StatusCode)
	}
	t.sid = resp.Header.Get("SID")
	return nil
}

func (t *subscribeTask) unsubscribe() {
	if t.sid == "" {
		return
	}
	req, err := http.NewRequest("UNSUBSCRIBE", t.eventSubURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("SID", t.sid)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
	t.sid = ""
}

// Finder discovers UPnP AVTransport renderers via SSDP. It is a singleton
// finder: one instance owns the shared NotifyServer every discovered
// Device registers against, matching UpnpDeviceFinder.singleton=True.
type Finder struct {
	requestTimeout int
	listenHost     string
	listenPort     int
	notify         *NotifyServer
}

// NewFinder builds a UPnP Finder. requestTimeout bounds how long Find
// waits for M-SEARCH responses; listenHost/listenPort are this process's
// own address, embedded in the NOTIFY callback URL told to renderers.
func NewFinder(requestTimeout int, listenHost string, listenPort int) *Finder {
	return &Finder{
		requestTimeout: requestTimeout,
		listenHost:     listenHost,
		listenPort:     listenPort,
		notify:         NewNotifyServer(),
	}
}

func (f *Finder) RequestTimeout() int { return f.requestTimeout }

func (f *Finder) Routes() []device.Route {
	return []device.Route{f.notify.Route()}
}

// Find sends an M-SEARCH for AVTransport renderers and resolves every
// distinct LOCATION into a Device.
func (f *Finder) Find(ctx context.Context) ([]device.Device, error) {
	timeout := time.Duration(f.requestTimeout) * time.Second
	locations, err := msearch(ctx, avTransportSchema, timeout)
	if err != nil {
		return nil, err
	}

	var devices []device.Device
	for _, loc := range locations {
		desc, err := fetchDescription(ctx, loc)
		if err != nil {
			slog.Warn("upnp: failed to fetch device description", "location", loc, "error", err)
			continue
		}
		devices = append(devices, newDevice(desc, f.notify, f.listenHost, f.listenPort))
	}

	return devices, nil
}
