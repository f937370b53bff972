// Package kodi casts by issuing a single Player.Open JSON-RPC call against
// a Kodi/XBMC instance's web interface. The spec treats Kodi as external
// and doesn't detail it further, so this is a thin, config-listed (not
// discovered) stub — the same "one device per config entry" shape as vlc.
package kodi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"streamer/internal/device"
	"streamer/internal/token"
)

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int            `json:"id"`
}

type rpcResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Device casts by calling Player.Open against one Kodi instance's JSON-RPC
// endpoint.
type Device struct {
	name       string
	rpcURL     string
	httpClient *http.Client
}

// New builds a kodi.Device against a JSON-RPC endpoint, typically
// http://host:port/jsonrpc.
func New(name, rpcURL string) *Device {
	return &Device{name: name, rpcURL: rpcURL, httpClient: http.DefaultClient}
}

func (d *Device) Name() string { return d.name }

// Stop issues Player.Stop for player id 1 only.
func (d *Device) Stop(ctx context.Context) error {
	return d.call(ctx, "Player.Stop", map[string]any{"playerid": 1})
}

// Play issues a single Player.Open with the media url.
func (d *Device) Play(ctx context.Context, url, title string, tok token.LocalToken) error {
	return d.call(ctx, "Player.Open", map[string]any{
		"item": map[string]any{"file": url},
	})
}

func (d *Device) OnClose(ctx context.Context, tok token.LocalToken) {}

func (d *Device) call(ctx context.Context, method string, params map[string]any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kodi: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("kodi: %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("kodi: %s: %s", method, rpcResp.Error.Message)
	}

	return nil
}

// Finder wraps a single configured Kodi instance, matching the
// config-listed-not-discovered model vlc and kodi share.
type Finder struct {
	device         device.Device
	requestTimeout int
}

func NewFinder(d *Device, requestTimeout int) *Finder {
	return &Finder{device: d, requestTimeout: requestTimeout}
}

func (f *Finder) Find(ctx context.Context) ([]device.Device, error) {
	return []device.Device{f.device}, nil
}

func (f *Finder) Routes() []device.Route { return nil }

func (f *Finder) RequestTimeout() int { return f.requestTimeout }
