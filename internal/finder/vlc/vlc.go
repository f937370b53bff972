// Package vlc casts by driving a VLC instance's telnet remote-control
// interface (the "telnet" Lua interface, typically enabled with
// --extraintf telnet). Grounded 1:1 on castbot/devices/vlc.py: every call
// opens a fresh TCP connection, handles the optional password handshake,
// writes one command and closes.
package vlc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"streamer/internal/device"
	"streamer/internal/token"
)

const (
	eof = "\n\r"

	// authMagic is the trailing byte sequence VLC's telnet banner ends
	// with when a password is required (IAC WILL ECHO, in raw form).
	authMagic = "\xff\xfb\x01"
	// authOK is the prefix of the response once the password is accepted.
	authOK = "\xff\xfc\x01\r\nWelcome"

	dialTimeout = 5 * time.Second
)

// Device casts by remote-controlling one VLC instance over telnet.
type Device struct {
	name     string
	host     string
	port     int
	password string // empty if the telnet interface has no password set
}

// New builds a vlc.Device. password may be empty if the target VLC
// instance's telnet interface has none configured.
func New(name, host string, port int, password string) *Device {
	return &Device{name: name, host: host, port: port, password: password}
}

func (d *Device) Name() string { return d.name }

// Stop issues the "stop" command.
func (d *Device) Stop(ctx context.Context) error {
	return d.call("stop")
}

// Play adds url to the playlist and starts playing it, the two-call
// sequence castbot's play() issues.
func (d *Device) Play(ctx context.Context, url, title string, tok token.LocalToken) error {
	if err := d.call("add", url); err != nil {
		return err
	}
	return d.call("play")
}

// OnClose is a no-op: the source's on_close does nothing for VLC, leaving
// whatever is playing untouched when a session is torn down.
func (d *Device) OnClose(ctx context.Context, tok token.LocalToken) {}

// call opens a fresh connection, negotiates the optional password prompt,
// and writes one telnet command line.
func (d *Device) call(method string, args ...string) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", d.host, d.port), dialTimeout)
	if err != nil {
		return fmt.Errorf("vlc: dial: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(dialTimeout))

	reader := bufio.NewReader(conn)
	banner, err := readAvailable(reader)
	if err != nil {
		return fmt.Errorf("vlc: read banner: %w", err)
	}

	if strings.HasSuffix(banner, authMagic) {
		if d.password == "" {
			return fmt.Errorf("vlc: telnet interface requires a password but none is configured")
		}
		if _, err := conn.Write([]byte(d.password + eof)); err != nil {
			return fmt.Errorf("vlc: send password: %w", err)
		}
		result, err := readAvailable(reader)
		if err != nil {
			return fmt.Errorf("vlc: read auth result: %w", err)
		}
		if !strings.HasPrefix(result, authOK) {
			return fmt.Errorf("vlc: authentication failed")
		}
	}

	line := method
	for _, a := range args {
		line += " " + a
	}
	if _, err := conn.Write([]byte(line + eof)); err != nil {
		return fmt.Errorf("vlc: send command: %w", err)
	}

	return nil
}

// readAvailable reads whatever is immediately available from r without
// blocking for more than the connection's deadline, since the telnet
// banner/auth-result lines aren't newline-terminated in a way that lets a
// simple ReadString work for both the banner and the auth prompt.
func readAvailable(r *bufio.Reader) (string, error) {
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if n == 0 {
		return "", err
	}
	return string(buf[:n]), nil
}

// Finder lists the VLC instances named in configuration; VLC has no
// network discovery protocol, so one Device exists per configured entry,
// matching VlcDeviceFinder's non-singleton, one-per-config-entry shape.
type Finder struct {
	devices        []device.Device
	requestTimeout int
}

// NewFinder wraps a single configured VLC target as a Finder.
func NewFinder(d *Device, requestTimeout int) *Finder {
	return &Finder{devices: []device.Device{d}, requestTimeout: requestTimeout}
}

func (f *Finder) Find(ctx context.Context) ([]device.Device, error) {
	return f.devices, nil
}

func (f *Finder) Routes() []device.Route { return nil }

func (f *Finder) RequestTimeout() int { return f.requestTimeout }
