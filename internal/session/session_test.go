package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"streamer/internal/device"
	"streamer/internal/token"
)

type fakeDevice struct {
	name       string
	playErr    error
	played     string
	stopped    int
	closed     bool
	pause      bool // whether this device implements Pauser
	resume     bool
	paused     bool
	resumedAgn bool
}

func (d *fakeDevice) Stop(ctx context.Context) error { d.stopped++; return nil }
func (d *fakeDevice) Play(ctx context.Context, url, title string, tok token.LocalToken) error {
	if d.playErr != nil {
		return d.playErr
	}
	d.played = url
	return nil
}
func (d *fakeDevice) Name() string                                   { return d.name }
func (d *fakeDevice) OnClose(ctx context.Context, tok token.LocalToken) { d.closed = true }

type pausableDevice struct{ fakeDevice }

func (d *pausableDevice) Pause(ctx context.Context) error  { d.paused = true; return nil }
func (d *pausableDevice) Resume(ctx context.Context) error { d.resumedAgn = true; return nil }

type fakeMessenger struct {
	mu            sync.Mutex
	playingCalls  int
	pausedCalls   int
	stoppedCalls  int
	lastRemaining *float64
	menuDevices   []device.Device
}

func (m *fakeMessenger) SendPlaying(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playingCalls++
	return nil
}
func (m *fakeMessenger) SendPaused(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pausedCalls++
	return nil
}
func (m *fakeMessenger) SendStopped(ctx context.Context, s *Session, remainingPct *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stoppedCalls++
	m.lastRemaining = remainingPct
	return nil
}
func (m *fakeMessenger) SendDeviceMenu(ctx context.Context, s *Session, devices []device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menuDevices = devices
	return nil
}

func newTestSession(dev device.Device, msgr ControlMessenger) *Session {
	return &Session{
		Token:     token.FromParts(1, 2),
		UserID:    7,
		Title:     "movie.mp4",
		uri:       "http://host/stream/1/abc",
		dev:       dev,
		messenger: msgr,
	}
}

func TestPlayStopsThenPlaysAndAnnounces(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{name: "tv"}
	msgr := &fakeMessenger{}
	s := newTestSession(dev, msgr)

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if dev.stopped != 1 {
		t.Errorf("expected device.Stop called once before Play, got %d", dev.stopped)
	}
	if dev.played != "http://host/stream/1/abc" {
		t.Errorf("played = %q", dev.played)
	}
	if msgr.playingCalls != 1 {
		t.Errorf("expected 1 playing-message render, got %d", msgr.playingCalls)
	}
}

func TestPlayWithNoDeviceFails(t *testing.T) {
	t.Parallel()

	s := newTestSession(nil, &fakeMessenger{})
	if err := s.Play(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Play with no device: err = %v, want ErrNoDevice", err)
	}
}

func TestStopAlwaysRendersStoppedMessageEvenWithNoDevice(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	s := newTestSession(nil, msgr)

	err := s.Stop(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("Stop with no device: err = %v, want ErrNoDevice", err)
	}
	if msgr.stoppedCalls != 1 {
		t.Errorf("expected stopped message rendered even without a device, got %d calls", msgr.stoppedCalls)
	}
}

func TestPauseUnsupportedByDevice(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{name: "vlc"}
	s := newTestSession(dev, &fakeMessenger{})

	if err := s.Pause(context.Background()); !errors.Is(err, device.ErrActionNotSupported) {
		t.Errorf("Pause on non-Pauser device: err = %v, want ErrActionNotSupported", err)
	}
}

func TestPauseResumeOnCapableDevice(t *testing.T) {
	t.Parallel()

	dev := &pausableDevice{fakeDevice{name: "tv"}}
	msgr := &fakeMessenger{}
	s := newTestSession(dev, msgr)

	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !dev.paused {
		t.Error("expected Pause to be invoked on device")
	}
	if msgr.pausedCalls != 1 {
		t.Errorf("expected 1 paused-message render, got %d", msgr.pausedCalls)
	}

	if err := s.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !dev.resumedAgn {
		t.Error("expected Resume to be invoked on device")
	}
	if msgr.playingCalls != 1 {
		t.Errorf("expected resume to render playing message, got %d", msgr.playingCalls)
	}
}

func TestSelectDeviceRendersStoppedWithoutPlaying(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	s := newTestSession(nil, msgr)
	dev := &fakeDevice{name: "speaker"}

	if err := s.SelectDevice(context.Background(), dev); err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	if s.Device() != dev {
		t.Error("expected device to be set")
	}
	if dev.played != "" {
		t.Error("SelectDevice must not start playback")
	}
	if msgr.stoppedCalls != 1 {
		t.Errorf("expected stopped message render, got %d", msgr.stoppedCalls)
	}
}

func TestShowDeviceMenu(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	s := newTestSession(nil, msgr)
	devs := []device.Device{&fakeDevice{name: "a"}, &fakeDevice{name: "b"}}

	if err := s.ShowDeviceMenu(context.Background(), devs); err != nil {
		t.Fatalf("ShowDeviceMenu: %v", err)
	}
	if len(msgr.menuDevices) != 2 {
		t.Errorf("expected menu to carry 2 devices, got %d", len(msgr.menuDevices))
	}
}
