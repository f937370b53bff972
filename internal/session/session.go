// Package session implements the per-stream control state machine: a
// Session ties one admitted token to the device currently playing it and
// drives the inline control message shown to the user. Grounded 1:1 on
// castbot/video.py's PlayingVideo/PlayingVideos.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"streamer/internal/device"
	"streamer/internal/token"
)

// ErrNoDevice is returned by Play/Stop/Pause/Resume when the session has no
// device selected yet.
var ErrNoDevice = errors.New("session: no device selected")

// ControlMessenger renders the inline control message shown alongside a
// cast, an external bot-collaborator concern per the Session's own spec
// (message send/edit semantics, including the edit-if-exists-else-reply-new
// rule and silently absorbing a "message not modified" edit, live outside
// this package).
type ControlMessenger interface {
	// SendPlaying renders the playing-state message ([STOP][PAUSE]).
	SendPlaying(ctx context.Context, s *Session) error
	// SendPaused renders the paused-state message ([STOP][RESUME]).
	SendPaused(ctx context.Context, s *Session) error
	// SendStopped renders the stopped-state message ([DEVICE][PLAY]). If
	// remainingPct is non-nil, the message additionally reports the
	// fraction of the stream that was never delivered.
	SendStopped(ctx context.Context, s *Session, remainingPct *float64) error
	// SendDeviceMenu renders the device-selection menu: one button per
	// device plus a REFRESH button.
	SendDeviceMenu(ctx context.Context, s *Session, devices []device.Device) error
}

// URIBuilder returns the URL a device should be told to play for tok. It
// does not admit tok; Manager.NewSession admits it in the session table.
type URIBuilder func(tok token.LocalToken) string

// Session is one user's active or idle cast: a token, the device it's
// bound to (if any), and the messenger used to keep the control message in
// sync with playback state.
type Session struct {
	Token     token.LocalToken
	UserID    uint64
	Title     string
	uri       string

	mu        sync.Mutex
	dev       device.Device
	paused    bool

	messenger ControlMessenger
}

// Device returns the currently selected device, or nil if none is set.
func (s *Session) Device() device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

// SelectDevice assigns dev as the session's playback target and re-renders
// the control message in the stopped state, matching select_device's
// behavior of not auto-starting playback on selection.
func (s *Session) SelectDevice(ctx context.Context, dev device.Device) error {
	s.mu.Lock()
	s.dev = dev
	s.mu.Unlock()
	return s.messenger.SendStopped(ctx, s, nil)
}

// Play starts (or restarts) playback on the selected device: any current
// playback is stopped first, then Play is issued against the fresh URL,
// and the control message is updated to the playing state.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev == nil {
		return ErrNoDevice
	}

	if err := dev.Stop(ctx); err != nil {
		slog.Warn("pre-play stop failed", "token", s.Token, "error", err)
	}
	if err := dev.Play(ctx, s.uri, s.Title, s.Token); err != nil {
		return fmt.Errorf("session: play: %w", err)
	}

	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	return s.messenger.SendPlaying(ctx, s)
}

// Stop asks the device to stop, always updates the control message to the
// stopped state, and only then reports ErrNoDevice if no device had been
// selected — the ordering castbot's stop() uses, so the user always sees
// the stopped message even when there was nothing to stop.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev != nil {
		if err := dev.Stop(ctx); err != nil {
			slog.Warn("stop failed", "token", s.Token, "error", err)
		}
	}

	if err := s.messenger.SendStopped(ctx, s, nil); err != nil {
		return err
	}

	if dev == nil {
		return ErrNoDevice
	}
	return nil
}

// Pause requires the selected device to implement device.Pauser; returns
// device.ErrActionNotSupported otherwise.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev == nil {
		return ErrNoDevice
	}
	pauser, ok := dev.(device.Pauser)
	if !ok {
		return device.ErrActionNotSupported
	}
	if err := pauser.Pause(ctx); err != nil {
		return fmt.Errorf("session: pause: %w", err)
	}

	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	return s.messenger.SendPaused(ctx, s)
}

// Resume requires the selected device to implement device.Resumer; returns
// device.ErrActionNotSupported otherwise.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()

	if dev == nil {
		return ErrNoDevice
	}
	resumer, ok := dev.(device.Resumer)
	if !ok {
		return device.ErrActionNotSupported
	}
	if err := resumer.Resume(ctx); err != nil {
		return fmt.Errorf("session: resume: %w", err)
	}

	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	return s.messenger.SendPlaying(ctx, s)
}

// ShowDeviceMenu renders the device-selection menu over the session's
// control message, the only path by which a user ever reaches SelectDevice.
func (s *Session) ShowDeviceMenu(ctx context.Context, devices []device.Device) error {
	return s.messenger.SendDeviceMenu(ctx, s, devices)
}
