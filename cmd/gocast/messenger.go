package main

import (
	"context"
	"log/slog"

	"streamer/internal/callback"
	"streamer/internal/device"
	"streamer/internal/session"
)

// logMessenger stands in for the (out-of-scope) chat-bot's inline control
// message surface: it logs what would be sent/edited instead of talking to
// a real chat API, but still generates the real callback wire format for
// each button via callback.Gen, so the payloads a production messenger
// would attach to its inline keyboard are exercised end to end.
type logMessenger struct {
	logger *slog.Logger
}

func newLogMessenger(logger *slog.Logger) *logMessenger {
	return &logMessenger{logger: logger}
}

func (m *logMessenger) SendPlaying(ctx context.Context, s *session.Session) error {
	m.logger.Info("control message: playing",
		"token", s.Token,
		"stop", callback.Gen(callback.PrefixControl, s.Token, "STOP"),
		"pause", callback.Gen(callback.PrefixControl, s.Token, "PAUSE"),
	)
	return nil
}

func (m *logMessenger) SendPaused(ctx context.Context, s *session.Session) error {
	m.logger.Info("control message: paused",
		"token", s.Token,
		"stop", callback.Gen(callback.PrefixControl, s.Token, "STOP"),
		"resume", callback.Gen(callback.PrefixControl, s.Token, "RESUME"),
	)
	return nil
}

func (m *logMessenger) SendStopped(ctx context.Context, s *session.Session, remainingPct *float64) error {
	fields := []any{
		"token", s.Token,
		"device", callback.Gen(callback.PrefixControl, s.Token, "DEVICE"),
		"play", callback.Gen(callback.PrefixControl, s.Token, "PLAY"),
	}
	if remainingPct != nil {
		fields = append(fields, "remaining_pct", *remainingPct)
		m.logger.Info("control message: streaming closed", fields...)
		return nil
	}
	m.logger.Info("control message: stopped", fields...)
	return nil
}

func (m *logMessenger) SendDeviceMenu(ctx context.Context, s *session.Session, devices []device.Device) error {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name()
	}
	m.logger.Info("control message: device menu",
		"token", s.Token,
		"devices", names,
		"refresh", callback.Gen(callback.PrefixDeviceMenu, s.Token, "REFRESH"),
	)
	return nil
}
