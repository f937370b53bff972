package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrShutdownIdle is sent on idleMonitor.StopCh when the inactivity limit
// fires.
var ErrShutdownIdle = errors.New("shutdown monitor: inactivity limit reached")

// idleMonitor implements middleware.ActivityNotifier: every request resets
// its timer, and if the timer fires first the monitor signals StopCh so
// the server shuts itself down. Grounded on the teacher's
// cmd/server/shutdown.go, trimmed to the one timer this binary actually
// needs — a LAN caster has no fixed end-of-day deadline to honor, only
// "stop once nobody's watching."
type idleMonitor struct {
	limit      time.Duration
	logger     *slog.Logger
	activityCh chan struct{}
	StopCh     chan error
}

func newIdleMonitor(limit time.Duration, logger *slog.Logger) *idleMonitor {
	return &idleMonitor{
		limit:      limit,
		logger:     logger,
		activityCh: make(chan struct{}, 1),
		StopCh:     make(chan error, 1),
	}
}

func (m *idleMonitor) NotifyActivity() {
	select {
	case m.activityCh <- struct{}{}:
	default:
	}
}

// Start runs the watchdog loop until ctx is done. A non-positive limit
// disables the watchdog entirely.
func (m *idleMonitor) Start(ctx context.Context) {
	if m.limit <= 0 {
		return
	}

	go func() {
		timer := time.NewTimer(m.limit)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-m.activityCh:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.limit)

			case <-timer.C:
				m.logger.Info("idle monitor: inactivity limit reached", "limit", m.limit)
				m.StopCh <- ErrShutdownIdle
				return
			}
		}
	}()
}
