package session

import (
	"context"
	"testing"
	"time"

	"streamer/internal/sessiontable"
	"streamer/internal/token"
)

func newTestManager(t *testing.T, msgr *fakeMessenger) (*Manager, *sessiontable.Table) {
	t.Helper()

	var mgr *Manager
	table := sessiontable.New(50*time.Millisecond, 1024, func(ctx context.Context, tok token.LocalToken, pct float64) {
		mgr.HandleClosed(ctx, tok, pct)
	})

	mgr = NewManager(table, func(tok token.LocalToken) string {
		return "http://host/stream/" + tok.String()
	}, func(userID uint64) ControlMessenger {
		return msgr
	})
	return mgr, table
}

func TestNewSessionDefaultsToUserDevice(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	mgr, _ := newTestManager(t, msgr)

	dev := &fakeDevice{name: "tv"}
	mgr.userDefaults[7] = dev

	s, err := mgr.NewSession(7, 99, "clip.mp4", 4096, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Device() != dev {
		t.Error("expected new session to default to the user's last device")
	}
	if s.Token.MessageID != 99 {
		t.Errorf("Token.MessageID = %d, want 99", s.Token.MessageID)
	}
}

func TestSetUserDeviceUpdatesSessionAndDefault(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	mgr, _ := newTestManager(t, msgr)

	s, err := mgr.NewSession(7, 1, "clip.mp4", 4096, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	dev := &fakeDevice{name: "speaker"}
	if err := mgr.SetUserDevice(context.Background(), s, dev); err != nil {
		t.Fatalf("SetUserDevice: %v", err)
	}

	if s.Device() != dev {
		t.Error("expected session to adopt the newly selected device")
	}
	got, ok := mgr.UserDevice(7)
	if !ok || got != dev {
		t.Errorf("UserDevice(7) = %v, %v; want %v, true", got, ok, dev)
	}
}

func TestCloseRendersStoppedWithoutCallingOnClose(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	mgr, _ := newTestManager(t, msgr)

	dev := &fakeDevice{name: "tv"}
	s, err := mgr.NewSession(7, 1, "clip.mp4", 4096, dev)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := mgr.Close(context.Background(), s.Token); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dev.closed {
		t.Error("explicit Close must not call device.OnClose; on_close is reserved for idle-reclaim")
	}
	if msgr.stoppedCalls != 1 {
		t.Errorf("expected 1 stopped-message render, got %d", msgr.stoppedCalls)
	}
	if _, ok := mgr.Get(s.Token); ok {
		t.Error("expected session to be removed from the manager")
	}
}

func TestHandleClosedAnnotatesRemainingPercentage(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	mgr, _ := newTestManager(t, msgr)

	dev := &fakeDevice{name: "tv"}
	s, err := mgr.NewSession(7, 1, "clip.mp4", 4096, dev)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	mgr.HandleClosed(context.Background(), s.Token, 42.5)

	if !dev.closed {
		t.Error("expected device.OnClose to be called")
	}
	if msgr.lastRemaining == nil || *msgr.lastRemaining != 42.5 {
		t.Errorf("lastRemaining = %v, want 42.5", msgr.lastRemaining)
	}
	if _, ok := mgr.Get(s.Token); ok {
		t.Error("expected session to be removed after HandleClosed")
	}
}
