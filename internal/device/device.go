// Package device defines the polymorphic playback sink contract shared by
// every finder (UPnP, Chromecast, VLC, Kodi, web) and the errors a Session
// surfaces when a command can't be carried out.
package device

import (
	"context"
	"errors"
	"net/http"

	"streamer/internal/token"
)

// ErrActionNotSupported is returned by Session operations when the selected
// device doesn't implement the optional capability the operation needs.
var ErrActionNotSupported = errors.New("device: action not supported")

// Device is the capability set every playback sink must implement.
// Identity is the display name returned by Name; a device is only eligible
// for selection while it's present in a Registry's last scan.
type Device interface {
	// Stop asks the device to stop whatever it is playing. Implementations
	// should tolerate being called when nothing is playing.
	Stop(ctx context.Context) error
	// Play instructs the device to start playing url, with title as the
	// user-visible label and tok identifying the session for event
	// correlation (UPnP NOTIFY, on-close bookkeeping).
	Play(ctx context.Context, url, title string, tok token.LocalToken) error
	// Name returns the display name used for selection and equality.
	Name() string
	// OnClose is invoked exactly once when the owning session is torn down.
	OnClose(ctx context.Context, tok token.LocalToken)
}

// Pauser is an optional capability. Session.Pause type-asserts for it and
// returns ErrActionNotSupported when a Device doesn't implement it —
// the Go analog of the source's hasattr(device, "pause") check.
type Pauser interface {
	Pause(ctx context.Context) error
}

// Resumer is the optional capability symmetric to Pauser.
type Resumer interface {
	Resume(ctx context.Context) error
}

// Finder discovers or enumerates Devices of one transport kind.
type Finder interface {
	// Find returns the devices currently reachable. A timeout-bounded
	// caller is expected to cancel ctx; a resulting context error should
	// be treated by the caller as "no devices from this finder", not as
	// a hard failure.
	Find(ctx context.Context) ([]Device, error)
	// Routes returns any extra HTTP routes this finder needs mounted
	// (UPnP NOTIFY sink, web register/poll endpoints). Most finders
	// return nil.
	Routes() []Route
	// RequestTimeout bounds how long a single Find call is allowed to run.
	RequestTimeout() (seconds int)
}

// Route is one HTTP route a Finder asks the registry (and in turn
// streamserver) to mount alongside the stream handler itself.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}
