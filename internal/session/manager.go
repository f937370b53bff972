package session

import (
	"context"
	"sync"

	"streamer/internal/device"
	"streamer/internal/sessiontable"
	"streamer/internal/token"
)

// Manager owns every live Session, keyed by token, and the per-user
// default-device map used when a new cast is started without an explicit
// selection. Grounded 1:1 on castbot/video.py::PlayingVideos.
type Manager struct {
	table      *sessiontable.Table
	buildURI   URIBuilder
	messengers func(userID uint64) ControlMessenger

	mu           sync.Mutex
	sessions     map[token.LocalToken]*Session
	userDefaults map[uint64]device.Device
}

// NewManager builds a Manager. table is the shared admitted-session table
// streamserver also reads from; buildURI mints the stream URL for a new
// session's token; messengers resolves the ControlMessenger to use for a
// given user's chat.
func NewManager(table *sessiontable.Table, buildURI URIBuilder, messengers func(userID uint64) ControlMessenger) *Manager {
	return &Manager{
		table:        table,
		buildURI:     buildURI,
		messengers:   messengers,
		sessions:     make(map[token.LocalToken]*Session),
		userDefaults: make(map[uint64]device.Device),
	}
}

// NewSession creates a session for a freshly surfaced media message. If dev
// is nil, the user's last-selected device is used instead, matching
// new_video's default-to-get_user_device behavior.
func (m *Manager) NewSession(userID uint64, messageID uint64, title string, size int64, dev device.Device) (*Session, error) {
	tok, err := token.New(messageID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if dev == nil {
		dev = m.userDefaults[userID]
	}
	m.mu.Unlock()

	m.table.Admit(tok, size)

	s := &Session{
		Token:     tok,
		UserID:    userID,
		Title:     title,
		uri:       m.buildURI(tok),
		dev:       dev,
		messenger: m.messengers(userID),
	}

	m.mu.Lock()
	m.sessions[tok] = s
	m.mu.Unlock()

	return s, nil
}

// Reconstruct rebuilds a Session for a token that is still admitted in the
// session table but whose in-memory Session was lost, e.g. after a process
// restart, from the device name last embedded in the control message.
// Grounded on reconstruct_playing_video's "on device X" regex recovery.
func (m *Manager) Reconstruct(tok token.LocalToken, userID uint64, title string, dev device.Device) *Session {
	s := &Session{
		Token:     tok,
		UserID:    userID,
		Title:     title,
		uri:       m.buildURI(tok),
		dev:       dev,
		messenger: m.messengers(userID),
	}

	m.mu.Lock()
	m.sessions[tok] = s
	m.mu.Unlock()

	return s
}

// Get returns the live Session for tok, if any.
func (m *Manager) Get(tok token.LocalToken) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tok]
	return s, ok
}

// UserDevice returns the device a user most recently selected.
func (m *Manager) UserDevice(userID uint64) (device.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.userDefaults[userID]
	return d, ok
}

// SetUserDevice records dev as userID's default for future sessions, and
// updates the given session (if any) to use it, re-rendering its control
// message in the stopped state — select_device's behavior.
func (m *Manager) SetUserDevice(ctx context.Context, s *Session, dev device.Device) error {
	m.mu.Lock()
	m.userDefaults[s.UserID] = dev
	m.mu.Unlock()

	return s.SelectDevice(ctx, dev)
}

// Close ends a session explicitly (the user stopped it, not the idle
// timer): renders the stopped-control message and drops the session from
// the manager. It does not call the device's on-close hook — on_close is
// reserved for the idle-reclaim path (HandleClosed below), the same
// explicit-Stop-never-fires-on_close rule Session.Stop itself follows.
func (m *Manager) Close(ctx context.Context, tok token.LocalToken) error {
	m.mu.Lock()
	s, ok := m.sessions[tok]
	delete(m.sessions, tok)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := s.messenger.SendStopped(ctx, s, nil)

	return err
}

// HandleClosed is the sessiontable.Closer invoked when the idle-
// reclamation timer decides a session is done: it renders the stopped
// message annotated with the fraction of the stream never delivered,
// removes the session, and only then calls the device's on-close hook —
// the ordering castbot's handle_closed uses, distinct from the explicit
// Close path above.
func (m *Manager) HandleClosed(ctx context.Context, tok token.LocalToken, remainingPct float64) {
	m.mu.Lock()
	s, ok := m.sessions[tok]
	delete(m.sessions, tok)
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := s.messenger.SendStopped(ctx, s, &remainingPct); err != nil {
		// Nothing further to do with a failed message edit; the session is
		// torn down either way.
		_ = err
	}

	if dev := s.Device(); dev != nil {
		dev.OnClose(ctx, tok)
	}
}
