// Package sessiontable tracks the live stream sessions the streaming server
// is actively serving: which tokens are admitted, which blocks have been
// delivered, which transports are attached, and the idle-reclamation timer
// for each. Grounded 1:1 on castbot/http.py's Http class fields.
package sessiontable

import (
	"context"
	"sync"
	"time"

	"streamer/internal/debounce"
	"streamer/internal/observability"
	"streamer/internal/token"
)

// Transport is an opaque handle to one open connection streaming a token's
// media; the table only needs to know whether it is still open. In the
// Python source this is an asyncio.Transport; in net/http the
// natural analog is the request's context, which is Done once the
// connection closes.
type Transport interface {
	Closing() bool
}

// Closer is called exactly once when a session's idle timer decides the
// session is done, with the fraction of blocks (0-100) that were never
// delivered. It is the seam sessiontable uses to hand control back to
// session.Manager without importing it directly.
type Closer func(ctx context.Context, tok token.LocalToken, remainingPct float64)

// Table is the admitted-session bookkeeping shared by every in-flight
// stream request. One Table is created per process and handed to
// streamserver.
type Table struct {
	requestGoneTimeout time.Duration
	blockSize          int64
	closer             Closer

	mu               sync.Mutex
	admitted         map[token.LocalToken]int64 // token -> media size, admission proof
	downloadedBlocks map[token.LocalToken]map[int64]struct{}
	transports       map[token.LocalToken]map[Transport]struct{}
	idleTimers       map[token.LocalToken]*debounce.Debounce
}

// New builds a Table. requestGoneTimeout is how long a session may go
// without any block delivery before it's considered abandoned; blockSize is
// used to compute the total block count for the remaining-percentage
// calculation; closer is invoked once per reclaimed session.
func New(requestGoneTimeout time.Duration, blockSize int64, closer Closer) *Table {
	return &Table{
		requestGoneTimeout: requestGoneTimeout,
		blockSize:          blockSize,
		closer:             closer,
		admitted:           make(map[token.LocalToken]int64),
		downloadedBlocks:   make(map[token.LocalToken]map[int64]struct{}),
		transports:         make(map[token.LocalToken]map[Transport]struct{}),
		idleTimers:         make(map[token.LocalToken]*debounce.Debounce),
	}
}

// Admit registers tok as a valid session for a media of the given size,
// making CheckToken succeed for it. Mirrors add_remote_token.
func (t *Table) Admit(tok token.LocalToken, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admitted[tok] = size
	observability.AdmittedSessions.Inc()
}

// CheckToken reports whether tok is currently an admitted session.
func (t *Table) CheckToken(tok token.LocalToken) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.admitted[tok]
	return ok
}

// FeedTimeout refreshes tok's idle-reclamation timer, arming one the first
// time it's called for a token (setdefault in the source). Called once per
// block delivered.
func (t *Table) FeedTimeout(ctx context.Context, tok token.LocalToken, size int64) {
	t.mu.Lock()
	d, ok := t.idleTimers[tok]
	if !ok {
		d = debounce.New(func(args ...any) {
			t.timeoutHandler(ctx, args[0].(token.LocalToken), args[1].(int64))
		}, t.requestGoneTimeout)
		t.idleTimers[tok] = d
	}
	t.mu.Unlock()

	d.UpdateArgs(tok, size)
}

// FeedDownloadedBlock records that blockIndex has been delivered for tok.
func (t *Table) FeedDownloadedBlock(tok token.LocalToken, blockIndex int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	blocks, ok := t.downloadedBlocks[tok]
	if !ok {
		blocks = make(map[int64]struct{})
		t.downloadedBlocks[tok] = blocks
	}
	blocks[blockIndex] = struct{}{}
}

// FeedStreamTransport records transport as actively streaming tok. A
// transport may be fed once per block delivered over its lifetime, so this
// is a set keyed by transport identity rather than a list — recording the
// same transport twice must not grow the bookkeeping.
func (t *Table) FeedStreamTransport(tok token.LocalToken, transport Transport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.transports[tok]
	if !ok {
		set = make(map[Transport]struct{})
		t.transports[tok] = set
	}
	set[transport] = struct{}{}
}

// GetStreamTransports returns the transports currently associated with tok.
func (t *Table) GetStreamTransports(tok token.LocalToken) []Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	transports := make([]Transport, 0, len(t.transports[tok]))
	for tr := range t.transports[tok] {
		transports = append(transports, tr)
	}
	return transports
}

// timeoutHandler is the idle-reclamation algorithm, grounded 1:1 on
// castbot/http.py::Http._timeout_handler: if every transport attached to
// tok has closed, compute the fraction of blocks never delivered, invoke
// the closer exactly once, and drop all bookkeeping for tok (the timer is
// not rearmed). Otherwise the timer is rearmed so a token with transports
// still open keeps getting rechecked at the same interval.
func (t *Table) timeoutHandler(ctx context.Context, tok token.LocalToken, size int64) {
	t.mu.Lock()

	allClosing := true
	for tr := range t.transports[tok] {
		if !tr.Closing() {
			allClosing = false
			break
		}
	}

	var (
		shouldClose  bool
		remainingPct float64
		timer        *debounce.Debounce
	)

	if allClosing {
		blocks := (size / t.blockSize) + 1

		var remainBlocks int64
		if downloaded, ok := t.downloadedBlocks[tok]; ok {
			remainBlocks = blocks - int64(len(downloaded))
			delete(t.downloadedBlocks, tok)
		} else {
			remainBlocks = blocks
		}

		if _, ok := t.admitted[tok]; ok {
			remainingPct = float64(remainBlocks) / float64(blocks) * 100
			shouldClose = true
			delete(t.admitted, tok)
			observability.AdmittedSessions.Dec()
		}

		if d, ok := t.idleTimers[tok]; ok {
			timer = d
			delete(t.idleTimers, tok)
		}
		delete(t.transports, tok)
	}

	t.mu.Unlock()

	if shouldClose && t.closer != nil {
		t.closer(ctx, tok, remainingPct)
	}

	if timer != nil {
		// Already removed from the map; nothing left to reschedule it
		// against, so it's simply allowed to be garbage collected.
		return
	}

	t.mu.Lock()
	d, ok := t.idleTimers[tok]
	t.mu.Unlock()
	if ok {
		d.Reschedule()
	}
}
