// Package streamserver is the ranged HTTP streaming endpoint: it turns an
// inbound Range request into a sequence of block-aligned fetches against a
// blocksource.Source, gated by sessiontable admission. Grounded 1:1 on
// castbot/http.py::Http, with route wiring and shutdown in the shape of
// while-maybe-streamer's cmd/server/server.go.
package streamserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"streamer/internal/blocksource"
	"streamer/internal/device"
	"streamer/internal/observability"
	"streamer/internal/rangeparser"
	"streamer/internal/sessiontable"
	"streamer/internal/token"
)

// Server serves the ranged /stream endpoint plus the handful of probe and
// bookkeeping routes spec.md §6 lists as the core's own HTTP surface.
// Device sub-routes (UPnP NOTIFY, web register/poll) are mounted
// separately via Registry.Routes(), same as the teacher mounts one
// mux.HandleFunc per collaborator-owned route in cmd/server/server.go.
type Server struct {
	source    blocksource.Source
	table     *sessiontable.Table
	blockSize int64
	static    http.Handler
	logger    *slog.Logger
}

// New builds a Server. static serves the bundled asset directory under
// /static/*; pass http.FileServer(http.FS(staticFS)) or nil to disable it.
func New(source blocksource.Source, table *sessiontable.Table, blockSize int64, static http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{source: source, table: table, blockSize: blockSize, static: static, logger: logger}
}

// Mux builds the ServeMux this Server answers on, plus any routes
// contributed by device finders (e.g. UPnP NOTIFY, web register/poll).
func (s *Server) Mux(extra []device.Route) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /stream/{message_id}/{token}", s.handleStream)
	mux.HandleFunc("HEAD /stream/{message_id}/{token}", s.handleStream)
	mux.HandleFunc("OPTIONS /stream/{message_id}/{token}", s.handleProbe)
	mux.HandleFunc("PUT /stream/{message_id}/{token}", s.handleProbe)
	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)

	if s.static != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", s.static))
	}

	for _, rt := range extra {
		pattern := rt.Method + " " + rt.Path
		mux.HandleFunc(pattern, rt.Handler)
	}

	return mux
}

// requestTransport adapts one HTTP request/response pair to
// sessiontable.Transport: it is "closing" once the request's context is
// done, the net/http analog of an asyncio.Transport's connection_lost.
type requestTransport struct {
	ctx context.Context
}

func (t requestTransport) Closing() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// handleProbe answers OPTIONS/PUT UPnP probes: 200 with CORS and DLNA
// headers only, no body, per spec.md §4.1.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("transferMode.dlna.org", "Streaming")
	w.Header().Set("TimeSeekRange.dlna.org", "npt=0.00-")
	w.WriteHeader(http.StatusOK)
}

// handleHealthcheck delegates to the BlockSource's own reachability check.
func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if err := s.source.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("gone"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}

// handleStream is the ranged byte-stream endpoint, grounded 1:1 on
// _stream_handler's admission check, range parse, header assembly, and
// block pump.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseUint(r.PathValue("message_id"), 10, 64)
	if err != nil {
		http.Error(w, "bad message id", http.StatusUnauthorized)
		return
	}

	tok, err := token.Parse(r.PathValue("token"))
	if err != nil {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}

	if !s.table.CheckToken(tok) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	info, err := s.source.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, blocksource.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}

	var result rangeparser.Result
	if header := r.Header.Get("Range"); header != "" {
		result, err = rangeparser.Parse(header, s.blockSize)
		if err != nil {
			http.Error(w, "malformed range", http.StatusBadRequest)
			return
		}
	}

	// Never occurs for a header that actually parsed, per spec.md §4.1;
	// kept as an explicit guard rather than assumed.
	if result.Skip > s.blockSize {
		http.Error(w, "internal range error", http.StatusInternalServerError)
		return
	}

	start := result.Aligned + result.Skip

	upper := info.Size
	if result.Cap != nil {
		if *result.Cap < info.Size {
			http.Error(w, "range cap below file size not supported", http.StatusBadRequest)
			return
		}
		upper = *result.Cap
	}

	if start > info.Size {
		http.Error(w, "range start past end of file", http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if start > 0 || upper != info.Size {
		status = http.StatusPartialContent
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, upper, info.Size))
	w.Header().Set("Accept-Ranges", "bytes")
	// Content-Length is the full file size even for a 206 partial
	// response — reproduces the source's literal (likely buggy) behavior;
	// see spec.md §9 Open Question 1.
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("transferMode.dlna.org", "Streaming")
	w.Header().Set("TimeSeekRange.dlna.org", "npt=0.00-")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, contentFilename(info, messageID)))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	s.pump(ctx, w, r, tok, messageID, info.Size, result.Aligned, result.Skip, upper)
}

func contentFilename(info blocksource.Info, messageID uint64) string {
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("file_%d", messageID)
	}
	return url.QueryEscape(name)
}

// flushWriter optionally flushes after every write, the Go analog of the
// source awaiting each StreamResponse.write call: a client blocked reading
// slowly should see bytes promptly rather than buffered behind net/http's
// own write buffering.
type flushWriter struct {
	http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.ResponseWriter.Write(p)
	if flusher, ok := f.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
	return n, err
}

// pump fetches and writes blocks from aligned until upper, exactly the
// algorithm in spec.md §4.1: refresh the idle timer, fetch one block,
// drop the leading skip bytes of the first block, truncate the tail past
// upper, and stop quietly on a closing transport or connection error
// rather than surfacing a 5xx once the response head is already written.
func (s *Server) pump(ctx context.Context, w http.ResponseWriter, r *http.Request, tok token.LocalToken, messageID uint64, size, aligned, skip, upper int64) {
	fw := flushWriter{w}
	transport := requestTransport{ctx: ctx}

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	offset := aligned
	skipLeft := skip

	for offset <= upper {
		s.table.FeedTimeout(ctx, tok, size)

		blockIndex := offset / s.blockSize
		block, err := s.source.GetBlock(ctx, messageID, blockIndex)
		if err != nil {
			if errors.Is(err, blocksource.ErrNotFound) {
				break
			}
			s.logger.Warn("stream pump: block fetch failed", "token", tok, "error", err)
			break
		}

		data := block
		writePos := offset
		if skipLeft > 0 {
			if skipLeft >= int64(len(data)) {
				data = nil
			} else {
				data = data[skipLeft:]
			}
			writePos = offset + skipLeft
			skipLeft = 0
		}

		if tail := writePos + int64(len(data)) - 1; tail > upper {
			keep := upper - writePos + 1
			if keep < 0 {
				keep = 0
			}
			if keep < int64(len(data)) {
				data = data[:keep]
			}
		}

		if transport.Closing() {
			break
		}

		s.table.FeedStreamTransport(tok, transport)

		if len(data) > 0 {
			if _, err := fw.Write(data); err != nil {
				if isTransportGone(err) {
					s.logger.Warn("stream pump: transport gone", "token", tok, "error", err)
				} else {
					s.logger.Warn("stream pump: write failed", "token", tok, "error", err)
				}
				break
			}
			s.table.FeedDownloadedBlock(tok, blockIndex)
		}

		offset += s.blockSize
	}
}

// isTransportGone reports whether err looks like a client-closed-
// connection condition (reset, broken pipe) that should be logged and
// swallowed rather than surfaced, per spec.md §7's TransportGone/
// BrokenPipe taxonomy entry.
func isTransportGone(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset")
}
