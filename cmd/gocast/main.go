// Command gocast runs the ranged streaming server, idle-timeout reclaimer,
// and device-discovery registry described by the streaming/session core.
// The chat-bot command surface, the remote message-service client, and
// the URL-downloader subprocess are external collaborators this binary
// doesn't implement; it wires a local-directory blocksource.Source in
// their place, grounded in the teacher's own "serve a directory" CLI
// shape (while-maybe-streamer/cmd/server/server.go).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamer/internal/blocksource"
	"streamer/internal/config"
	"streamer/internal/device"
	"streamer/internal/finder/chromecast"
	"streamer/internal/finder/kodi"
	"streamer/internal/finder/upnp"
	"streamer/internal/finder/vlc"
	"streamer/internal/finder/web"
	"streamer/internal/middleware"
	"streamer/internal/registry"
	"streamer/internal/session"
	"streamer/internal/sessiontable"
	"streamer/internal/streamserver"
	"streamer/internal/token"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run returns the process exit code, grounded on castbot/__main__.py's
// main/health_check split: 0 success, 1 health-check failure, 2 bad
// config.
func run(args []string, stderr *os.File) int {
	cfg := config.DefaultConfig()

	if err := config.ParseArgs(cfg, args, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Logger.Level})
	logger := slog.New(logHandler).With("app", "gocast")

	source := blocksource.NewFileSource(cfg.HTTP.BlockSize)
	if err := registerLocalFiles(source, cfg.ServeFiles); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	if cfg.HealthcheckOnly {
		if err := source.HealthCheck(context.Background()); err != nil {
			logger.Error("health check failed", "error", err)
			return 1
		}
		return 0
	}

	finders, err := buildFinders(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	if err := runServer(cfg, source, finders, logger); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

func registerLocalFiles(source *blocksource.FileSource, entries []string) error {
	for _, e := range entries {
		var id uint64
		var path string
		if _, err := fmt.Sscanf(e, "%d=%s", &id, &path); err != nil {
			return fmt.Errorf("invalid -serve entry %q: expected id=path", e)
		}
		source.Register(id, path)
	}
	return nil
}

// buildFinders constructs one finder per configured device entry,
// grounded on spec.md §6's devices[] config shape: each entry's Type
// selects the finder package, RequestTimeout bounds its Find calls, and
// finder-specific keys (Host/Port/Password) configure the concrete
// device.
func buildFinders(cfg *config.Config, logger *slog.Logger) ([]device.Finder, error) {
	var finders []device.Finder

	for _, d := range cfg.Devices {
		switch d.Type {
		case config.DeviceUPnP:
			finders = append(finders, upnp.NewFinder(d.RequestTimeout, cfg.HTTP.ListenHost, cfg.HTTP.ListenPort))

		case config.DeviceChromecast:
			finders = append(finders, chromecast.NewFinder(d.RequestTimeout))

		case config.DeviceVLC:
			if d.Host == "" {
				return nil, fmt.Errorf("vlc device entry missing host")
			}
			name := fmt.Sprintf("vlc @ %s:%d", d.Host, d.Port)
			finders = append(finders, vlc.NewFinder(vlc.New(name, d.Host, d.Port, d.Password), d.RequestTimeout))

		case config.DeviceKodi:
			if d.Host == "" {
				return nil, fmt.Errorf("kodi device entry missing host")
			}
			name := fmt.Sprintf("kodi @ %s:%d", d.Host, d.Port)
			rpcURL := fmt.Sprintf("http://%s:%d/jsonrpc", d.Host, d.Port)
			finders = append(finders, kodi.NewFinder(kodi.New(name, rpcURL), d.RequestTimeout))

		case config.DeviceWeb:
			finders = append(finders, web.NewFinder(d.Password, time.Duration(d.RequestTimeout)*time.Second))

		default:
			return nil, fmt.Errorf("unhandled device type %q", d.Type)
		}
	}

	logger.Info("configured finders", "count", len(finders))
	return finders, nil
}

func runServer(cfg *config.Config, source *blocksource.FileSource, finders []device.Finder, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mgr *session.Manager
	closer := func(ctx context.Context, tok token.LocalToken, remainingPct float64) {
		if mgr != nil {
			mgr.HandleClosed(ctx, tok, remainingPct)
		}
	}

	table := sessiontable.New(cfg.HTTP.RequestGoneTimeout, cfg.HTTP.BlockSize, closer)

	buildURI := func(tok token.LocalToken) string {
		return fmt.Sprintf("http://%s:%d/stream/%d/%s", cfg.HTTP.ListenHost, cfg.HTTP.ListenPort, tok.MessageID, tok.String())
	}
	messenger := newLogMessenger(logger)
	messengers := func(userID uint64) session.ControlMessenger { return messenger }
	mgr = session.NewManager(table, buildURI, messengers)
	_ = mgr // kept alive via the closer closure and future bot-surface wiring

	reg := registry.New(finders)
	reg.RefreshAll(ctx)

	srv := streamserver.New(source, table, cfg.HTTP.BlockSize, streamserver.StaticHandler(), logger)
	mux := srv.Mux(reg.Routes())
	mux.Handle("GET /metrics", promhttp.Handler())

	idle := newIdleMonitor(cfg.Shutdown.InactiveLimit, logger)
	idle.Start(ctx)

	limiter := middleware.NewIPRateLimiter(ctx, 20, 40, false)
	handler := middleware.Chain(mux,
		limiter.Middleware,
		middleware.WithObservability(),
		middleware.WithLogging(logger, idle),
	)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.ListenHost, cfg.HTTP.ListenPort)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server closed unexpectedly: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	case err := <-idle.StopCh:
		logger.Info("shutting down", "reason", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
