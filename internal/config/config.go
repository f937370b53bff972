// Package config loads the streaming core's runtime settings: the HTTP
// listen address and block-pump tunables, the configured device list each
// finder is built from, and the bot-surface settings the core only stores
// on behalf of the (out-of-scope) command handler. Grounded on
// while-maybe-streamer's internal/config/config.go: a hand-rolled
// flag.FlagSet plus a typed Config struct, repeatable flags for list-
// shaped settings, and validateX functions composed by ParseArgs.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrDuplicateDevice is returned when two configured devices would resolve
// to the same finder instance (e.g. two "upnp" entries, or two "vlc"
// entries at the same host:port) — fatal at startup per spec.md's
// ConfigError.
var ErrDuplicateDevice = errors.New("config: duplicate device entry")

// DeviceType selects which finder package a DeviceEntry is built for.
type DeviceType string

const (
	DeviceUPnP       DeviceType = "upnp"
	DeviceChromecast DeviceType = "chromecast"
	DeviceVLC        DeviceType = "vlc"
	DeviceKodi       DeviceType = "kodi"
	DeviceWeb        DeviceType = "web"
)

// DeviceEntry is one devices[] list item. Fields beyond Type and
// RequestTimeout are finder-specific and left blank when unused: Host/Port
// for vlc and kodi's JSON-RPC endpoint, Password for vlc's telnet auth and
// the web finder's registration gate.
type DeviceEntry struct {
	Type           DeviceType
	RequestTimeout int // seconds

	Host     string
	Port     int
	Password string
}

// key identifies what makes two DeviceEntry values the "same" finder
// instance, used for ErrDuplicateDevice detection. upnp and chromecast are
// singleton finders (one per process, discovery-driven); vlc and kodi are
// one-per-config-entry, keyed by host:port; web is a singleton gated by
// password.
func (d DeviceEntry) key() string {
	switch d.Type {
	case DeviceVLC, DeviceKodi:
		return fmt.Sprintf("%s:%s:%d", d.Type, d.Host, d.Port)
	default:
		return string(d.Type)
	}
}

// HTTPConfig holds the streaming server's listen address and block-pump
// tunables (spec.md §6's http.* config keys).
type HTTPConfig struct {
	ListenHost         string
	ListenPort         int
	RequestGoneTimeout time.Duration
	BlockSize          int64
}

// BotConfig is stored but not interpreted by the core: Admins gates the
// (external) command-handler surface's admin-only actions. Carried here
// only because spec.md §6 enumerates it as a config key the core's config
// loader is responsible for parsing.
type BotConfig struct {
	Admins []int64
}

type LogConfig struct {
	Level slog.Level
}

// ShutdownConfig holds the idle-shutdown watchdog's inactivity limit: how
// long the server may go without serving a request before it stops itself.
// Zero disables the watchdog. Grounded on the teacher's
// config.ShutdownTimersConfig, trimmed to the one timer this binary uses.
type ShutdownConfig struct {
	InactiveLimit time.Duration
}

type Config struct {
	HTTP     HTTPConfig
	Devices  []DeviceEntry
	Bot      BotConfig
	Logger   LogConfig
	Shutdown ShutdownConfig

	// HealthcheckOnly and ServeFiles are CLI-only conveniences the thin
	// gocast binary reads off Config after ParseArgs: -healthcheck runs a
	// single BlockSource.HealthCheck and exits instead of starting the
	// server; -serve id=path registers a local file as a message id
	// against the dev-mode blocksource.FileSource, standing in for the
	// (out-of-scope) remote message-service client.
	HealthcheckOnly bool
	ServeFiles      []string
}

const (
	defaultListenHost         = "0.0.0.0"
	defaultListenPort         = 8080
	defaultRequestGoneTimeout = 900 * time.Second
	defaultBlockSize          = 1 << 20 // 1 MiB
)

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			ListenHost:         defaultListenHost,
			ListenPort:         defaultListenPort,
			RequestGoneTimeout: defaultRequestGoneTimeout,
			BlockSize:          defaultBlockSize,
		},
		Logger: LogConfig{Level: slog.LevelInfo},
	}
}

// devicesFlag accumulates repeated -devices flag occurrences, the same
// shape as the teacher's mountFlag for repeatable "one flag per list item"
// config entries.
type devicesFlag []DeviceEntry

func (d *devicesFlag) String() string {
	return "device entry: type:request_timeout[:key=value,...]"
}

// Set parses one "-devices" occurrence. Format:
//
//	type:request_timeout[:key=value,key=value,...]
//
// Recognized keys: host, port, password. Example:
//
//	vlc:5:host=192.168.1.20,port=4212,password=hunter2
//	upnp:5
//	web:900:password=letmein
func (d *devicesFlag) Set(value string) error {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("invalid device entry %q: expected type:request_timeout[:key=value,...]", value)
	}

	entry := DeviceEntry{Type: DeviceType(strings.ToLower(parts[0]))}

	timeout, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid request_timeout in device entry %q: %w", value, err)
	}
	entry.RequestTimeout = timeout

	if len(parts) == 3 {
		for kv := range strings.SplitSeq(parts[2], ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid key=value pair %q in device entry %q", kv, value)
			}
			switch k {
			case "host":
				entry.Host = v
			case "port":
				port, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid port in device entry %q: %w", value, err)
				}
				entry.Port = port
			case "password":
				entry.Password = v
			default:
				return fmt.Errorf("unknown device entry key %q in %q", k, value)
			}
		}
	}

	if err := validateDeviceType(entry.Type); err != nil {
		return err
	}

	*d = append(*d, entry)
	return nil
}

// adminsFlag parses a comma-separated list of int64 user ids for
// bot.admins.
type adminsFlag []int64

func (a *adminsFlag) String() string {
	ids := make([]string, len(*a))
	for i, id := range *a {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(ids, ",")
}

func (a *adminsFlag) Set(value string) error {
	for raw := range strings.SplitSeq(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bot admin id %q: %w", raw, err)
		}
		*a = append(*a, id)
	}
	return nil
}

func ParseArgs(cfg *Config, args []string, stderr io.Writer) error {
	defaultCfg := DefaultConfig()

	fs := flag.NewFlagSet("gocast", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [options]\n\n", fs.Name())
		fmt.Fprintln(fs.Output(), "Casts media stored on a remote message service to LAN playback devices.")
		fmt.Fprintln(fs.Output(), "\nOptions:")
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.HTTP.ListenHost, "http.listen-host", defaultCfg.HTTP.ListenHost, "address the streaming server binds to")
	fs.IntVar(&cfg.HTTP.ListenPort, "http.listen-port", defaultCfg.HTTP.ListenPort, "port the streaming server binds to")
	fs.DurationVar(&cfg.HTTP.RequestGoneTimeout, "http.request-gone-timeout", defaultCfg.HTTP.RequestGoneTimeout, "idle duration after which a session with no open transports is reclaimed")
	fs.DurationVar(&cfg.Shutdown.InactiveLimit, "shutdown.inactive-limit", defaultCfg.Shutdown.InactiveLimit, "stop the process after this long without serving a request (0 disables)")

	var blockSizeStr string
	fs.StringVar(&blockSizeStr, "http.block-size", "1MB", "block size fetched from the remote message store per pump iteration (e.g. 1MB, 512KB)")

	var logLevelStr string
	fs.StringVar(&logLevelStr, "logger.level", "info", "log level (debug, info, warn, error)")

	var devices devicesFlag
	fs.Var(&devices, "devices", "repeatable device entry: type:request_timeout[:key=value,...]")

	var admins adminsFlag
	fs.Var(&admins, "bot.admins", "comma-separated list of admin user ids")

	fs.BoolVar(&cfg.HealthcheckOnly, "healthcheck", false, "run a single health check against the block source and exit")
	var serveFiles stringListFlag
	fs.Var(&serveFiles, "serve", "register a local file as a message id for the dev-mode block source (repeatable: -serve 1=./movie.mp4)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	blockSize, err := validateBlockSize(blockSizeStr)
	if err != nil {
		return err
	}
	cfg.HTTP.BlockSize = blockSize

	level, err := validateLoggerLevel(logLevelStr)
	if err != nil {
		return err
	}
	cfg.Logger.Level = level

	if len(devices) > 0 {
		if err := validateDevices(devices); err != nil {
			return err
		}
		cfg.Devices = devices
	}

	cfg.Bot.Admins = admins
	cfg.ServeFiles = serveFiles

	return nil
}

// stringListFlag accumulates repeated flag occurrences into a plain
// string slice, used for -serve's repeatable "id=path" entries.
type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }
func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func validateDeviceType(t DeviceType) error {
	switch t {
	case DeviceUPnP, DeviceChromecast, DeviceVLC, DeviceKodi, DeviceWeb:
		return nil
	default:
		return fmt.Errorf("unknown device type %q: must be one of upnp, chromecast, vlc, kodi, web", t)
	}
}

// validateDevices rejects a config that would resolve two entries to the
// same finder instance, per spec.md §7's ConfigError.
func validateDevices(devices []DeviceEntry) error {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		k := d.key()
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDevice, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func validateBlockSize(s string) (int64, error) {
	size, err := parseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid http.block-size: %w", err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("http.block-size must be positive, got %d", size)
	}
	return size, nil
}

func validateLoggerLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// parseBytes parses a size string like "10MB", "512KB", or a bare byte
// count, grounded on the teacher's own parseBytes (same unit table, same
// float-then-multiply approach).
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	i := strings.IndexFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if i == -1 {
		return strconv.ParseInt(s, 10, 64)
	}

	numericStr := strings.TrimSpace(s[:i])
	unitStr := strings.TrimSpace(s[i:])

	val, err := strconv.ParseFloat(numericStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte string: %w", err)
	}

	var multiplier float64
	switch unitStr {
	case "B":
		multiplier = 1
	case "KB":
		multiplier = 1024
	case "MB":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown unit %q (expected B, KB, MB, GB)", unitStr)
	}

	return int64(val * multiplier), nil
}
