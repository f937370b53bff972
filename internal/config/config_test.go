package config

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

func TestParseBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{"ok - unit MB", "10MB", 10 * 1024 * 1024, false},
		{"ok - case insensitive", "10mb", 10 * 1024 * 1024, false},
		{"ok - unit KB", "5kb", 5 * 1024, false},
		{"ok - unit GB", "1GB", 1 * 1024 * 1024 * 1024, false},
		{"ok - no unit", "1024", 1024, false},
		{"ok - handles space", "10 MB", 10 * 1024 * 1024, false},
		{"fail - bad unit", "10XiB", 0, true},
		{"fail - rubbish", "invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}

			if got != tt.expected {
				t.Errorf("parseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDevicesFlagParsesKnownKeys(t *testing.T) {
	t.Parallel()

	var devices devicesFlag
	if err := devices.Set("vlc:5:host=192.168.1.20,port=4212,password=hunter2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}

	got := devices[0]
	want := DeviceEntry{Type: DeviceVLC, RequestTimeout: 5, Host: "192.168.1.20", Port: 4212, Password: "hunter2"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDevicesFlagMinimalEntry(t *testing.T) {
	t.Parallel()

	var devices devicesFlag
	if err := devices.Set("upnp:5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if devices[0].Type != DeviceUPnP || devices[0].RequestTimeout != 5 {
		t.Errorf("got %+v", devices[0])
	}
}

func TestDevicesFlagRejectsUnknownType(t *testing.T) {
	t.Parallel()

	var devices devicesFlag
	if err := devices.Set("xbox:5"); err == nil {
		t.Fatalf("expected error for unknown device type")
	}
}

func TestDevicesFlagRejectsMalformedEntry(t *testing.T) {
	t.Parallel()

	var devices devicesFlag
	if err := devices.Set("upnp"); err == nil {
		t.Fatalf("expected error for missing request_timeout field")
	}
}

func TestValidateDevicesRejectsDuplicates(t *testing.T) {
	t.Parallel()

	devices := []DeviceEntry{
		{Type: DeviceUPnP, RequestTimeout: 5},
		{Type: DeviceUPnP, RequestTimeout: 10},
	}
	if err := validateDevices(devices); !errors.Is(err, ErrDuplicateDevice) {
		t.Fatalf("got %v, want ErrDuplicateDevice", err)
	}
}

func TestValidateDevicesAllowsDistinctVLCHosts(t *testing.T) {
	t.Parallel()

	devices := []DeviceEntry{
		{Type: DeviceVLC, Host: "10.0.0.1", Port: 4212},
		{Type: DeviceVLC, Host: "10.0.0.2", Port: 4212},
	}
	if err := validateDevices(devices); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdminsFlagParsesCommaList(t *testing.T) {
	t.Parallel()

	var admins adminsFlag
	if err := admins.Set("1,2, 3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := []int64{1, 2, 3}
	if len(admins) != len(want) {
		t.Fatalf("got %v, want %v", admins, want)
	}
	for i, v := range want {
		if admins[i] != v {
			t.Errorf("got %v, want %v", admins, want)
		}
	}
}

func TestParseArgsDefaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	var stderr bytes.Buffer
	if err := ParseArgs(cfg, nil, &stderr); err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.HTTP.BlockSize != defaultBlockSize {
		t.Errorf("got block size %d, want default %d", cfg.HTTP.BlockSize, defaultBlockSize)
	}
	if cfg.HTTP.ListenPort != defaultListenPort {
		t.Errorf("got listen port %d, want default %d", cfg.HTTP.ListenPort, defaultListenPort)
	}
}

func TestParseArgsRejectsDuplicateDevices(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	var stderr bytes.Buffer
	args := []string{"-devices", "upnp:5", "-devices", "upnp:10"}
	if err := ParseArgs(cfg, args, &stderr); !errors.Is(err, ErrDuplicateDevice) {
		t.Fatalf("got %v, want ErrDuplicateDevice", err)
	}
}

func TestParseArgsWiresDeviceList(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	var stderr bytes.Buffer
	args := []string{
		"-devices", "upnp:5",
		"-devices", "vlc:5:host=127.0.0.1,port=4212,password=x",
		"-bot.admins", "42",
	}
	if err := ParseArgs(cfg, args, &stderr); err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(cfg.Devices))
	}
	if len(cfg.Bot.Admins) != 1 || cfg.Bot.Admins[0] != 42 {
		t.Errorf("got admins %v, want [42]", cfg.Bot.Admins)
	}
}

func TestParseArgsWiresHealthcheckAndServeFlags(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	var stderr bytes.Buffer
	args := []string{
		"-healthcheck",
		"-serve", "1=/tmp/a.mp4",
		"-serve", "2=/tmp/b.mp4",
	}
	if err := ParseArgs(cfg, args, &stderr); err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !cfg.HealthcheckOnly {
		t.Error("HealthcheckOnly = false, want true")
	}
	if want := []string{"1=/tmp/a.mp4", "2=/tmp/b.mp4"}; !slices.Equal(cfg.ServeFiles, want) {
		t.Errorf("ServeFiles = %v, want %v", cfg.ServeFiles, want)
	}
}
