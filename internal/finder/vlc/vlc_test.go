package vlc

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"streamer/internal/token"
)

// fakeVLCServer accepts one connection per call, optionally requiring a
// password, and records the command line it receives.
type fakeVLCServer struct {
	listener net.Listener
	password string
	commands chan string
}

func startFakeVLCServer(t *testing.T, password string) *fakeVLCServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &fakeVLCServer{listener: ln, password: password, commands: make(chan string, 10)}
	go srv.serve(t)
	return srv
}

func (s *fakeVLCServer) serve(t *testing.T) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(t, conn)
	}
}

func (s *fakeVLCServer) handle(t *testing.T, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if s.password != "" {
		conn.Write([]byte("VLC media player remote control interface\r\n> " + authMagic))
		line, err := reader.ReadString('\r')
		if err != nil {
			return
		}
		got := strings.TrimSuffix(line, eof)
		if got != s.password {
			conn.Write([]byte("Wrong password"))
			return
		}
		conn.Write([]byte(authOK))
	} else {
		conn.Write([]byte("VLC media player remote control interface\r\n> "))
	}

	line, err := reader.ReadString('\r')
	if err != nil {
		return
	}
	s.commands <- strings.TrimSuffix(line, eof)
}

func (s *fakeVLCServer) addr() (string, int) {
	tcpAddr := s.listener.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func (s *fakeVLCServer) close() { s.listener.Close() }

func TestPlayWithoutPasswordSendsAddThenPlay(t *testing.T) {
	t.Parallel()

	srv := startFakeVLCServer(t, "")
	defer srv.close()
	host, port := srv.addr()

	d := New("test-vlc", host, port, "")
	if err := d.Play(context.Background(), "http://example.com/movie.mp4", "movie", token.FromParts(1, 2)); err != nil {
		t.Fatalf("Play: %v", err)
	}

	select {
	case cmd := <-srv.commands:
		if !strings.HasPrefix(cmd, "add http://example.com/movie.mp4") {
			t.Errorf("first command = %q", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received add command")
	}

	select {
	case cmd := <-srv.commands:
		if cmd != "play" {
			t.Errorf("second command = %q, want play", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received play command")
	}
}

func TestStopWithCorrectPasswordSucceeds(t *testing.T) {
	t.Parallel()

	srv := startFakeVLCServer(t, "secret")
	defer srv.close()
	host, port := srv.addr()

	d := New("test-vlc", host, port, "secret")
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case cmd := <-srv.commands:
		if cmd != "stop" {
			t.Errorf("command = %q, want stop", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received stop command")
	}
}

func TestStopWithMissingPasswordFailsFast(t *testing.T) {
	t.Parallel()

	srv := startFakeVLCServer(t, "secret")
	defer srv.close()
	host, port := srv.addr()

	d := New("test-vlc", host, port, "")
	if err := d.Stop(context.Background()); err == nil {
		t.Fatal("expected error when telnet interface requires a password but none is configured")
	}
}

func TestFinderReturnsConfiguredDevice(t *testing.T) {
	t.Parallel()

	d := New("living room", "127.0.0.1", 4212, "")
	f := NewFinder(d, 5)

	devices, err := f.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(devices) != 1 || devices[0].Name() != "living room" {
		t.Errorf("Find() = %+v", devices)
	}
	if f.RequestTimeout() != 5 {
		t.Errorf("RequestTimeout() = %d, want 5", f.RequestTimeout())
	}
}
