package upnp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	ssdpAddr = "239.255.255.250:1900"
)

// msearch sends an SSDP M-SEARCH for searchTarget on every multicast-capable
// interface and collects LOCATION URLs from unicast replies for up to
// timeout. Grounded on the teacher's raw net.ListenMulticastUDP/net.DialUDP
// SSDP mechanics (internal/discovery/ssdp.go's advertise-role sender),
// turned around into the client/search role and adapted to use
// golang.org/x/net/ipv4 for explicit per-interface outbound control, since
// a host with several NICs (wired + wifi + a docker bridge) needs the
// search datagram sent out each one to reach devices on any of them.
func msearch(ctx context.Context, searchTarget string, timeout time.Duration) ([]string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("upnp: open search socket: %w", err)
	}
	defer conn.Close()

	pconn := ipv4.NewPacketConn(conn)

	group, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, fmt.Errorf("upnp: resolve ssdp group: %w", err)
	}

	payload := buildMSearch(searchTarget, int(timeout.Seconds()))

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("upnp: list interfaces: %w", err)
	}

	sent := false
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if err := pconn.SetMulticastInterface(&iface); err != nil {
			continue
		}
		if _, err := pconn.WriteTo(payload, nil, group); err == nil {
			sent = true
		}
	}
	if !sent {
		return nil, fmt.Errorf("upnp: no usable multicast interface to send M-SEARCH on")
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	seen := make(map[string]struct{})
	var locations []string
	buf := make([]byte, 65535)

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			break
		}

		loc, ok := parseLocation(buf[:n])
		if !ok {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		locations = append(locations, loc)
	}

	return locations, nil
}

func buildMSearch(searchTarget string, mx int) []byte {
	if mx <= 0 {
		mx = 3
	}
	msg := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + ssdpAddr + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		fmt.Sprintf("MX: %d\r\n", mx) +
		"ST: " + searchTarget + "\r\n" +
		"\r\n"
	return []byte(msg)
}

func parseLocation(raw []byte) (string, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(string(raw))), nil)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	return loc, loc != ""
}
