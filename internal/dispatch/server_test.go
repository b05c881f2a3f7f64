package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/runwayproxy/multipath/internal/config"
	"github.com/runwayproxy/multipath/internal/dnsresolve"
	"github.com/runwayproxy/multipath/internal/probe"
	"github.com/runwayproxy/multipath/internal/routing"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
	"github.com/runwayproxy/multipath/internal/validate"
)

// fakeUpstream answers every request on a freshly accepted connection with
// a fixed 200 response and then closes.
func fakeUpstream(t *testing.T, body string) (int, func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for {
					line, err := br.ReadString('\n')
					if err != nil || line == "\r\n" {
						break
					}
				}
				resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
				conn.Write([]byte(resp))
			}()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port
	return port, func() { ln.Close() }
}

func newTestServer(t *testing.T, runwayID string) (*Server, *tracker.Tracker) {
	cfg := config.Default()
	cfg.ProxyListenHost = "127.0.0.1"
	cfg.ProxyListenPort = 0
	cfg.NetworkTimeout = 2 * time.Second
	cfg.AccessibilityTimeout = time.Second

	reg := runway.New(&config.Config{
		Interfaces: []string{"auto"},
		DNSServers: []config.DNSServer{{Host: "8.8.8.8", Port: 53}},
	})
	tr := tracker.New(10, 0.5)
	eng := routing.New(tr, config.RoutingModeFirstAccessible)
	resolver := dnsresolve.New(nil)
	validator := validate.New()
	prober := probe.New(resolver, tr, nil)

	srv := New(cfg, reg, eng, tr, resolver, validator, prober, nil)
	return srv, tr
}

func TestHandleConnectionForwardsSuccessfully(t *testing.T) {
	upstreamPort, stopUpstream := fakeUpstream(t, "hello from upstream")
	defer stopUpstream()

	srv, tr := newTestServer(t, "direct_test")

	rw := &runway.Runway{
		ID:       "direct_test",
		IsDirect: true,
		DNSServer: &runway.DNSServer{Config: config.DNSServer{Host: "8.8.8.8", Port: 53}},
	}
	// The registry has no way to inject this runway, so it is passed to
	// handleConnectionWithRunways as the candidate set instead, and marked
	// accessible in the tracker beforehand so Select() picks it without
	// falling back to ProbeAll.
	target := "127.0.0.1"
	tr.Update(target, rw.ID, true, true, 0.01)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go srv.handleConnectionWithRunways(serverConn, []*runway.Runway{rw})

	req := fmt.Sprintf("GET / HTTP/1.1\r\nHost: 127.0.0.1:%d\r\n\r\n", upstreamPort)
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Errorf("status line = %q, want 200", statusLine)
	}
}

func TestHandleConnectionRejectsSocks5(t *testing.T) {
	srv, _ := newTestServer(t, "direct_test")

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go srv.handleConnection(serverConn)

	if _, err := clientConn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write socks5 handshake: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2)
	if _, err := clientConn.Read(buf); err != nil {
		t.Fatalf("read socks5 rejection: %v", err)
	}
	if buf[0] != 0x05 || buf[1] != 0xFF {
		t.Errorf("socks5 rejection = % x, want 05 ff", buf)
	}
}

func TestHandleConnectionRejectsConnect(t *testing.T) {
	srv, _ := newTestServer(t, "direct_test")

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go srv.handleConnection(serverConn)

	req := "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "501") {
		t.Errorf("status line = %q, want 501 Not Implemented", statusLine)
	}
}

func TestHandleConnectionReturns502WithNoAccessibleRunway(t *testing.T) {
	srv, _ := newTestServer(t, "direct_test")

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go srv.handleConnection(serverConn)

	req := "GET / HTTP/1.1\r\nHost: unknown-target.example:" + strconv.Itoa(80) + "\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "502") {
		t.Errorf("status line = %q, want 502 Bad Gateway", statusLine)
	}
}
