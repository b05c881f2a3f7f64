package netutil

import (
	"net"
	"testing"
	"time"
)

func TestDialFromSourceConnectsWithoutSourceIP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := DialFromSource(ln.Addr().String(), "", time.Second)
	if err != nil {
		t.Fatalf("DialFromSource: %v", err)
	}
	conn.Close()
}

func TestDialFromSourceBindsLocalAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := DialFromSource(ln.Addr().String(), "127.0.0.1", time.Second)
	if err != nil {
		t.Fatalf("DialFromSource: %v", err)
	}
	defer conn.Close()

	localIP := conn.LocalAddr().(*net.TCPAddr).IP.String()
	if localIP != "127.0.0.1" {
		t.Errorf("local addr IP = %s, want 127.0.0.1", localIP)
	}
}

func TestDialFromSourceFailsOnUnreachableAddr(t *testing.T) {
	_, err := DialFromSource("127.0.0.1:1", "", 200*time.Millisecond)
	if err == nil {
		t.Error("expected an error dialing a closed low port")
	}
}
