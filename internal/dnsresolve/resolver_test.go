package dnsresolve

import (
	"net"
	"testing"
	"time"

	"github.com/runwayproxy/multipath/internal/config"
)

func TestIsIP(t *testing.T) {
	cases := map[string]bool{
		"1.2.3.4":     true,
		"example.com": false,
		"256.0.0.1":   false,
		"::1":         false,
	}
	for in, want := range cases {
		if got := IsIP(in); got != want {
			t.Errorf("IsIP(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsPrivate(t *testing.T) {
	cases := map[string]bool{
		"10.1.2.3":     true,
		"172.16.0.1":   true,
		"172.31.255.1": true,
		"172.32.0.1":   false,
		"192.168.1.1":  true,
		"8.8.8.8":      false,
		"127.0.0.1":    true,
	}
	for in, want := range cases {
		if got := IsPrivate(in); got != want {
			t.Errorf("IsPrivate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildQueryRoundTripsName(t *testing.T) {
	q := buildQuery(0x1234, "example.com")
	if q[0] != 0x12 || q[1] != 0x34 {
		t.Fatalf("query id not encoded: % x", q[:2])
	}
	pos, err := decodeName(q, 12)
	if err != nil {
		t.Fatalf("decodeName: %v", err)
	}
	if pos != len(q)-4 {
		t.Errorf("pos = %d, want %d (right before QTYPE/QCLASS)", pos, len(q)-4)
	}
}

func TestDecodeNameWithCompressionPointer(t *testing.T) {
	// "a.com" at offset 12, followed by a pointer back to it at offset 19.
	msg := []byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // header stub
		1, 'a', 3, 'c', 'o', 'm', 0, // "a.com" at offset 12
		0xC0, 12, // pointer to offset 12
	}
	end, err := decodeName(msg, 19)
	if err != nil {
		t.Fatalf("decodeName: %v", err)
	}
	if end != 21 {
		t.Errorf("end = %d, want 21 (position right after the 2-byte pointer)", end)
	}
}

func TestParseResponseExtractsARecord(t *testing.T) {
	query := buildQuery(0xABCD, "example.com")

	resp := make([]byte, 0)
	resp = append(resp, query[:2]...)   // ID
	resp = append(resp, 0x81, 0x80)     // flags: response, no error
	resp = append(resp, 0x00, 0x01)     // QDCOUNT=1
	resp = append(resp, 0x00, 0x01)     // ANCOUNT=1
	resp = append(resp, 0x00, 0x00)     // NSCOUNT=0
	resp = append(resp, 0x00, 0x00)     // ARCOUNT=0
	resp = append(resp, query[12:]...)  // question section (name+qtype+qclass)

	resp = append(resp, 0xC0, 12) // answer name: pointer to question name
	resp = append(resp, 0x00, 0x01) // TYPE=A
	resp = append(resp, 0x00, 0x01) // CLASS=IN
	resp = append(resp, 0x00, 0x00, 0x01, 0x2C) // TTL=300
	resp = append(resp, 0x00, 0x04) // RDLENGTH=4
	resp = append(resp, 93, 184, 216, 34) // example.com's well-known A record

	ip, err := parseResponse(resp)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if ip != "93.184.216.34" {
		t.Errorf("ip = %q, want 93.184.216.34", ip)
	}
}

func TestParseResponseRejectsErrorRcode(t *testing.T) {
	resp := make([]byte, 12)
	resp[3] = 0x03 // NXDOMAIN
	if _, err := parseResponse(resp); err == nil {
		t.Fatal("expected error for NXDOMAIN rcode")
	}
}

func TestResolveTargetShortCircuitsLiterals(t *testing.T) {
	r := New(nil)
	ip, rtt, err := r.ResolveTarget("1.2.3.4", config.DNSServer{Host: "8.8.8.8", Port: 53}, time.Second)
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if ip != "1.2.3.4" || rtt != 0 {
		t.Errorf("ip=%q rtt=%v, want literal passthrough with zero latency", ip, rtt)
	}
}

// fakeDNSServer answers every query with a fixed A record, for exercising
// Resolve's wire path without reaching the network.
func fakeDNSServer(t *testing.T, ip string) (config.DNSServer, func()) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			query := buf[:n]
			resp := make([]byte, 0)
			resp = append(resp, query[0], query[1])
			resp = append(resp, 0x81, 0x80)
			resp = append(resp, 0x00, 0x01)
			resp = append(resp, 0x00, 0x01)
			resp = append(resp, 0x00, 0x00)
			resp = append(resp, 0x00, 0x00)
			resp = append(resp, query[12:]...)
			resp = append(resp, 0xC0, 12)
			resp = append(resp, 0x00, 0x01)
			resp = append(resp, 0x00, 0x01)
			resp = append(resp, 0x00, 0x00, 0x01, 0x2C)
			resp = append(resp, 0x00, 0x04)
			parsed := net.ParseIP(ip).To4()
			resp = append(resp, parsed...)
			_, _ = conn.WriteToUDP(resp, addr)
		}
	}()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return config.DNSServer{Host: "127.0.0.1", Port: addr.Port}, func() { conn.Close() }
}

func TestResolveQueriesAndCaches(t *testing.T) {
	dns, stop := fakeDNSServer(t, "5.6.7.8")
	defer stop()

	r := New(nil)
	ip, rtt, err := r.Resolve("example.com", dns, time.Second)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ip != "5.6.7.8" {
		t.Errorf("ip = %q, want 5.6.7.8", ip)
	}
	if rtt <= 0 {
		t.Errorf("rtt = %v, want a positive wire latency on a cache miss", rtt)
	}

	ip2, rtt2, err := r.Resolve("example.com", dns, time.Second)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if ip2 != "5.6.7.8" || rtt2 != 0 {
		t.Errorf("ip2=%q rtt2=%v, want cache hit with zero latency", ip2, rtt2)
	}
}
