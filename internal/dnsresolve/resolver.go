// Package dnsresolve performs manual RFC 1035 DNS resolution over UDP
// against the configured DNS servers, with a TTL-bounded cache and a fast
// path for IPv4 literals and RFC 1918 private addresses.
package dnsresolve

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runwayproxy/multipath/internal/config"
)

const cacheTTL = 300 * time.Second

type cacheEntry struct {
	ip        string
	expiresAt time.Time
}

// Resolver resolves hostnames to IPv4 addresses using the DNS server passed
// to each lookup, caching answers for cacheTTL. One Resolver is shared
// across all runways; its cache is keyed by name alone, so a cached answer
// is returned whichever DNS server a later lookup names.
type Resolver struct {
	log *logrus.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New returns a Resolver ready for concurrent use.
func New(log *logrus.Logger) *Resolver {
	return &Resolver{
		log:   log,
		cache: make(map[string]cacheEntry),
	}
}

// IsIP reports whether s is already a dotted-decimal IPv4 literal.
func IsIP(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// IsPrivate reports whether ip (an IPv4 dotted-decimal string) falls in one
// of the RFC 1918 private ranges or loopback.
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return false
	}
	switch {
	case v4[0] == 10:
		return true
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return true
	case v4[0] == 192 && v4[1] == 168:
		return true
	case v4[0] == 127:
		return true
	}
	return false
}

// ResolveTarget is the shared fast-path helper used by both the dispatcher
// and the probe engine: if host is already an IPv4 literal it is returned
// unresolved and with zero latency; otherwise it is looked up against dns.
// This avoids duplicating the literal-IP short-circuit separately in the
// request-forwarding path and the accessibility probe.
func (r *Resolver) ResolveTarget(host string, dns config.DNSServer, timeout time.Duration) (ip string, rtt float64, err error) {
	if IsIP(host) {
		return host, 0, nil
	}
	return r.Resolve(host, dns, timeout)
}

// Resolve looks up name against the given DNS server, consulting and
// populating the cache. rtt is the wall-clock seconds spent on the wire;
// it is zero for a cache hit.
func (r *Resolver) Resolve(name string, dns config.DNSServer, timeout time.Duration) (ip string, rtt float64, err error) {
	if cached, ok := r.lookupCache(name); ok {
		return cached, 0, nil
	}

	start := time.Now()
	ip, err = r.query(name, dns, timeout)
	rtt = time.Since(start).Seconds()
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithField("name", name).Debug("dns resolution failed")
		}
		return "", rtt, err
	}

	r.storeCache(name, ip)
	return ip, rtt, nil
}

func (r *Resolver) lookupCache(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[name]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.ip, true
}

func (r *Resolver) storeCache(name, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = cacheEntry{ip: ip, expiresAt: time.Now().Add(cacheTTL)}
}

func (r *Resolver) query(name string, dns config.DNSServer, timeout time.Duration) (string, error) {
	addr := net.JoinHostPort(dns.Host, fmt.Sprintf("%d", dns.Port))
	conn, err := net.DialTimeout("udp", addr, timeout)
	if err != nil {
		return "", fmt.Errorf("dns: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("dns: set deadline: %w", err)
	}

	id := uint16(time.Now().UnixNano() & 0xFFFF)
	query := buildQuery(id, name)
	if _, err := conn.Write(query); err != nil {
		return "", fmt.Errorf("dns: write query: %w", err)
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("dns: read response: %w", err)
	}

	resp := buf[:n]
	if len(resp) < 2 || (uint16(resp[0])<<8|uint16(resp[1])) != id {
		return "", fmt.Errorf("dns: response id mismatch")
	}

	return parseResponse(resp)
}
