// Package probe actively tests whether a target is reachable through a
// specific runway, independent of any live client request.
package probe

import (
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runwayproxy/multipath/internal/dnsresolve"
	"github.com/runwayproxy/multipath/internal/netutil"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
)

// probePort is the port accessibility probes connect to on the target
// itself. The probe only establishes a TCP connection (it never issues an
// HTTP request), so user-level and network-level success coincide, the
// same simplification the original accessibility test makes.
const probePort = 80

// Engine runs accessibility probes and records their outcomes in a
// Tracker.
type Engine struct {
	resolver *dnsresolve.Resolver
	tracker  *tracker.Tracker
	log      *logrus.Logger
}

// New returns a probe Engine that resolves targets with resolver and
// records outcomes in t.
func New(resolver *dnsresolve.Resolver, t *tracker.Tracker, log *logrus.Logger) *Engine {
	return &Engine{resolver: resolver, tracker: t, log: log}
}

// Probe tests whether target is reachable through rw within timeout,
// updating the tracker with the outcome before returning it.
func (e *Engine) Probe(target string, rw *runway.Runway, timeout time.Duration) (networkSuccess, userSuccess bool, rtt float64) {
	start := time.Now()

	ip, _, err := e.resolver.ResolveTarget(target, rw.DNSServer.Config, timeout)
	if err != nil || ip == "" {
		e.tracker.Update(target, rw.ID, false, false, 0)
		return false, false, 0
	}

	var ok bool
	if rw.UpstreamProxy != nil {
		ok = e.dialThroughProxy(rw, timeout)
	} else {
		ok = e.dialDirect(rw, ip, timeout)
	}

	rtt = time.Since(start).Seconds()
	e.tracker.Update(target, rw.ID, ok, ok, rtt)
	return ok, ok, rtt
}

func (e *Engine) dialDirect(rw *runway.Runway, ip string, timeout time.Duration) bool {
	conn, err := netutil.DialFromSource(net.JoinHostPort(ip, strconv.Itoa(probePort)), rw.SourceIP, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (e *Engine) dialThroughProxy(rw *runway.Runway, timeout time.Duration) bool {
	if rw.UpstreamProxy == nil || !rw.UpstreamProxy.Accessible {
		return false
	}
	if rw.UpstreamProxy.Config.Type != "http" {
		return false // only http upstreams are forwarded through
	}
	addr := net.JoinHostPort(rw.UpstreamProxy.Config.Host, strconv.Itoa(rw.UpstreamProxy.Config.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ProbeAll tests every candidate runway for target, direct runways first,
// stopping and returning the first one that proves user-accessible. Every
// outcome, including failures, is recorded in the tracker along the way,
// so a later routing decision benefits even from a ProbeAll that finds
// nothing.
func (e *Engine) ProbeAll(target string, runways []*runway.Runway, timeout time.Duration) *runway.Runway {
	var direct, proxied []*runway.Runway
	for _, rw := range runways {
		if rw.IsDirect {
			direct = append(direct, rw)
		} else {
			proxied = append(proxied, rw)
		}
	}

	prioritized := append(append([]*runway.Runway{}, direct...), proxied...)

	for _, rw := range prioritized {
		_, userSuccess, _ := e.Probe(target, rw, timeout)
		if userSuccess {
			return rw
		}
	}
	return nil
}

// Alternative returns an accessible runway for target other than
// currentID, or nil if none exists.
func (e *Engine) Alternative(target, currentID string, registry *runway.Registry) *runway.Runway {
	for _, id := range e.tracker.GetAccessibleRunways(target) {
		if id == currentID {
			continue
		}
		if rw := registry.Get(id); rw != nil {
			return rw
		}
	}
	return nil
}
