// Package runway enumerates local network interfaces, configured DNS
// servers, and configured upstream proxies into concrete egress paths
// ("runways") and keeps a thread-safe registry of them.
package runway

import "github.com/runwayproxy/multipath/internal/config"

// State is the accessibility state a tracker assigns to a (target, runway)
// pair. It never describes the runway itself, only how a target fares
// through it.
type State int

const (
	StateUnknown State = iota
	StateAccessible
	StatePartiallyAccessible
	StateInaccessible
	StateTesting
)

func (s State) String() string {
	switch s {
	case StateAccessible:
		return "accessible"
	case StatePartiallyAccessible:
		return "partially_accessible"
	case StateInaccessible:
		return "inaccessible"
	case StateTesting:
		return "testing"
	default:
		return "unknown"
	}
}

// DNSServer is a runtime record of a configured DNS server.
type DNSServer struct {
	Config config.DNSServer
}

// UpstreamProxy is a runtime record of a configured upstream proxy.
type UpstreamProxy struct {
	Config          config.UpstreamProxy
	Accessible      bool
	LastSuccessTime int64
	FailureCount    uint32
}

// Runway is a concrete egress path: a source interface, a DNS server, and
// optionally one upstream HTTP proxy. Runways are owned exclusively by the
// Registry and shared elsewhere by their stable ID only; never hold a
// Runway reference across a discovery cycle.
type Runway struct {
	ID            string
	InterfaceName string
	SourceIP      string
	UpstreamProxy *UpstreamProxy // nil for a direct runway
	DNSServer     *DNSServer
	IsDirect      bool
}
