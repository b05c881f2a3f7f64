package runway

import (
	"fmt"
	"net"
	"sync"

	"github.com/runwayproxy/multipath/internal/config"
)

type interfaceInfo struct {
	name string
	ip   string
}

// Registry discovers local IPv4 interfaces and combines them with
// configured DNS servers and upstream proxies into the enumerated runway
// set. All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	interfaceSelectors []string
	dnsServers         []*DNSServer
	upstreamProxies    []*UpstreamProxy

	interfaces  map[string]interfaceInfo // name -> info, from the last discovery
	runways     map[string]*Runway
	runwayOrder []string // insertion order of runways map's keys, for List()
	idCounter   int
}

// New builds a Registry from configuration and performs an initial
// discovery, matching the original's constructor which calls
// discover_interfaces() eagerly.
func New(cfg *config.Config) *Registry {
	r := &Registry{
		interfaceSelectors: cfg.Interfaces,
		interfaces:         make(map[string]interfaceInfo),
		runways:            make(map[string]*Runway),
	}

	for _, d := range cfg.DNSServers {
		r.dnsServers = append(r.dnsServers, &DNSServer{Config: d})
	}
	for _, p := range cfg.UpstreamProxies {
		r.upstreamProxies = append(r.upstreamProxies, &UpstreamProxy{Config: p, Accessible: true})
	}

	r.discoverInterfaces()
	r.rebuildRunways()
	return r
}

func (r *Registry) discoverInterfaces() {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	current := make(map[string]interfaceInfo)
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			current[iface.Name] = interfaceInfo{name: iface.Name, ip: ip4.String()}
			break
		}
	}

	r.mu.Lock()
	r.interfaces = current
	r.mu.Unlock()
}

// rebuildRunways re-derives the full runway set from the current interface
// snapshot, configured DNS servers, and configured upstream proxies.
// Existing runway references remain valid: runways are only ever added,
// never mutated or removed mid-cycle. The registry tolerates a runway
// whose interface has since disappeared, consistent with discover()'s
// documented behavior.
func (r *Registry) rebuildRunways() {
	r.mu.Lock()
	defer r.mu.Unlock()

	useAuto := false
	for _, sel := range r.interfaceSelectors {
		if sel == "auto" {
			useAuto = true
			break
		}
	}

	var ifaceNames []string
	if useAuto {
		for name := range r.interfaces {
			ifaceNames = append(ifaceNames, name)
		}
	} else {
		for _, sel := range r.interfaceSelectors {
			if _, ok := r.interfaces[sel]; ok {
				ifaceNames = append(ifaceNames, sel)
			}
		}
	}

	for _, ifaceName := range ifaceNames {
		info := r.interfaces[ifaceName]
		for _, dns := range r.dnsServers {
			id := fmt.Sprintf("direct_%s_%s_%d", ifaceName, dns.Config.Host, r.idCounter)
			r.idCounter++
			if _, exists := r.runwayByComponents(ifaceName, dns, nil); exists {
				continue
			}
			r.runways[id] = &Runway{
				ID:            id,
				InterfaceName: ifaceName,
				SourceIP:      info.ip,
				DNSServer:     dns,
				IsDirect:      true,
			}
			r.runwayOrder = append(r.runwayOrder, id)
		}
	}

	for _, ifaceName := range ifaceNames {
		info := r.interfaces[ifaceName]
		for _, proxy := range r.upstreamProxies {
			for _, dns := range r.dnsServers {
				if _, exists := r.runwayByComponents(ifaceName, dns, proxy); exists {
					continue
				}
				id := fmt.Sprintf("proxy_%s_%s_%s_%s_%d", ifaceName, proxy.Config.Type, proxy.Config.Host, dns.Config.Host, r.idCounter)
				r.idCounter++
				r.runways[id] = &Runway{
					ID:            id,
					InterfaceName: ifaceName,
					SourceIP:      info.ip,
					UpstreamProxy: proxy,
					DNSServer:     dns,
					IsDirect:      false,
				}
				r.runwayOrder = append(r.runwayOrder, id)
			}
		}
	}
}

// runwayByComponents reports whether a runway already exists for the given
// (interface, dns, proxy) combination, so refresh() does not mint duplicate
// IDs for paths discovered on a previous cycle. Caller must hold r.mu.
func (r *Registry) runwayByComponents(ifaceName string, dns *DNSServer, proxy *UpstreamProxy) (*Runway, bool) {
	for _, rw := range r.runways {
		if rw.InterfaceName != ifaceName || rw.DNSServer != dns {
			continue
		}
		if proxy == nil && rw.UpstreamProxy == nil {
			return rw, true
		}
		if proxy != nil && rw.UpstreamProxy == proxy {
			return rw, true
		}
	}
	return nil, false
}

// Refresh re-enumerates interfaces and updates internal records. Previously
// returned Runway references remain valid.
func (r *Registry) Refresh() {
	r.discoverInterfaces()
	r.rebuildRunways()
}

// Get returns the runway with the given id, or nil if unknown.
func (r *Registry) Get(id string) *Runway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runways[id]
}

// List returns a snapshot sequence of all known runways, in the order
// they were first discovered. Callers such as the round-robin routing
// policy depend on a stable order across calls.
func (r *Registry) List() []*Runway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Runway, 0, len(r.runwayOrder))
	for _, id := range r.runwayOrder {
		if rw, ok := r.runways[id]; ok {
			out = append(out, rw)
		}
	}
	return out
}
