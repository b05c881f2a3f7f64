package runway

import (
	"strings"
	"testing"

	"github.com/runwayproxy/multipath/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Interfaces: []string{"auto"},
		DNSServers: []config.DNSServer{
			{Host: "8.8.8.8", Port: 53, Name: "google"},
		},
	}
}

func TestRegistryDiscoversAtLeastOneRunway(t *testing.T) {
	r := New(testConfig())
	runways := r.List()
	if len(runways) == 0 {
		t.Skip("no IPv4 interfaces available in this environment")
	}
	for _, rw := range runways {
		if !strings.HasPrefix(rw.ID, "direct_") {
			t.Errorf("expected a direct-only runway id with only DNS servers configured, got %q", rw.ID)
		}
		if !rw.IsDirect {
			t.Errorf("runway %q should be direct when no upstream proxies are configured", rw.ID)
		}
	}
}

func TestRegistryGetReturnsKnownRunway(t *testing.T) {
	r := New(testConfig())
	runways := r.List()
	if len(runways) == 0 {
		t.Skip("no IPv4 interfaces available in this environment")
	}
	want := runways[0]
	got := r.Get(want.ID)
	if got == nil || got.ID != want.ID {
		t.Fatalf("Get(%q) = %v, want runway with that id", want.ID, got)
	}
}

func TestRegistryGetUnknownReturnsNil(t *testing.T) {
	r := New(testConfig())
	if got := r.Get("does-not-exist"); got != nil {
		t.Fatalf("Get(unknown) = %v, want nil", got)
	}
}

func TestRegistryProxyRunwaysIncludeUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.UpstreamProxies = []config.UpstreamProxy{
		{Type: "http", Host: "10.0.0.5", Port: 8080},
	}
	r := New(cfg)
	runways := r.List()

	var sawDirect, sawProxy bool
	for _, rw := range runways {
		if rw.IsDirect {
			sawDirect = true
		} else {
			sawProxy = true
			if rw.UpstreamProxy == nil || rw.UpstreamProxy.Config.Host != "10.0.0.5" {
				t.Errorf("proxy runway %q missing expected upstream proxy", rw.ID)
			}
		}
	}
	if len(runways) == 0 {
		t.Skip("no IPv4 interfaces available in this environment")
	}
	if !sawDirect || !sawProxy {
		t.Errorf("expected both direct and proxy runways, direct=%v proxy=%v", sawDirect, sawProxy)
	}
}

func TestRegistryRefreshPreservesExistingIDs(t *testing.T) {
	r := New(testConfig())
	before := r.List()
	if len(before) == 0 {
		t.Skip("no IPv4 interfaces available in this environment")
	}
	ids := map[string]bool{}
	for _, rw := range before {
		ids[rw.ID] = true
	}

	r.Refresh()

	after := r.List()
	for _, rw := range after {
		if ids[rw.ID] {
			delete(ids, rw.ID)
		}
	}
	if len(ids) != 0 {
		t.Errorf("refresh dropped previously discovered runway ids: %v", ids)
	}
}
