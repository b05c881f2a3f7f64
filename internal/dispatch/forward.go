package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/runwayproxy/multipath/internal/dnsresolve"
	"github.com/runwayproxy/multipath/internal/netutil"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/validate"
)

var hopByHopHeaders = map[string]bool{
	"host":             true,
	"connection":       true,
	"proxy-connection": true,
}

// forwardResult carries everything the dispatcher needs to both answer the
// client and record a tracker outcome for one upstream attempt.
type forwardResult struct {
	networkSuccess bool
	userSuccess    bool
	status         int
	headers        map[string]string
	body           []byte
}

// forward sends req to targetHost:targetPort over rw and returns the
// upstream's response. A proxy runway always speaks forward-proxy
// absolute-URI form to its configured upstream; only the "http" upstream
// proxy type is actually dialed; other configured types are accepted at
// config time but never forwarded through, and are treated as a network
// failure here.
func forward(resolver *dnsresolve.Resolver, validator *validate.Validator, req *Request, targetHost string, targetPort int, rw *runway.Runway, timeout time.Duration) forwardResult {
	fail := forwardResult{status: 502}

	if rw.UpstreamProxy != nil && rw.UpstreamProxy.Config.Type != "http" {
		return fail
	}

	var dialHost string
	var dialPort int
	if rw.UpstreamProxy != nil {
		dialHost = rw.UpstreamProxy.Config.Host
		dialPort = rw.UpstreamProxy.Config.Port
	} else {
		ip, _, err := resolver.ResolveTarget(targetHost, rw.DNSServer.Config, timeout)
		if err != nil || ip == "" {
			return fail
		}
		dialHost = ip
		dialPort = targetPort
	}

	sourceIP := ""
	if rw.UpstreamProxy == nil {
		sourceIP = rw.SourceIP
	}

	conn, err := netutil.DialFromSource(net.JoinHostPort(dialHost, strconv.Itoa(dialPort)), sourceIP, timeout)
	if err != nil {
		return fail
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	wireReq := buildUpstreamRequest(req, targetHost, targetPort, rw.UpstreamProxy != nil)
	if _, err := conn.Write(wireReq); err != nil {
		return fail
	}
	if len(req.Body) > 0 {
		if _, err := conn.Write(req.Body); err != nil {
			return fail
		}
	}

	br := bufio.NewReader(conn)
	version, status, _, err := parseResponseLine(br)
	_ = version
	if err != nil {
		return fail
	}

	headers, err := readHeaders(br)
	if err != nil {
		return fail
	}

	body, err := readBody(br, headers)
	if err != nil {
		return fail
	}

	networkSuccess, userSuccess := validator.Validate(status, body)
	return forwardResult{
		networkSuccess: networkSuccess,
		userSuccess:    userSuccess,
		status:         status,
		headers:        headers,
		body:           body,
	}
}

// buildUpstreamRequest rewrites req for the upstream hop: hop-by-hop
// headers are stripped and the Host header is rewritten to target. When
// viaProxy is set the request line uses absolute-URI form, as required by
// a forward proxy (RFC 7230 Section 5.3.2); a direct runway keeps
// origin-form.
func buildUpstreamRequest(req *Request, targetHost string, targetPort int, viaProxy bool) []byte {
	var sb strings.Builder

	path := req.Path
	if viaProxy && !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		path = fmt.Sprintf("http://%s%s", hostHeaderValue(targetHost, targetPort), req.Path)
	}

	fmt.Fprintf(&sb, "%s %s %s\r\n", req.Method, path, req.Version)

	for name, value := range req.Headers {
		if hopByHopHeaders[name] {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\r\n", name, value)
	}
	fmt.Fprintf(&sb, "Host: %s\r\n", hostHeaderValue(targetHost, targetPort))
	sb.WriteString("\r\n")

	return []byte(sb.String())
}

func hostHeaderValue(host string, port int) string {
	if port == 80 || port == 443 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
