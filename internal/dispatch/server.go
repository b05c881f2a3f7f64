// Package dispatch accepts client connections, parses their HTTP/1.x
// requests, selects a runway to forward through, and relays the upstream
// response back.
package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runwayproxy/multipath/internal/config"
	"github.com/runwayproxy/multipath/internal/dnsresolve"
	"github.com/runwayproxy/multipath/internal/metrics"
	"github.com/runwayproxy/multipath/internal/probe"
	"github.com/runwayproxy/multipath/internal/routing"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
	"github.com/runwayproxy/multipath/internal/validate"
)

const maxRetries = 2

// Server accepts client connections on a single listening socket and
// dispatches each one through the multi-path routing pipeline.
type Server struct {
	cfg       *config.Config
	registry  *runway.Registry
	engine    *routing.Engine
	tracker   *tracker.Tracker
	resolver  *dnsresolve.Resolver
	validator *validate.Validator
	prober    *probe.Engine
	log       *logrus.Logger

	listener net.Listener
	conns    *connectionTable

	activeConnections  int64
	totalConnections   uint64
	totalBytesSent     uint64
	totalBytesReceived uint64

	// onComplete, if set, is called with every completed ConnectionInfo.
	// Used to feed a connection-log store without dispatch depending on it
	// directly.
	onComplete func(ConnectionInfo)

	// metrics, if set, records Prometheus observations for accepted
	// connections, byte counts, and probe outcomes.
	metrics *metrics.Metrics
}

// New returns a Server wired to its collaborators. Call Start to begin
// accepting connections.
func New(cfg *config.Config, registry *runway.Registry, engine *routing.Engine, t *tracker.Tracker, resolver *dnsresolve.Resolver, validator *validate.Validator, prober *probe.Engine, log *logrus.Logger) *Server {
	return &Server{
		cfg:       cfg,
		registry:  registry,
		engine:    engine,
		tracker:   t,
		resolver:  resolver,
		validator: validator,
		prober:    prober,
		log:       log,
		conns:     newConnectionTable(),
	}
}

// OnComplete registers a callback invoked after each connection finishes,
// with its final ConnectionInfo. Typically wired to a connection-log store.
func (s *Server) OnComplete(fn func(ConnectionInfo)) {
	s.onComplete = fn
}

// SetMetrics wires a Prometheus metrics recorder. Optional; nil-safe.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start binds the listening socket and begins accepting connections in a
// background goroutine.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.ProxyListenHost, strconv.Itoa(s.cfg.ProxyListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dispatch: listen on %s: %w", addr, err)
	}
	s.listener = ln

	go s.acceptLoop()
	return nil
}

// Stop closes the listening socket, which unblocks the accept loop.
// In-flight connections are not forcibly closed.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed: Stop() was called
		}
		go s.handleConnection(conn)
	}
}

// ActiveConnections returns the number of connections currently being
// handled.
func (s *Server) ActiveConnections() int64 { return atomic.LoadInt64(&s.activeConnections) }

// TotalConnections returns the lifetime count of accepted connections.
func (s *Server) TotalConnections() uint64 { return atomic.LoadUint64(&s.totalConnections) }

// TotalBytesSent returns the lifetime count of bytes sent to clients.
func (s *Server) TotalBytesSent() uint64 { return atomic.LoadUint64(&s.totalBytesSent) }

// TotalBytesReceived returns the lifetime count of request bytes received
// from clients.
func (s *Server) TotalBytesReceived() uint64 { return atomic.LoadUint64(&s.totalBytesReceived) }

// ActiveConnectionsInfo returns a snapshot of every currently tracked
// connection.
func (s *Server) ActiveConnectionsInfo() []ConnectionInfo { return s.conns.snapshot() }

func (s *Server) handleConnection(conn net.Conn) {
	s.handleConnectionWithRunways(conn, s.registry.List())
}

// handleConnectionWithRunways is handleConnection with the candidate
// runway set passed in explicitly, rather than read from the registry.
// Kept separate so routing decisions can be exercised against a fixed
// runway set independent of whatever interfaces happen to be discoverable
// on the host running the test.
func (s *Server) handleConnectionWithRunways(conn net.Conn, candidateRunways []*runway.Runway) {
	defer conn.Close()

	startTime := time.Now()
	clientIP, clientPort := splitHostPort(conn.RemoteAddr().String())
	id := uuid.NewString()

	atomic.AddInt64(&s.activeConnections, 1)
	atomic.AddUint64(&s.totalConnections, 1)
	defer atomic.AddInt64(&s.activeConnections, -1)
	if s.metrics != nil {
		s.metrics.RecordConnectionAccepted()
		defer s.metrics.RecordConnectionFinished()
	}

	info := &ConnectionInfo{
		ID:         id,
		ClientIP:   clientIP,
		ClientPort: clientPort,
		StartTime:  startTime.Unix(),
		Status:     "connecting",
	}
	s.conns.add(info)
	defer s.conns.remove(id)

	_ = conn.SetDeadline(time.Now().Add(s.cfg.NetworkTimeout))

	br := bufio.NewReader(conn)

	firstByte, err := br.Peek(1)
	if err != nil {
		s.finish(info, "error", 0, "connection closed before protocol detection")
		return
	}

	if firstByte[0] == 0x05 {
		// SOCKS5 (RFC 1928): version 0x05, method 0x05 0xFF = no acceptable methods.
		_, _ = conn.Write([]byte{0x05, 0xFF})
		s.finish(info, "error", 0, "SOCKS5 not supported")
		return
	}

	req, err := parseRequest(br)
	if err != nil {
		s.writeError(conn, 400)
		s.finish(info, "error", 0, "failed to parse HTTP request")
		return
	}

	if req.Method == "CONNECT" {
		s.writeError(conn, 501)
		s.finish(info, "error", 0, "CONNECT not implemented")
		return
	}

	targetHost, targetPort := extractTarget(req)
	if targetHost == "" {
		s.writeError(conn, 400)
		s.finish(info, "error", 0, "no target host specified")
		return
	}

	s.conns.update(id, func(ci *ConnectionInfo) {
		ci.TargetHost = targetHost
		ci.TargetPort = targetPort
		ci.Method = req.Method
		ci.Path = req.Path
		ci.Status = "active"
	})

	rw := s.engine.Select(targetHost, candidateRunways)
	if rw == nil {
		rw = s.prober.ProbeAll(targetHost, candidateRunways, s.cfg.AccessibilityTimeout)
	}
	if rw == nil {
		s.writeError(conn, 502)
		s.finish(info, "error", 502, "no accessible runway found")
		return
	}

	s.conns.update(id, func(ci *ConnectionInfo) { ci.RunwayID = rw.ID })

	for attempt := 0; attempt < maxRetries; attempt++ {
		attemptStart := time.Now()
		result := forward(s.resolver, s.validator, req, targetHost, targetPort, rw, s.cfg.NetworkTimeout)
		rtt := time.Since(attemptStart).Seconds()
		s.tracker.Update(targetHost, rw.ID, result.networkSuccess, result.userSuccess, rtt)
		if s.metrics != nil {
			s.metrics.RecordProbe(result.networkSuccess, result.userSuccess)
			if m, ok := s.tracker.GetMetrics(targetHost, rw.ID); ok {
				s.metrics.SetTargetRunwayState(targetHost, rw.ID, m.State)
			}
		}

		if result.networkSuccess {
			resp := &Response{
				Version:    "HTTP/1.1",
				StatusCode: result.status,
				StatusText: statusText(result.status),
				Headers:    result.headers,
				Body:       result.body,
			}
			if resp.Headers == nil {
				resp.Headers = map[string]string{}
			}
			resp.Headers["content-length"] = strconv.Itoa(len(resp.Body))

			data := buildResponse(resp)
			sent, _ := conn.Write(data)

			atomic.AddUint64(&s.totalBytesSent, uint64(sent))
			atomic.AddUint64(&s.totalBytesReceived, uint64(len(req.Body)))
			if s.metrics != nil {
				s.metrics.RecordBytes(uint64(sent), uint64(len(req.Body)))
			}

			s.conns.update(id, func(ci *ConnectionInfo) {
				ci.BytesSent = uint64(sent)
				ci.BytesReceived = uint64(len(req.Body))
				ci.StatusCode = result.status
			})
			s.finish(info, "completed", result.status, "")
			return
		}

		if attempt < maxRetries-1 {
			if alt := s.prober.Alternative(targetHost, rw.ID, s.registry); alt != nil {
				rw = alt
				s.conns.update(id, func(ci *ConnectionInfo) { ci.RunwayID = rw.ID })
				continue
			}
		}
	}

	s.writeError(conn, 502)
	s.finish(info, "error", 502, "all runway attempts failed")
}

func (s *Server) finish(info *ConnectionInfo, status string, statusCode int, errMsg string) {
	if s.log != nil {
		entry := s.log.WithFields(logrus.Fields{
			"conn_id":     info.ID,
			"client_ip":   info.ClientIP,
			"target_host": info.TargetHost,
			"runway_id":   info.RunwayID,
			"status":      status,
		})
		if errMsg != "" {
			entry.Warn(errMsg)
		} else {
			entry.Info("connection completed")
		}
	}
	if s.onComplete != nil {
		cp := *info
		cp.Status = status
		cp.StatusCode = statusCode
		cp.Error = errMsg
		cp.DurationSecs = time.Now().Unix() - cp.StartTime
		s.onComplete(cp)
	}
}

func (s *Server) writeError(conn net.Conn, statusCode int) {
	resp := &Response{
		Version:    "HTTP/1.1",
		StatusCode: statusCode,
		StatusText: statusText(statusCode),
		Headers:    map[string]string{"content-length": "0"},
	}
	_, _ = conn.Write(buildResponse(resp))
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// extractTarget derives the target host and port from a non-CONNECT
// request: the Host header if present, otherwise the absolute-URI form of
// the request path.
func extractTarget(req *Request) (host string, port int) {
	port = 80

	if hostHeader, ok := req.Headers["host"]; ok {
		h, p := splitHostHeader(hostHeader)
		return h, p
	}

	if strings.HasPrefix(req.Path, "http://") {
		rest := req.Path[len("http://"):]
		end := strings.IndexAny(rest, "/:")
		if end < 0 {
			return rest, port
		}
		return rest[:end], port
	}

	return "", port
}

func splitHostHeader(hostHeader string) (string, int) {
	if host, portStr, err := net.SplitHostPort(hostHeader); err == nil {
		if p, err := strconv.Atoi(portStr); err == nil {
			return host, p
		}
	}
	return hostHeader, 80
}
