// Package core wires together every collaborator that makes up a running
// multipathproxy instance (runway discovery, accessibility tracking,
// routing, DNS resolution, HTTP dispatch, health probing, connection
// logging, and metrics) and exposes the lifecycle and read-only snapshot
// API the CLI and TUI consume.
package core

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runwayproxy/multipath/internal/config"
	"github.com/runwayproxy/multipath/internal/connlog"
	"github.com/runwayproxy/multipath/internal/dispatch"
	"github.com/runwayproxy/multipath/internal/dnsresolve"
	"github.com/runwayproxy/multipath/internal/health"
	"github.com/runwayproxy/multipath/internal/logging"
	"github.com/runwayproxy/multipath/internal/metrics"
	"github.com/runwayproxy/multipath/internal/probe"
	"github.com/runwayproxy/multipath/internal/routing"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
	"github.com/runwayproxy/multipath/internal/validate"
)

// Core owns the full proxy pipeline and its lifecycle.
type Core struct {
	cfg *config.Config
	log *logrus.Logger

	registry  *runway.Registry
	tracker   *tracker.Tracker
	engine    *routing.Engine
	resolver  *dnsresolve.Resolver
	validator *validate.Validator
	prober    *probe.Engine
	monitor   *health.Monitor
	server    *dispatch.Server
	store     *connlog.Store
	metrics   *metrics.Metrics

	pidFile    string
	startTime  time.Time
	running    bool
	mu         sync.RWMutex
	statusStop chan struct{}
	statusDone chan struct{}
}

// New builds every collaborator from cfg but does not start anything.
func New(cfg *config.Config) (*Core, error) {
	log := logging.Init(cfg.LogLevel, cfg.LogFile)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("core: create data dir: %w", err)
	}

	store, err := connlog.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("core: open connection log: %w", err)
	}

	registry := runway.New(cfg)
	t := tracker.New(cfg.SuccessRateWindow, cfg.SuccessRateThreshold)
	engine := routing.New(t, cfg.RoutingMode)
	resolver := dnsresolve.New(log)
	validator := validate.New()
	prober := probe.New(resolver, t, log)
	monitor := health.New(registry, t, prober, cfg.HealthCheckInterval, log)
	monitor.OnProbe(store.LogHealthProbe)
	m := metrics.New()

	server := dispatch.New(cfg, registry, engine, t, resolver, validator, prober, log)
	server.SetMetrics(m)
	server.OnComplete(store.LogConnection)

	return &Core{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		tracker:   t,
		engine:    engine,
		resolver:  resolver,
		validator: validator,
		prober:    prober,
		monitor:   monitor,
		server:    server,
		store:     store,
		metrics:   m,
		pidFile:   filepath.Join(cfg.DataDir, "multipathproxy.pid"),
	}, nil
}

// Start brings up the listening socket and background health monitor, and
// writes a PID file so `status`/`stop` can find this process.
func (c *Core) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("core: already running")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	if err := c.writePIDFile(); err != nil {
		return fmt.Errorf("core: write pid file: %w", err)
	}

	c.registry.Refresh()
	c.monitor.Start()

	if err := c.server.Start(); err != nil {
		c.monitor.Stop()
		return fmt.Errorf("core: start dispatch server: %w", err)
	}

	c.statusStop = make(chan struct{})
	c.statusDone = make(chan struct{})
	go c.writeStatusFileLoop()

	c.log.WithField("pid", os.Getpid()).Info("multipathproxy core started")
	return nil
}

// writeStatusFileLoop periodically refreshes status.json so `status` can
// read it without talking to the running process directly.
func (c *Core) writeStatusFileLoop() {
	defer close(c.statusDone)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	_ = WriteStatusFile(c.cfg.DataDir, c.GetStatus())
	for {
		select {
		case <-c.statusStop:
			return
		case <-ticker.C:
			if err := WriteStatusFile(c.cfg.DataDir, c.GetStatus()); err != nil {
				c.log.WithError(err).Warn("failed to write status file")
			}
		}
	}
}

// Stop shuts down the dispatch server and health monitor and closes the
// connection log.
func (c *Core) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	close(c.statusStop)
	<-c.statusDone

	_ = c.server.Stop()
	c.monitor.Stop()
	_ = c.store.Close()
	_ = os.Remove(c.pidFile)

	c.log.Info("multipathproxy core stopped")
	return nil
}

// RunForeground starts the core and blocks until SIGINT/SIGTERM.
func (c *Core) RunForeground() error {
	if err := c.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return c.Stop()
}

func (c *Core) writePIDFile() error {
	return os.WriteFile(c.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (c *Core) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Status is a lifecycle snapshot, suitable for serializing to status.json.
type Status struct {
	Running            bool
	PID                int
	StartTime          time.Time
	Uptime             time.Duration
	ActiveConnections  int64
	TotalConnections   uint64
	TotalBytesSent     uint64
	TotalBytesReceived uint64
	RoutingMode        config.RoutingMode
}

// GetStatus returns a point-in-time lifecycle and counter snapshot.
func (c *Core) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		Running:            c.running,
		PID:                os.Getpid(),
		StartTime:          c.startTime,
		Uptime:             time.Since(c.startTime),
		ActiveConnections:  c.server.ActiveConnections(),
		TotalConnections:   c.server.TotalConnections(),
		TotalBytesSent:     c.server.TotalBytesSent(),
		TotalBytesReceived: c.server.TotalBytesReceived(),
		RoutingMode:        c.engine.GetMode(),
	}
}

// ListRunways returns every runway currently known to the registry.
func (c *Core) ListRunways() []*runway.Runway { return c.registry.List() }

// GetRunway looks up a single runway by ID.
func (c *Core) GetRunway(id string) *runway.Runway { return c.registry.Get(id) }

// GetAllTargets returns every target the tracker has observed.
func (c *Core) GetAllTargets() []string { return c.tracker.GetAllTargets() }

// GetTargetMetrics returns every runway's metrics for one target.
func (c *Core) GetTargetMetrics(target string) map[string]tracker.TargetMetrics {
	return c.tracker.GetTargetMetrics(target)
}

// GetMetrics returns one (target, runway) pair's metrics.
func (c *Core) GetMetrics(target, runwayID string) (tracker.TargetMetrics, bool) {
	return c.tracker.GetMetrics(target, runwayID)
}

// GetActiveConnectionsInfo returns a snapshot of every in-flight connection.
func (c *Core) GetActiveConnectionsInfo() []dispatch.ConnectionInfo {
	return c.server.ActiveConnectionsInfo()
}

// GetRoutingMode returns the routing engine's current mode.
func (c *Core) GetRoutingMode() config.RoutingMode { return c.engine.GetMode() }

// SetRoutingMode changes the routing engine's mode at runtime.
func (c *Core) SetRoutingMode(mode config.RoutingMode) { c.engine.SetMode(mode) }
