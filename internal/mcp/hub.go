// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// tracerName identifies hub spans in trace output.
const tracerName = "github.com/tombee/casenav/internal/mcp"

// StatusCallback is invoked after every connect attempt and reconciliation
// decision. errMsg is empty on success. Callbacks are skipped entirely while
// a shutdown is in progress.
type StatusCallback func(server string, connected bool, toolNames []string, errMsg string)

// MetricsCollector records tool-dispatch outcomes. Implementations must be
// safe for concurrent use. A nil collector disables metrics.
type MetricsCollector interface {
	RecordToolCall(server, tool, status string, duration time.Duration)
}

// Hub owns the full set of MCP server connections, keeps it consistent with
// the latest loaded configuration, and provides the single tool-dispatch
// entry point. It is created once at process start, initialized, optionally
// reloaded many times, and shut down once at process exit.
type Hub struct {
	// configPath is the server configuration file.
	configPath string

	// logger is used for structured logging.
	logger *slog.Logger

	// callback reports connection status changes (optional).
	callback StatusCallback

	// metrics records tool-dispatch outcomes (optional).
	metrics MetricsCollector

	// newConnection constructs connections (overridable in tests).
	newConnection func(ServerConfig, *slog.Logger) *Connection

	// reloadMu serializes whole reconciliation runs (Initialize, Shutdown) so
	// overlapping reloads cannot interleave their connect fan-outs.
	reloadMu sync.Mutex

	// mu protects the connection and config maps. Held only for short map
	// operations, never across a connect attempt, so status snapshots and
	// dispatch lookups stay responsive during a reconciliation.
	mu sync.Mutex

	// connections maps server name to its live connection.
	connections map[string]*Connection

	// configs is the latest loaded configuration, including disabled entries,
	// used to synthesize status for servers without a live connection.
	configs map[string]ServerConfig

	// shuttingDown fails dispatch fast once a shutdown begins.
	shuttingDown atomic.Bool
}

// HubConfig configures a Hub.
type HubConfig struct {
	// ConfigPath is the server configuration file path.
	ConfigPath string

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// StatusCallback reports connection status changes (optional).
	StatusCallback StatusCallback

	// Metrics records tool-dispatch outcomes (optional).
	Metrics MetricsCollector
}

// NewHub creates a hub. No connections are made until Initialize.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		configPath:    cfg.ConfigPath,
		logger:        logger,
		callback:      cfg.StatusCallback,
		metrics:       cfg.Metrics,
		newConnection: NewConnection,
		connections:   make(map[string]*Connection),
		configs:       make(map[string]ServerConfig),
	}
}

// LoadConfiguration reads the server configuration file. A malformed or
// unreadable file degrades to an empty server list with a logged error; the
// hub never crashes on bad configuration.
func (h *Hub) LoadConfiguration() []ServerConfig {
	file, err := LoadServersFile(h.configPath)
	if err != nil {
		h.logger.Error("failed to load MCP server configuration, continuing with no servers",
			"path", h.configPath,
			"error", err,
		)
		return nil
	}
	return file.ServerConfigs(h.logger)
}

// Initialize loads the configuration and reconciles the connection set
// against it: removed or newly-disabled servers are closed, changed configs
// are replaced wholesale, and new or disconnected servers are (re)connected.
// All connect attempts run concurrently and Initialize waits for all of them.
// Reentrant; concurrent calls serialize on the reload lock. The map lock is
// released before the connect fan-out, so status and dispatch calls observe
// the new connections while they are still connecting.
func (h *Hub) Initialize(ctx context.Context) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	configs := h.LoadConfiguration()

	h.mu.Lock()

	latest := make(map[string]ServerConfig, len(configs))
	for _, cfg := range configs {
		latest[cfg.Name] = cfg
	}

	// Close connections for servers that disappeared or were disabled.
	for name, conn := range h.connections {
		cfg, present := latest[name]
		if present && !cfg.Disabled {
			continue
		}
		_ = conn.Close()
		delete(h.connections, name)

		reason := "removed from configuration"
		if present {
			reason = "disabled in configuration"
		}
		h.logger.Info("closed MCP server connection", "server", name, "reason", reason)
		h.notify(name, false, nil, reason)
	}

	// Decide which servers need a (re)connect.
	var toConnect []*Connection
	for _, cfg := range configs {
		if cfg.Disabled {
			h.notify(cfg.Name, false, nil, "disabled in configuration")
			continue
		}

		existing, ok := h.connections[cfg.Name]
		if ok && existing.Config().Equal(cfg) && existing.IsConnected() {
			// Unchanged and healthy; just re-report its status.
			status := existing.Status()
			h.notify(cfg.Name, true, status.ToolNames, "")
			continue
		}
		if ok {
			// Config changed or the connection dropped: replace wholesale,
			// never mutate transport state in place.
			_ = existing.Close()
			delete(h.connections, cfg.Name)
		}

		conn := h.newConnection(cfg, h.logger)
		h.connections[cfg.Name] = conn
		toConnect = append(toConnect, conn)
	}

	h.configs = latest
	h.mu.Unlock()

	// Fan out the connect attempts; one failing connection must not block or
	// cancel the others.
	var wg sync.WaitGroup
	for _, conn := range toConnect {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			conn.ConnectAndDiscover(ctx)

			status := conn.Status()
			h.notify(status.ServerName, status.Connected, status.ToolNames, status.LastError)
		}(conn)
	}
	wg.Wait()

	h.logger.Info("MCP hub initialized",
		"configured", len(configs),
		"connected", h.connectedCount(),
	)
}

// connectedCount counts live connections.
func (h *Hub) connectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, conn := range h.connections {
		if conn.IsConnected() {
			count++
		}
	}
	return count
}

// notify invokes the status callback, suppressed during shutdown.
func (h *Hub) notify(server string, connected bool, toolNames []string, errMsg string) {
	if h.callback == nil || h.shuttingDown.Load() {
		return
	}
	h.callback(server, connected, toolNames, errMsg)
}

// CallTool routes a tool call to the named server's connection. The hub lock
// covers only the connection lookup; the tool execution itself runs outside
// it, so many calls may proceed concurrently while a reconciliation is in
// progress. A reconciliation that closes a connection mid-call lets the
// in-flight call fail with a transport error rather than force-cancelling it.
//
// Approval and consent checks are the caller's responsibility.
func (h *Hub) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	if h.shuttingDown.Load() {
		return "", ErrShuttingDown()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "mcp.call_tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("mcp.server", server),
		attribute.String("mcp.tool", tool),
	)

	h.mu.Lock()
	conn := h.connections[server]
	h.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		err := ErrServerNotAvailable(server)
		span.SetStatus(codes.Error, string(ErrorCodeServerNotAvailable))
		return "", err
	}

	start := time.Now()
	result, err := conn.ExecuteTool(ctx, tool, args)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if h.metrics != nil {
		h.metrics.RecordToolCall(server, tool, status, duration)
	}

	return result, err
}

// AllTools returns a snapshot of every tool on every connected server,
// ordered by server name. The snapshot is taken without holding the hub lock
// for the duration, so it may race benignly with an in-progress
// reconciliation.
func (h *Hub) AllTools() []ToolDescriptor {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Config().Name < conns[j].Config().Name
	})

	var tools []ToolDescriptor
	for _, conn := range conns {
		if conn.IsConnected() {
			tools = append(tools, conn.Tools()...)
		}
	}
	return tools
}

// ServerStatus returns the status of one server, synthesizing an entry for
// configured servers with no live connection.
func (h *Hub) ServerStatus(name string) (ConnectionStatus, error) {
	h.mu.Lock()
	conn := h.connections[name]
	cfg, configured := h.configs[name]
	h.mu.Unlock()

	if conn != nil {
		return conn.Status(), nil
	}
	if configured {
		return synthesizeStatus(cfg), nil
	}
	return ConnectionStatus{}, ErrServerNotAvailable(name)
}

// PingServer checks that a connected server is still responsive.
func (h *Hub) PingServer(ctx context.Context, name string) error {
	h.mu.Lock()
	conn := h.connections[name]
	h.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		return ErrServerNotAvailable(name)
	}
	return conn.Ping(ctx)
}

// AllServerStatuses returns per-server status for every configured server,
// including synthesized entries for servers without a live connection,
// ordered by name.
func (h *Hub) AllServerStatuses() []ConnectionStatus {
	h.mu.Lock()
	names := make([]string, 0, len(h.configs))
	seen := make(map[string]bool, len(h.configs))
	for name := range h.configs {
		names = append(names, name)
		seen[name] = true
	}
	for name := range h.connections {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	statuses := make([]ConnectionStatus, 0, len(names))
	for _, name := range names {
		if conn := h.connections[name]; conn != nil {
			statuses = append(statuses, conn.Status())
		} else if cfg, ok := h.configs[name]; ok {
			statuses = append(statuses, synthesizeStatus(cfg))
		}
	}
	h.mu.Unlock()

	return statuses
}

// synthesizeStatus builds a status entry for a configured server that has no
// live connection.
func synthesizeStatus(cfg ServerConfig) ConnectionStatus {
	status := ConnectionStatus{
		ServerName: cfg.Name,
		Transport:  cfg.Transport,
		Disabled:   cfg.Disabled,
		StatusNote: "Not connected",
	}
	if cfg.Disabled {
		status.StatusNote = "Disabled in configuration"
	}
	return status
}

// Shutdown fails any concurrent CallTool fast, then closes every tracked
// connection concurrently and clears the connection set. Idempotent; a second
// call is a logged no-op.
func (h *Hub) Shutdown(ctx context.Context) {
	if h.shuttingDown.Swap(true) {
		h.logger.Debug("MCP hub shutdown already in progress")
		return
	}

	// Wait for any in-flight reconciliation so its connect fan-out cannot
	// resurrect a connection this shutdown is about to close.
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.mu.Lock()
	conns := h.connections
	h.connections = make(map[string]*Connection)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, conn := range conns {
		wg.Add(1)
		go func(name string, conn *Connection) {
			defer wg.Done()
			_ = conn.Close()
			h.logger.Debug("closed MCP server connection", "server", name)
		}(name, conn)
	}
	wg.Wait()

	h.logger.Info("MCP hub shut down", "closed", len(conns))
}

// Reload clears the shutdown flag and re-runs Initialize, picking up
// configuration changes and reconnecting as needed.
func (h *Hub) Reload(ctx context.Context) {
	h.shuttingDown.Store(false)
	h.logger.Info("reloading MCP server configuration", "path", h.configPath)
	h.Initialize(ctx)
}
