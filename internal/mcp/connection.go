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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ToolDescriptor describes one tool discovered on a connected MCP server.
type ToolDescriptor struct {
	// Name is the tool's name, unique within its server.
	Name string `json:"name"`

	// Description is the human-readable tool description.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON-schema argument shape.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// ServerName is the owning server.
	ServerName string `json:"server_name"`

	// AutoApprove is true when the tool is exempt from manual approval.
	AutoApprove bool `json:"auto_approve"`
}

// toolDef is a transport-level tool definition before descriptor conversion.
type toolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// session is the transport-level MCP protocol session. Implementations exist
// per transport kind (stdio subprocess, SSE stream, plain HTTP).
type session interface {
	// Connect establishes the transport and performs the initialize handshake.
	Connect(ctx context.Context) error

	// ListTools fetches the server's tool catalog.
	ListTools(ctx context.Context) ([]toolDef, error)

	// CallTool invokes a tool and returns its normalized text output.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Ping checks that the server is still responsive.
	Ping(ctx context.Context) error

	// Close releases the transport. Must be idempotent.
	Close() error
}

// newSessionForConfig selects the session implementation by transport kind.
func newSessionForConfig(cfg ServerConfig) session {
	switch cfg.Transport {
	case TransportStdio:
		return newStdioSession(cfg)
	case TransportSSE:
		return newSSESession(cfg)
	case TransportHTTP:
		return newHTTPSession(cfg)
	default:
		return &failedSession{err: fmt.Errorf("unsupported transport: %s", cfg.Transport)}
	}
}

// failedSession is returned for configs with an unknown transport so the
// failure surfaces through the normal connect path.
type failedSession struct {
	err error
}

func (s *failedSession) Connect(context.Context) error { return s.err }
func (s *failedSession) ListTools(context.Context) ([]toolDef, error) {
	return nil, s.err
}
func (s *failedSession) CallTool(context.Context, string, map[string]any) (string, error) {
	return "", s.err
}
func (s *failedSession) Ping(context.Context) error { return s.err }
func (s *failedSession) Close() error               { return nil }

// Connection is the live runtime state for one configured MCP server.
// Exactly one Connection exists per active server name; configuration changes
// replace the Connection rather than mutating its transport in place.
type Connection struct {
	// config is the immutable server configuration this connection serves.
	config ServerConfig

	// logger is used for structured logging.
	logger *slog.Logger

	// newSession constructs the transport session (overridable in tests).
	newSession func(ServerConfig) session

	// mu protects the mutable fields below.
	mu sync.RWMutex

	// sess is the active transport session, nil when disconnected.
	sess session

	// connected is true after a successful connect and discovery pass.
	connected bool

	// lastError is the most recent connect or discovery failure.
	lastError string

	// tools maps tool name to descriptor, populated during discovery.
	tools map[string]ToolDescriptor

	// toolOrder preserves the server's catalog ordering for status output.
	toolOrder []string
}

// NewConnection creates a disconnected Connection for the given config.
func NewConnection(cfg ServerConfig, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		config:     cfg,
		logger:     logger.With("server", cfg.Name, "transport", string(cfg.Transport)),
		newSession: newSessionForConfig,
		tools:      make(map[string]ToolDescriptor),
	}
}

// Config returns the server configuration this connection was built from.
func (c *Connection) Config() ServerConfig {
	return c.config
}

// ConnectAndDiscover establishes the transport, performs the initialize
// handshake, and discovers the server's tools. Connection failures are
// expected during normal operation, so they are recorded on the connection
// (IsConnected reports false, LastError carries the message) rather than
// returned. Disabled servers are a no-op.
func (c *Connection) ConnectAndDiscover(ctx context.Context) {
	if c.config.Disabled {
		c.logger.Debug("skipping disabled MCP server")
		return
	}

	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess := c.newSession(c.config)

	if err := sess.Connect(ctx); err != nil {
		_ = sess.Close()
		c.recordFailure(fmt.Errorf("connect failed: %w", err))
		return
	}

	defs, err := sess.ListTools(ctx)
	if err != nil {
		_ = sess.Close()
		c.recordFailure(fmt.Errorf("tool discovery failed: %w", err))
		return
	}

	autoApprove := make(map[string]bool, len(c.config.AutoApprove))
	for _, name := range c.config.AutoApprove {
		autoApprove[name] = true
	}

	tools := make(map[string]ToolDescriptor, len(defs))
	order := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			c.logger.Warn("skipping tool definition without a name")
			continue
		}
		tools[def.Name] = ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
			ServerName:  c.config.Name,
			AutoApprove: autoApprove[def.Name],
		}
		order = append(order, def.Name)
	}

	c.mu.Lock()
	c.sess = sess
	c.connected = true
	c.lastError = ""
	c.tools = tools
	c.toolOrder = order
	c.mu.Unlock()

	c.logger.Info("connected to MCP server", "tools", len(tools))
}

// recordFailure marks the connection failed, classifying timeouts separately.
func (c *Connection) recordFailure(err error) {
	msg := err.Error()
	if strings.Contains(msg, context.DeadlineExceeded.Error()) {
		msg = fmt.Sprintf("timed out after %s: %s", c.config.Timeout, msg)
	}

	c.mu.Lock()
	c.sess = nil
	c.connected = false
	c.lastError = msg
	c.tools = make(map[string]ToolDescriptor)
	c.toolOrder = nil
	c.mu.Unlock()

	c.logger.Warn("MCP server connection failed", "error", msg)
}

// IsConnected reports whether the connection is established with tools
// discovered.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError returns the most recent connect or discovery failure message.
func (c *Connection) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Tools returns a snapshot of the discovered tool descriptors in catalog order.
func (c *Connection) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]ToolDescriptor, 0, len(c.toolOrder))
	for _, name := range c.toolOrder {
		tools = append(tools, c.tools[name])
	}
	return tools
}

// HasTool reports whether the named tool was discovered on this connection.
func (c *Connection) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tools[name]
	return ok
}

// ExecuteTool dispatches a tool call over the active transport and returns the
// normalized text output. It fails with a NOT_CONNECTED error when the
// connection is down, an UNKNOWN_TOOL error when the tool was not discovered,
// and a TOOL_EXECUTION error wrapping any transport failure.
func (c *Connection) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.RLock()
	sess := c.sess
	connected := c.connected
	_, known := c.tools[name]
	c.mu.RUnlock()

	if !connected || sess == nil {
		return "", ErrNotConnected(c.config.Name)
	}
	if !known {
		return "", ErrUnknownTool(c.config.Name, name)
	}

	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := sess.CallTool(ctx, name, args)
	if err != nil {
		return "", ErrToolExecution(c.config.Name, name, err)
	}

	c.logger.Debug("tool call completed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Ping checks that the server behind this connection is still responsive.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	sess := c.sess
	connected := c.connected
	c.mu.RUnlock()

	if !connected || sess == nil {
		return ErrNotConnected(c.config.Name)
	}
	return sess.Ping(ctx)
}

// Close releases the transport and marks the connection disconnected.
// Safe to call on a connection that never connected, and safe to call twice.
func (c *Connection) Close() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.connected = false
	c.tools = make(map[string]ToolDescriptor)
	c.toolOrder = nil
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			c.logger.Debug("error closing MCP session", "error", err)
		}
	}
	return nil
}

// ConnectionStatus is a point-in-time snapshot of one connection.
type ConnectionStatus struct {
	ServerName string    `json:"server_name"`
	Transport  Transport `json:"transport"`
	Connected  bool      `json:"connected"`
	Disabled   bool      `json:"disabled"`
	ToolCount  int       `json:"tool_count"`
	ToolNames  []string  `json:"tool_names,omitempty"`
	StatusNote string    `json:"status_note,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Status returns a snapshot of this connection's state.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.toolOrder))
	copy(names, c.toolOrder)

	status := ConnectionStatus{
		ServerName: c.config.Name,
		Transport:  c.config.Transport,
		Connected:  c.connected,
		Disabled:   c.config.Disabled,
		ToolCount:  len(names),
		ToolNames:  names,
		LastError:  c.lastError,
	}

	switch {
	case c.config.Disabled:
		status.StatusNote = "Disabled in configuration"
	case c.connected:
		status.StatusNote = "Connected"
	case c.lastError != "":
		status.StatusNote = "Connection failed"
	default:
		status.StatusNote = "Not connected"
	}

	return status
}
