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
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerNameRegex validates MCP server names.
// Names must start with a letter and contain only letters, numbers, hyphens, and underscores.
// Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Transport identifies how an MCP server is reached.
type Transport string

const (
	// TransportStdio runs the server as a subprocess speaking MCP over stdin/stdout.
	TransportStdio Transport = "stdio"
	// TransportSSE connects to a server over a long-lived Server-Sent-Events stream.
	TransportSSE Transport = "sse"
	// TransportHTTP talks plain request/response HTTP with conventional tool paths.
	TransportHTTP Transport = "http"
)

// ServerConfig is the static description of one configured MCP server.
// It is immutable once loaded; configuration reloads replace it wholesale.
type ServerConfig struct {
	// Name is the unique identifier for this server.
	Name string

	// Transport selects how the server is reached (stdio, sse, http).
	Transport Transport

	// Command is the executable to run (stdio transport).
	Command string

	// Args are the command-line arguments (stdio transport).
	Args []string

	// Env are environment variables in KEY=VALUE format (stdio transport).
	// Supports ${VAR} syntax for runtime variable substitution.
	Env []string

	// Cwd is the working directory for the subprocess (stdio transport).
	Cwd string

	// URL is the SSE endpoint (sse transport).
	URL string

	// BaseURL is the server base URL (http transport).
	BaseURL string

	// Headers are extra HTTP headers (http transport).
	Headers map[string]string

	// APIKey is sent as an Authorization bearer token when set (http transport).
	APIKey string

	// AutoApprove lists tool names exempt from manual approval upstream.
	AutoApprove []string

	// Disabled excludes the server from connection attempts.
	Disabled bool

	// Timeout bounds individual connect/discover and tool-call operations.
	Timeout time.Duration
}

// ServersFile is the on-disk server configuration.
// Stored as YAML with a servers map keyed by server name.
type ServersFile struct {
	// Servers is a map of server name to configuration.
	Servers map[string]*ServerEntry `yaml:"servers,omitempty"`

	// Agents maps agent names to their tool allow-lists.
	Agents map[string]*AgentEntry `yaml:"agents,omitempty"`

	// Defaults provides default values for server configuration.
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// ServerEntry represents a single server configuration entry.
type ServerEntry struct {
	// Transport selects the transport kind (default: stdio when command is
	// set, http when base_url is set, sse when url is set).
	Transport string `yaml:"transport,omitempty"`

	// Command is the executable to run (e.g., "npx", "python").
	Command string `yaml:"command,omitempty"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variables in KEY=VALUE format.
	// Supports ${VAR} syntax for runtime variable substitution.
	Env []string `yaml:"env,omitempty"`

	// Cwd is the working directory for the subprocess.
	Cwd string `yaml:"cwd,omitempty"`

	// URL is the SSE endpoint.
	URL string `yaml:"url,omitempty"`

	// BaseURL is the base URL for the http transport.
	BaseURL string `yaml:"base_url,omitempty"`

	// Headers are extra HTTP headers for the http transport.
	Headers map[string]string `yaml:"headers,omitempty"`

	// APIKey is the bearer token for the http transport.
	APIKey string `yaml:"api_key,omitempty"`

	// AutoApprove lists tool names exempt from manual approval.
	AutoApprove []string `yaml:"auto_approve,omitempty"`

	// Disabled excludes the server from connection attempts.
	Disabled bool `yaml:"disabled,omitempty"`

	// Timeout is the per-operation timeout in seconds.
	// Defaults to the defaults.timeout value (30 seconds).
	Timeout int `yaml:"timeout,omitempty"`
}

// AgentEntry scopes which servers and tools an agent may use.
type AgentEntry struct {
	// Servers is the allow-list of server names. Empty means no servers.
	Servers []string `yaml:"servers,omitempty"`

	// Tools is an optional allow-list of tool names. Empty means all tools
	// on the allowed servers.
	Tools []string `yaml:"tools,omitempty"`
}

// Defaults provides default values for server configuration.
type Defaults struct {
	// Timeout is the default per-operation timeout in seconds (default: 30).
	Timeout int `yaml:"timeout,omitempty"`
}

// DefaultTimeout is the per-operation timeout applied when none is configured.
const DefaultTimeout = 30 * time.Second

// LoadServersFile loads the server configuration from the given path.
// A missing file yields an empty configuration. A malformed file is an error;
// the hub converts that into an empty server set rather than crashing.
func LoadServersFile(path string) (*ServersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ServersFile{Servers: make(map[string]*ServerEntry)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ServersFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*ServerEntry)
	}

	return &cfg, nil
}

// ServerConfigs converts the file entries into validated ServerConfig values,
// sorted by name for deterministic reconciliation. Invalid entries are skipped
// with a warning rather than failing the whole load.
func (f *ServersFile) ServerConfigs(logger *slog.Logger) []ServerConfig {
	if logger == nil {
		logger = slog.Default()
	}

	defaultTimeout := DefaultTimeout
	if f.Defaults.Timeout > 0 {
		defaultTimeout = time.Duration(f.Defaults.Timeout) * time.Second
	}

	names := make([]string, 0, len(f.Servers))
	for name := range f.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		entry := f.Servers[name]
		cfg, err := entry.toServerConfig(name, defaultTimeout)
		if err != nil {
			logger.Warn("skipping invalid MCP server entry",
				"server", name,
				"error", err,
			)
			continue
		}
		configs = append(configs, cfg)
	}

	return configs
}

// toServerConfig validates and converts a single entry.
func (e *ServerEntry) toServerConfig(name string, defaultTimeout time.Duration) (ServerConfig, error) {
	if err := ValidateServerName(name); err != nil {
		return ServerConfig{}, err
	}

	transport, err := e.resolveTransport()
	if err != nil {
		return ServerConfig{}, err
	}

	timeout := defaultTimeout
	if e.Timeout > 0 {
		timeout = time.Duration(e.Timeout) * time.Second
	} else if e.Timeout < 0 {
		return ServerConfig{}, fmt.Errorf("timeout must be non-negative")
	}

	cfg := ServerConfig{
		Name:        name,
		Transport:   transport,
		Command:     e.Command,
		Args:        e.Args,
		Env:         expandEnv(e.Env),
		Cwd:         e.Cwd,
		URL:         e.URL,
		BaseURL:     e.BaseURL,
		Headers:     e.Headers,
		APIKey:      os.ExpandEnv(e.APIKey),
		AutoApprove: e.AutoApprove,
		Disabled:    e.Disabled,
		Timeout:     timeout,
	}

	switch transport {
	case TransportStdio:
		if cfg.Command == "" {
			return ServerConfig{}, fmt.Errorf("command is required for the stdio transport")
		}
	case TransportSSE:
		if cfg.URL == "" {
			return ServerConfig{}, fmt.Errorf("url is required for the sse transport")
		}
	case TransportHTTP:
		if cfg.BaseURL == "" {
			return ServerConfig{}, fmt.Errorf("base_url is required for the http transport")
		}
	}

	return cfg, nil
}

// resolveTransport determines the transport kind, inferring it from which
// endpoint fields are set when the entry doesn't name one explicitly.
func (e *ServerEntry) resolveTransport() (Transport, error) {
	switch Transport(e.Transport) {
	case TransportStdio, TransportSSE, TransportHTTP:
		return Transport(e.Transport), nil
	case "":
	default:
		return "", fmt.Errorf("invalid transport: %s (must be 'stdio', 'sse', or 'http')", e.Transport)
	}

	switch {
	case e.Command != "":
		return TransportStdio, nil
	case e.URL != "":
		return TransportSSE, nil
	case e.BaseURL != "":
		return TransportHTTP, nil
	}
	return "", fmt.Errorf("transport cannot be inferred: set command, url, or base_url")
}

// ValidateServerName validates an MCP server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid server name: must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// expandEnv expands ${VAR} references in KEY=VALUE environment entries.
func expandEnv(env []string) []string {
	if len(env) == 0 {
		return nil
	}
	expanded := make([]string, len(env))
	for i, e := range env {
		expanded[i] = os.ExpandEnv(e)
	}
	return expanded
}

// Equal reports whether two server configs describe the same server the same
// way. The hub uses it to decide whether a live connection must be replaced.
func (c ServerConfig) Equal(other ServerConfig) bool {
	if c.Name != other.Name ||
		c.Transport != other.Transport ||
		c.Command != other.Command ||
		c.Cwd != other.Cwd ||
		c.URL != other.URL ||
		c.BaseURL != other.BaseURL ||
		c.APIKey != other.APIKey ||
		c.Disabled != other.Disabled ||
		c.Timeout != other.Timeout {
		return false
	}
	if !stringSlicesEqual(c.Args, other.Args) ||
		!stringSlicesEqual(c.Env, other.Env) ||
		!stringSlicesEqual(c.AutoApprove, other.AutoApprove) {
		return false
	}
	if len(c.Headers) != len(other.Headers) {
		return false
	}
	for k, v := range c.Headers {
		if other.Headers[k] != v {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
