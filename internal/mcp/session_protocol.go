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
	"os/exec"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// clientName and clientVersion identify casenav in the MCP handshake.
const (
	clientName    = "casenav"
	clientVersion = "0.1.0"
)

// protocolSession is an MCP session backed by the mcp-go client library.
// It covers the stdio and sse transports, which share the full session
// protocol (initialize handshake, list_tools, call_tool, ping).
type protocolSession struct {
	// dial constructs and starts the underlying client.
	dial func(ctx context.Context) (*client.Client, error)

	// c is the live client, set by Connect.
	c *client.Client
}

// newStdioSession creates a session that spawns the server as a subprocess.
func newStdioSession(cfg ServerConfig) session {
	return &protocolSession{
		dial: func(ctx context.Context) (*client.Client, error) {
			var c *client.Client
			var err error

			if cfg.Cwd != "" {
				// The default constructor offers no working-directory
				// control, so supply the command factory ourselves.
				c, err = client.NewStdioMCPClientWithOptions(
					cfg.Command,
					cfg.Env,
					cfg.Args,
					transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
						cmd := exec.CommandContext(ctx, command, args...)
						cmd.Env = env
						cmd.Dir = cfg.Cwd
						return cmd, nil
					}),
				)
			} else {
				c, err = client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create stdio client: %w", err)
			}

			if err := c.Start(ctx); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("failed to start stdio client: %w", err)
			}
			return c, nil
		},
	}
}

// newSSESession creates a session over a long-lived Server-Sent-Events stream.
func newSSESession(cfg ServerConfig) session {
	return &protocolSession{
		dial: func(ctx context.Context) (*client.Client, error) {
			c, err := client.NewSSEMCPClient(cfg.URL)
			if err != nil {
				return nil, fmt.Errorf("failed to create sse client: %w", err)
			}

			if err := c.Start(ctx); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("failed to open sse stream: %w", err)
			}
			return c, nil
		},
	}
}

// Connect starts the transport and performs the initialize handshake.
func (s *protocolSession) Connect(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("initialize request failed: %w", err)
	}

	s.c = c
	return nil
}

// ListTools fetches the server's tool catalog.
func (s *protocolSession) ListTools(ctx context.Context) ([]toolDef, error) {
	result, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	defs := make([]toolDef, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema := tool.RawInputSchema
		if len(schema) == 0 {
			// The typed schema always marshals; fall back to it when the
			// server didn't send raw bytes.
			if data, err := json.Marshal(tool.InputSchema); err == nil {
				schema = data
			}
		}

		defs = append(defs, toolDef{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	return defs, nil
}

// CallTool invokes a tool and flattens the multi-part response into text.
func (s *protocolSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := s.c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", err
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool reported an error: %s", text)
	}
	return text, nil
}

// Ping checks the server is still responsive.
func (s *protocolSession) Ping(ctx context.Context) error {
	return s.c.Ping(ctx)
}

// Close tears down the client and its transport.
func (s *protocolSession) Close() error {
	if s.c == nil {
		return nil
	}
	err := s.c.Close()
	s.c = nil
	return err
}

// flattenContent normalizes a multi-part MCP content response: text parts are
// concatenated with newlines, non-text parts are rendered as a bracketed
// placeholder such as "[IMAGE content]".
func flattenContent(items []mcp.Content) string {
	parts := make([]string, 0, len(items))

	for _, content := range items {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
			continue
		}
		if _, ok := mcp.AsImageContent(content); ok {
			parts = append(parts, "[IMAGE content]")
			continue
		}

		// Unknown part kind: recover the type tag from its JSON form.
		kind := "UNKNOWN"
		if data, err := json.Marshal(content); err == nil {
			var m map[string]any
			if err := json.Unmarshal(data, &m); err == nil {
				if t, ok := m["type"].(string); ok && t != "" {
					kind = strings.ToUpper(t)
				}
			}
		}
		parts = append(parts, fmt.Sprintf("[%s content]", kind))
	}

	return strings.Join(parts, "\n")
}
