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

// Package mcpcmd implements the MCP server CLI commands.
package mcpcmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/casenav/internal/log"
	"github.com/tombee/casenav/internal/mcp"
)

// NewMCPCommand creates the mcp command group.
func NewMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers",
	}

	cmd.PersistentFlags().String("config", "mcp_servers.yaml", "Path to MCP server configuration file")

	cmd.AddCommand(
		newCheckCommand(),
		newToolsCommand(),
		newCallCommand(),
	)
	return cmd
}

// connectHub builds a hub from the --config flag and connects every server.
// The caller must shut the hub down.
func connectHub(cmd *cobra.Command, timeout time.Duration) (*mcp.Hub, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}

	hub := mcp.NewHub(mcp.HubConfig{
		ConfigPath: configPath,
		Logger:     log.New(log.FromEnv()),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	hub.Initialize(ctx)

	return hub, configPath, nil
}

// loadRegistry builds a per-agent registry from the config file's agents
// section. A missing or malformed file yields an empty registry.
func loadRegistry(hub *mcp.Hub, configPath string) *mcp.Registry {
	file, err := mcp.LoadServersFile(configPath)
	if err != nil {
		return mcp.NewRegistry(hub, nil)
	}
	return mcp.NewRegistry(hub, file.Agents)
}

func newCheckCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to every configured server and report status",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, _, err := connectHub(cmd, timeout)
			if err != nil {
				return err
			}
			defer hub.Shutdown(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			statuses := hub.AllServerStatuses()
			if len(statuses) == 0 {
				cmd.Println("no servers configured")
				return nil
			}

			cmd.Printf("%-20s %-10s %-10s %-6s %s\n",
				"SERVER", "TRANSPORT", "CONNECTED", "TOOLS", "NOTE")
			for _, status := range statuses {
				connected := "no"
				note := status.StatusNote
				if status.Connected {
					connected = "yes"
					if err := hub.PingServer(ctx, status.ServerName); err != nil {
						note = "ping failed: " + err.Error()
					}
				}
				cmd.Printf("%-20s %-10s %-10s %-6d %s\n",
					status.ServerName, status.Transport, connected,
					status.ToolCount, note)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall connect timeout")
	return cmd
}

func newToolsCommand() *cobra.Command {
	var (
		agent   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools, optionally scoped to an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, configPath, err := connectHub(cmd, timeout)
			if err != nil {
				return err
			}
			defer hub.Shutdown(context.Background())

			var tools []mcp.ToolDescriptor
			if agent != "" {
				tools = loadRegistry(hub, configPath).ToolsFor(agent)
			} else {
				tools = hub.AllTools()
			}

			if len(tools) == 0 {
				cmd.Println("no tools available")
				return nil
			}
			for _, tool := range tools {
				cmd.Printf("%-20s %-24s %s\n", tool.ServerName, tool.Name, tool.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Restrict to the named agent's allow-list")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall connect timeout")
	return cmd
}

func newCallCommand() *cobra.Command {
	var (
		agent    string
		toolArgs []string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <server> <tool>",
		Short: "Invoke a tool on a connected server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseToolArgs(toolArgs)
			if err != nil {
				return err
			}

			hub, configPath, err := connectHub(cmd, timeout)
			if err != nil {
				return err
			}
			defer hub.Shutdown(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var result string
			if agent != "" {
				result, err = loadRegistry(hub, configPath).Call(ctx, agent, args[0], args[1], params)
			} else {
				result, err = hub.CallTool(ctx, args[0], args[1], params)
			}
			if err != nil {
				return err
			}

			cmd.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Call under the named agent's allow-list")
	cmd.Flags().StringArrayVar(&toolArgs, "arg", nil, "Tool argument as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall connect and call timeout")
	return cmd
}

// parseToolArgs converts repeated key=value flags into a tool argument map.
func parseToolArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}
