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
	"sync"
)

// agentScope is the compiled allow-list for one agent.
type agentScope struct {
	// servers is the set of allowed server names.
	servers map[string]bool

	// tools is the set of allowed tool names. nil means all tools on the
	// allowed servers.
	tools map[string]bool
}

// allows reports whether the scope permits the given server/tool pair.
func (s *agentScope) allows(server, tool string) bool {
	if !s.servers[server] {
		return false
	}
	if s.tools == nil {
		return true
	}
	return s.tools[tool]
}

// Registry filters the hub's discovered tools down to the subset each agent
// is permitted to use, and enforces that scope on dispatch.
type Registry struct {
	hub *Hub

	mu     sync.RWMutex
	agents map[string]*agentScope
}

// NewRegistry creates a registry over the hub with the given agent scopes.
func NewRegistry(hub *Hub, agents map[string]*AgentEntry) *Registry {
	r := &Registry{
		hub:    hub,
		agents: make(map[string]*agentScope),
	}
	r.SetAgents(agents)
	return r
}

// SetAgents replaces the agent scopes, typically after a configuration reload.
func (r *Registry) SetAgents(agents map[string]*AgentEntry) {
	compiled := make(map[string]*agentScope, len(agents))
	for name, entry := range agents {
		if entry == nil {
			continue
		}
		scope := &agentScope{servers: make(map[string]bool, len(entry.Servers))}
		for _, s := range entry.Servers {
			scope.servers[s] = true
		}
		if len(entry.Tools) > 0 {
			scope.tools = make(map[string]bool, len(entry.Tools))
			for _, t := range entry.Tools {
				scope.tools[t] = true
			}
		}
		compiled[name] = scope
	}

	r.mu.Lock()
	r.agents = compiled
	r.mu.Unlock()
}

// ToolsFor returns the discovered tools the named agent may use. An unknown
// agent gets no tools.
func (r *Registry) ToolsFor(agent string) []ToolDescriptor {
	r.mu.RLock()
	scope := r.agents[agent]
	r.mu.RUnlock()

	if scope == nil {
		return nil
	}

	var tools []ToolDescriptor
	for _, tool := range r.hub.AllTools() {
		if scope.allows(tool.ServerName, tool.Name) {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Allowed reports whether the agent may call the given tool on the given
// server. It checks scope only, not whether the tool is currently discovered.
func (r *Registry) Allowed(agent, server, tool string) bool {
	r.mu.RLock()
	scope := r.agents[agent]
	r.mu.RUnlock()

	return scope != nil && scope.allows(server, tool)
}

// Call enforces the agent's scope, then delegates to the hub.
func (r *Registry) Call(ctx context.Context, agent, server, tool string, args map[string]any) (string, error) {
	if !r.Allowed(agent, server, tool) {
		return "", ErrNotPermitted(agent, server, tool)
	}
	return r.hub.CallTool(ctx, server, tool, args)
}
