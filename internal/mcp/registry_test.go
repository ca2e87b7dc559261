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
	"testing"

	"github.com/stretchr/testify/require"
)

func registryFixture(t *testing.T) (*testHub, *Registry) {
	t.Helper()
	th := newTestHub(t, twoServerConfig)
	th.Initialize(context.Background())
	t.Cleanup(func() { th.Shutdown(context.Background()) })

	registry := NewRegistry(th.Hub, map[string]*AgentEntry{
		"research": {Servers: []string{"alpha"}},
		"intake":   {Servers: []string{"alpha", "beta"}, Tools: []string{"search"}},
	})
	return th, registry
}

func TestRegistry_ToolsFor(t *testing.T) {
	_, registry := registryFixture(t)

	research := registry.ToolsFor("research")
	require.Len(t, research, 2)
	for _, tool := range research {
		require.Equal(t, "alpha", tool.ServerName)
	}

	intake := registry.ToolsFor("intake")
	require.Len(t, intake, 2)
	for _, tool := range intake {
		require.Equal(t, "search", tool.Name)
	}
}

func TestRegistry_ToolsFor_UnknownAgent(t *testing.T) {
	_, registry := registryFixture(t)
	require.Empty(t, registry.ToolsFor("nobody"))
}

func TestRegistry_Call(t *testing.T) {
	_, registry := registryFixture(t)

	result, err := registry.Call(context.Background(), "research", "alpha", "fetch", nil)
	require.NoError(t, err)
	require.Equal(t, "ran fetch", result)
}

func TestRegistry_Call_OutOfScope(t *testing.T) {
	_, registry := registryFixture(t)

	// Server outside the agent's allow-list.
	_, err := registry.Call(context.Background(), "research", "beta", "search", nil)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrorCodeNotPermitted))

	// Tool outside the agent's tool allow-list.
	_, err = registry.Call(context.Background(), "intake", "beta", "fetch", nil)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrorCodeNotPermitted))

	// Unknown agent.
	_, err = registry.Call(context.Background(), "nobody", "alpha", "search", nil)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrorCodeNotPermitted))
}

func TestRegistry_SetAgents(t *testing.T) {
	_, registry := registryFixture(t)
	require.Empty(t, registry.ToolsFor("audit"))

	registry.SetAgents(map[string]*AgentEntry{
		"audit": {Servers: []string{"beta"}},
	})

	require.Len(t, registry.ToolsFor("audit"), 2)
	require.Empty(t, registry.ToolsFor("research"), "replaced scopes drop old agents")
}
