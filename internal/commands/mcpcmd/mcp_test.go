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

package mcpcmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newToolServer serves the conventional HTTP tool paths with one lookup tool.
func newToolServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp/tools", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tools": [{"name": "lookup", "description": "Look up an appeal"}]}`)
	})
	mux.HandleFunc("POST /tools/lookup", func(w http.ResponseWriter, r *http.Request) {
		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		fmt.Fprintf(w, `{"result": "found %v"}`, args["appeal"])
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// writeConfig writes a server config pointing at the test tool server.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()

	config := fmt.Sprintf(`
servers:
  research:
    base_url: %s
agents:
  intake:
    servers: [research]
    tools: [lookup]
  restricted:
    servers: []
`, baseURL)

	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0600))
	return path
}

func runMCP(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := NewMCPCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", configPath))

	err := cmd.Execute()
	return out.String(), err
}

func TestMCPCommand_Check(t *testing.T) {
	server := newToolServer(t)
	configPath := writeConfig(t, server.URL)

	out, err := runMCP(t, configPath, "check")
	require.NoError(t, err)
	require.Contains(t, out, "research")
	require.Contains(t, out, "yes")
}

func TestMCPCommand_Check_NoServers(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := runMCP(t, configPath, "check")
	require.NoError(t, err)
	require.Contains(t, out, "no servers configured")
}

func TestMCPCommand_Tools(t *testing.T) {
	server := newToolServer(t)
	configPath := writeConfig(t, server.URL)

	out, err := runMCP(t, configPath, "tools")
	require.NoError(t, err)
	require.Contains(t, out, "lookup")
	require.Contains(t, out, "research")
}

func TestMCPCommand_Tools_AgentScoped(t *testing.T) {
	server := newToolServer(t)
	configPath := writeConfig(t, server.URL)

	out, err := runMCP(t, configPath, "tools", "--agent", "intake")
	require.NoError(t, err)
	require.Contains(t, out, "lookup")

	out, err = runMCP(t, configPath, "tools", "--agent", "restricted")
	require.NoError(t, err)
	require.Contains(t, out, "no tools available")
}

func TestMCPCommand_Call(t *testing.T) {
	server := newToolServer(t)
	configPath := writeConfig(t, server.URL)

	out, err := runMCP(t, configPath, "call", "research", "lookup", "--arg", "appeal=A001")
	require.NoError(t, err)
	require.Contains(t, out, "found A001")
}

func TestMCPCommand_Call_AgentNotPermitted(t *testing.T) {
	server := newToolServer(t)
	configPath := writeConfig(t, server.URL)

	_, err := runMCP(t, configPath, "call", "research", "lookup",
		"--agent", "restricted", "--arg", "appeal=A001")
	require.Error(t, err)
}

func TestMCPCommand_Call_BadArgument(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := runMCP(t, configPath, "call", "research", "lookup", "--arg", "malformed")
	require.Error(t, err)
	require.Contains(t, err.Error(), "key=value")
}
