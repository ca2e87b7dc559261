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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_RequiresHubAndPath(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{ConfigPath: "x.yaml"})
	require.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Hub: NewHub(HubConfig{ConfigPath: "x.yaml"})})
	require.Error(t, err)
}

func TestWatcher_ReloadsOnConfigChange(t *testing.T) {
	th := newTestHub(t, twoServerConfig)
	th.Initialize(context.Background())
	defer th.Shutdown(context.Background())

	watcher, err := NewWatcher(WatcherConfig{
		Hub:           th.Hub,
		ConfigPath:    th.configPath,
		DebounceDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Close()

	th.rewriteConfig(t, `
servers:
  alpha:
    command: echo
`)

	require.Eventually(t, func() bool {
		_, err := th.ServerStatus("beta")
		return err != nil
	}, 5*time.Second, 25*time.Millisecond, "removed server should disappear after reload")
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	th := newTestHub(t, twoServerConfig)
	th.Initialize(context.Background())
	defer th.Shutdown(context.Background())
	require.Equal(t, int32(2), th.created.Load())

	watcher, err := NewWatcher(WatcherConfig{
		Hub:           th.Hub,
		ConfigPath:    th.configPath,
		DebounceDelay: 150 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Close()

	changed := `
servers:
  alpha:
    command: python
  beta:
    command: cat
`
	// A burst of writes within the debounce window collapses to one reload.
	for range 5 {
		th.rewriteConfig(t, changed)
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return th.created.Load() == 3
	}, 5*time.Second, 25*time.Millisecond)

	// No further reloads arrive after the window closes.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(3), th.created.Load())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	th := newTestHub(t, twoServerConfig)
	th.Initialize(context.Background())
	defer th.Shutdown(context.Background())

	watcher, err := NewWatcher(WatcherConfig{
		Hub:           th.Hub,
		ConfigPath:    th.configPath,
		DebounceDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Close()

	other := filepath.Join(filepath.Dir(th.configPath), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("unrelated"), 0600))

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(2), th.created.Load(), "unrelated files must not trigger reloads")
}

func TestWatcher_CloseStopsPendingReload(t *testing.T) {
	th := newTestHub(t, twoServerConfig)
	th.Initialize(context.Background())
	defer th.Shutdown(context.Background())

	watcher, err := NewWatcher(WatcherConfig{
		Hub:           th.Hub,
		ConfigPath:    th.configPath,
		DebounceDelay: time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	th.rewriteConfig(t, twoServerConfig)
	require.NoError(t, watcher.Close())

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(2), th.created.Load(), "reload pending at close must not fire")
}
