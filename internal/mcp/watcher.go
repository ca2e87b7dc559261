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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay is how long the watcher waits after the last config
// file change before triggering a reload. Editors often produce bursts of
// write/rename events for a single save.
const DefaultDebounceDelay = 500 * time.Millisecond

// Watcher monitors the server configuration file and reloads the hub when it
// changes.
type Watcher struct {
	// fsWatcher is the underlying filesystem watcher.
	fsWatcher *fsnotify.Watcher

	// hub is reloaded on configuration changes.
	hub *Hub

	// configPath is the watched file.
	configPath string

	// logger is used for structured logging.
	logger *slog.Logger

	// debounceDelay is the delay before reloading after file changes.
	debounceDelay time.Duration

	// mu protects pending.
	mu sync.Mutex

	// pending is the debounce timer for an upcoming reload.
	pending *time.Timer

	// ctx is the watcher's lifecycle context.
	ctx context.Context

	// cancel stops the watcher.
	cancel context.CancelFunc

	// wg tracks the event loop goroutine.
	wg sync.WaitGroup
}

// WatcherConfig configures the configuration-file watcher.
type WatcherConfig struct {
	// Hub is reloaded on configuration changes.
	Hub *Hub

	// ConfigPath is the configuration file to watch.
	ConfigPath string

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// DebounceDelay is the delay before reloading after file changes
	// (defaults to 500ms).
	DebounceDelay time.Duration
}

// NewWatcher creates a watcher for the hub's configuration file.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if cfg.ConfigPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	delay := cfg.DebounceDelay
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsWatcher:     fsWatcher,
		hub:           cfg.Hub,
		configPath:    cfg.ConfigPath,
		logger:        logger,
		debounceDelay: delay,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the file
// itself so atomic save patterns (write temp, rename over) are observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.logger.Info("watching MCP server configuration", "path", w.configPath)
	return nil
}

// eventLoop processes filesystem events until the watcher is closed.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// scheduleReload (re)arms the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Info("MCP server configuration changed, reloading")
		w.hub.Reload(w.ctx)
	})
}

// Close stops watching and waits for the event loop to finish.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
