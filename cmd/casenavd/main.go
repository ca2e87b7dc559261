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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tombee/casenav/internal/casedb"
	"github.com/tombee/casenav/internal/log"
	"github.com/tombee/casenav/internal/mcp"
	"github.com/tombee/casenav/internal/telemetry"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		mcpConfig   = flag.String("mcp-config", "mcp_servers.yaml", "Path to MCP server configuration file")
		dbPath      = flag.String("db", "cases.db", "Path to the case database file")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9464", "Address for the Prometheus metrics endpoint")
		noWatch     = flag.Bool("no-watch", false, "Disable automatic reload on config changes")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("casenavd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	if err := run(logger, *mcpConfig, *dbPath, *metricsAddr, !*noWatch); err != nil {
		logger.Error("daemon failed", log.Error(err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, mcpConfig, dbPath, metricsAddr string, watch bool) error {
	provider, err := telemetry.New("casenavd", version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer provider.Shutdown(context.Background())

	store, err := casedb.New(casedb.Config{Path: dbPath, WAL: true})
	if err != nil {
		return fmt.Errorf("failed to open case database: %w", err)
	}
	defer store.Close()
	logger.Info("case database ready", "path", store.Path())

	hub := mcp.NewHub(mcp.HubConfig{
		ConfigPath: mcpConfig,
		Logger:     logger,
		Metrics:    provider.Collector(),
		StatusCallback: func(server string, connected bool, toolNames []string, errMsg string) {
			if connected {
				logger.Info("MCP server connected",
					log.ServerKey, server, "tools", len(toolNames))
				return
			}
			if errMsg != "" {
				logger.Warn("MCP server unavailable",
					log.ServerKey, server, "error", errMsg)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.Initialize(ctx)

	var watcher *mcp.Watcher
	if watch {
		watcher, err = mcp.NewWatcher(mcp.WatcherConfig{
			Hub:        hub,
			ConfigPath: mcpConfig,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer watcher.Close()
	}

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux(provider),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("metrics server failed", log.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", log.Error(err))
	}
	hub.Shutdown(shutdownCtx)
	return nil
}

func metricsMux(provider *telemetry.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}
