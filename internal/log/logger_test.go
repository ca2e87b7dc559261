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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "info",
		Format: FormatText,
		Output: &buf,
	})

	logger.Info("text message")

	if !strings.Contains(buf.String(), "text message") {
		t.Errorf("output missing message: %s", buf.String())
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "warn",
		Format: FormatText,
		Output: &buf,
	})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug/info output not filtered: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn output missing: %s", out)
	}
}

func TestNew_NilConfig(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Fatal("New(nil) returned nil")
	}
}

func TestFromEnv_Debug(t *testing.T) {
	t.Setenv("CASENAV_DEBUG", "1")
	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Level)
	}
	if !cfg.AddSource {
		t.Error("AddSource should be enabled by CASENAV_DEBUG")
	}
}

func TestFromEnv_LevelPrecedence(t *testing.T) {
	t.Setenv("CASENAV_DEBUG", "")
	t.Setenv("CASENAV_LOG_LEVEL", "error")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()
	if cfg.Level != "error" {
		t.Errorf("Level = %q, want error (CASENAV_LOG_LEVEL should win)", cfg.Level)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"long key", "sk-abcdef1234", "...1234"},
		{"short key", "abc", "[REDACTED]"},
		{"empty key", "", "[REDACTED]"},
		{"exactly four", "abcd", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeAPIKey(tt.key); got != tt.want {
				t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithComponent(logger, "hub").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["component"] != "hub" {
		t.Errorf("component = %v, want hub", entry["component"])
	}
}
