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

// Package mcp implements the MCP (Model Context Protocol) connection and
// tool-dispatch layer.
//
// A Hub owns one Connection per configured, non-disabled server and keeps the
// set consistent with the configuration file: Initialize reconciles, Reload
// re-reconciles after edits (a Watcher can drive this from filesystem
// events), and Shutdown closes everything once at process exit.
//
// Each Connection speaks one of three transports selected by configuration:
// a subprocess over stdio, a Server-Sent-Events stream, or plain HTTP with
// conventional tool paths. Connect failures are part of normal operation and
// surface through status snapshots, not errors; dispatch failures (unknown
// server, unknown tool, shut-down hub, failed tool call) are returned to the
// caller as coded errors.
//
// A Registry layers per-agent allow-lists over the hub so each agent only
// sees and calls the tools it is scoped to.
package mcp
