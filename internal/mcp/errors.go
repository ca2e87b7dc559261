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
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of MCP error.
type ErrorCode string

const (
	// ErrorCodeNotConnected indicates a connection is not established.
	ErrorCodeNotConnected ErrorCode = "NOT_CONNECTED"
	// ErrorCodeUnknownTool indicates a tool was not found on a connection.
	ErrorCodeUnknownTool ErrorCode = "UNKNOWN_TOOL"
	// ErrorCodeServerNotAvailable indicates a server has no live connection.
	ErrorCodeServerNotAvailable ErrorCode = "SERVER_NOT_AVAILABLE"
	// ErrorCodeShuttingDown indicates the hub is shutting down.
	ErrorCodeShuttingDown ErrorCode = "SHUTTING_DOWN"
	// ErrorCodeToolExecution indicates the remote tool call itself failed.
	ErrorCodeToolExecution ErrorCode = "TOOL_EXECUTION"
	// ErrorCodeNotPermitted indicates a tool is outside an agent's allow-list.
	ErrorCodeNotPermitted ErrorCode = "NOT_PERMITTED"
	// ErrorCodeTimeout indicates a connect or call exceeded its deadline.
	ErrorCodeTimeout ErrorCode = "TIMEOUT"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig ErrorCode = "CONFIG"
)

// Error is the error type for the MCP connection and dispatch layer.
// It carries a machine-readable code alongside suggestions for resolution.
type Error struct {
	// Code is the error category.
	Code ErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsCode reports whether err (or any error it wraps) is an *Error with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr.Code == code
	}
	return false
}

// ErrNotConnected creates an error for calling a tool on a disconnected server.
func ErrNotConnected(server string) *Error {
	return NewError(ErrorCodeNotConnected, fmt.Sprintf("MCP server '%s' is not connected", server)).
		WithSuggestions(
			"Check server status: casenav mcp check",
			"Verify the server configuration and reload",
		)
}

// ErrUnknownTool creates an error for a tool missing from a server's catalog.
func ErrUnknownTool(server, tool string) *Error {
	return NewError(ErrorCodeUnknownTool, fmt.Sprintf("tool '%s' not found on MCP server '%s'", tool, server)).
		WithSuggestions(
			"List discovered tools: casenav mcp check",
			"Reconnect the server to refresh its tool catalog",
		)
}

// ErrServerNotAvailable creates an error for a server with no live connection.
func ErrServerNotAvailable(server string) *Error {
	return NewError(ErrorCodeServerNotAvailable, fmt.Sprintf("MCP server '%s' is not available", server)).
		WithSuggestions(
			"Check the server name against the configuration file",
			"Check server status: casenav mcp check",
		)
}

// ErrShuttingDown creates an error for dispatching during shutdown.
func ErrShuttingDown() *Error {
	return NewError(ErrorCodeShuttingDown, "MCP hub is shutting down")
}

// ErrToolExecution wraps a transport-level failure during a tool call.
func ErrToolExecution(server, tool string, cause error) *Error {
	return NewError(ErrorCodeToolExecution, fmt.Sprintf("tool '%s' on MCP server '%s' failed", tool, server)).
		WithDetail(cause.Error()).
		WithCause(cause)
}

// ErrNotPermitted creates an error for a tool outside an agent's allow-list.
func ErrNotPermitted(agent, server, tool string) *Error {
	return NewError(ErrorCodeNotPermitted, fmt.Sprintf("agent '%s' is not permitted to call '%s' on server '%s'", agent, tool, server)).
		WithSuggestions(
			"Add the server or tool to the agent's allow-list in the configuration file",
		)
}
