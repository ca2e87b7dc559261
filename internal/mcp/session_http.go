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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// httpSession talks plain request/response HTTP with conventional paths:
// GET {base}/mcp/tools for discovery and POST {base}/tools/{name} for
// invocation. There is no persistent handshake; Connect issues a tool-listing
// request to confirm liveness.
type httpSession struct {
	baseURL string
	headers map[string]string
	apiKey  string
	client  *http.Client
}

// newHTTPSession creates a session bound to the config's base URL.
func newHTTPSession(cfg ServerConfig) session {
	return &httpSession{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		apiKey:  cfg.APIKey,
		client:  &http.Client{},
	}
}

// httpToolList is the wire shape of the tool-listing response.
type httpToolList struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

// httpToolResult is the wire shape of a tool invocation response. Servers may
// return a content list in the MCP style or a bare result string.
type httpToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Result  string `json:"result"`
	IsError bool   `json:"isError"`
}

// Connect confirms liveness with a tool-listing request.
func (s *httpSession) Connect(ctx context.Context) error {
	if _, err := s.ListTools(ctx); err != nil {
		return err
	}
	return nil
}

// ListTools fetches the tool catalog from the conventional listing path.
func (s *httpSession) ListTools(ctx context.Context) ([]toolDef, error) {
	body, err := s.do(ctx, http.MethodGet, "/mcp/tools", nil)
	if err != nil {
		return nil, err
	}

	var list httpToolList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse tool list: %w", err)
	}

	defs := make([]toolDef, 0, len(list.Tools))
	for _, t := range list.Tools {
		defs = append(defs, toolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs, nil
}

// CallTool POSTs the arguments to the tool-specific path and normalizes the
// response to text.
func (s *httpSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}

	body, err := s.do(ctx, http.MethodPost, "/tools/"+url.PathEscape(name), payload)
	if err != nil {
		return "", err
	}

	var result httpToolResult
	if err := json.Unmarshal(body, &result); err != nil {
		// Not a structured response; treat the raw body as the output.
		return string(body), nil
	}

	var text string
	switch {
	case len(result.Content) > 0:
		parts := make([]string, 0, len(result.Content))
		for _, item := range result.Content {
			if item.Type == "" || item.Type == "text" {
				parts = append(parts, item.Text)
			} else {
				parts = append(parts, fmt.Sprintf("[%s content]", strings.ToUpper(item.Type)))
			}
		}
		text = strings.Join(parts, "\n")
	case result.Result != "":
		text = result.Result
	default:
		text = string(body)
	}

	if result.IsError {
		return "", fmt.Errorf("tool reported an error: %s", text)
	}
	return text, nil
}

// Ping re-issues the tool-listing request as a liveness probe.
func (s *httpSession) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, "/mcp/tools", nil)
	return err
}

// Close releases idle connections. The session holds no other state.
func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do issues one HTTP request with auth and extra headers applied.
func (s *httpSession) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
