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

// Package task provides priority-queued agent task execution with a bounded
// concurrency resource manager.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an agent task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// DefaultMaxRetries is the retry budget assigned to new tasks.
const DefaultMaxRetries = 3

// AgentTask represents a unit of research work routed to an agent.
type AgentTask struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Priority    int            `json:"priority"`
	Status      Status         `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a pending task with a fresh identifier.
func NewTask(taskType string, parameters map[string]any, priority int) *AgentTask {
	return &AgentTask{
		ID:         uuid.NewString(),
		Type:       taskType,
		Parameters: parameters,
		Priority:   priority,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now(),
	}
}

// CanRetry reports whether the task has retry budget remaining.
func (t *AgentTask) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// markRunning transitions the task to running and stamps the start time.
func (t *AgentTask) markRunning() {
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
}

// markCompleted records a successful result.
func (t *AgentTask) markCompleted(result string) {
	now := time.Now()
	t.Status = StatusCompleted
	t.Result = result
	t.CompletedAt = &now
}

// markFailed records a failure without consuming retry budget; callers decide
// whether to resubmit.
func (t *AgentTask) markFailed(errMsg string) {
	now := time.Now()
	t.Status = StatusFailed
	t.Error = errMsg
	t.CompletedAt = &now
}
