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

package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxConcurrentTasks bounds parallel task execution when no limit is
// configured.
const DefaultMaxConcurrentTasks = 5

// Runnable executes a task instruction and returns its output. Implementations
// typically dispatch to an agent backed by MCP tools.
type Runnable func(ctx context.Context, instruction string) (string, error)

// Result is the outcome of a single task submission.
type Result struct {
	TaskID   string        `json:"task_id"`
	Status   string        `json:"status"` // "success" or "error"
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// MetricsCollector defines the interface for recording task metrics.
type MetricsCollector interface {
	RecordTaskStart(ctx context.Context, taskID, taskType string)
	RecordTaskComplete(ctx context.Context, taskID, taskType, status string, duration time.Duration)
	IncrementQueueDepth()
	DecrementQueueDepth()
}

// ResourceStatus is a snapshot of manager capacity.
type ResourceStatus struct {
	RunningTasks       int      `json:"running_tasks"`
	QueuedTasks        int      `json:"queued_tasks"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
	RunningTaskIDs     []string `json:"running_task_ids"`

	// Memory fields are reported for API compatibility but are not a real
	// constraint; they are always zero.
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryLimitMB float64 `json:"memory_limit_mb"`
}

// Config contains resource manager configuration.
type Config struct {
	// MaxConcurrentTasks bounds parallel executions (defaults to 5).
	MaxConcurrentTasks int

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// Metrics records task lifecycle events (optional).
	Metrics MetricsCollector

	// Queue, when set, is reflected in ResourceStatus.QueuedTasks.
	Queue *Queue
}

// ResourceManager executes agent tasks under a fixed concurrency bound.
type ResourceManager struct {
	// semaphore holds one slot per allowed concurrent task.
	semaphore chan struct{}

	// maxConcurrent is the configured bound.
	maxConcurrent int

	// logger is used for structured logging.
	logger *slog.Logger

	// metrics records task lifecycle events.
	metrics MetricsCollector

	// queue, when set, contributes the queued count to status snapshots.
	queue *Queue

	// mu protects running.
	mu sync.Mutex

	// running tracks in-flight tasks by ID.
	running map[string]*AgentTask
}

// NewResourceManager creates a manager with the given configuration.
func NewResourceManager(cfg Config) *ResourceManager {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResourceManager{
		semaphore:     make(chan struct{}, cfg.MaxConcurrentTasks),
		maxConcurrent: cfg.MaxConcurrentTasks,
		logger:        logger,
		metrics:       cfg.Metrics,
		queue:         cfg.Queue,
		running:       make(map[string]*AgentTask),
	}
}

// SubmitTask executes the task via the runnable, blocking until a concurrency
// slot is available. Execution failures are reported in the Result, never
// propagated as errors; each call executes the runnable at most once.
func (m *ResourceManager) SubmitTask(ctx context.Context, task *AgentTask, runnable Runnable) Result {
	start := time.Now()

	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		task.Status = StatusCancelled
		return Result{
			TaskID:   task.ID,
			Status:   "error",
			Error:    fmt.Sprintf("cancelled while waiting for capacity: %v", ctx.Err()),
			Duration: time.Since(start),
		}
	}
	defer func() { <-m.semaphore }()

	m.mu.Lock()
	m.running[task.ID] = task
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, task.ID)
		m.mu.Unlock()
	}()

	if m.metrics != nil {
		m.metrics.RecordTaskStart(ctx, task.ID, task.Type)
	}

	task.markRunning()
	m.logger.Debug("task started", "task_id", task.ID, "type", task.Type, "priority", task.Priority)

	result := m.execute(ctx, task, runnable)

	if m.metrics != nil {
		m.metrics.RecordTaskComplete(ctx, task.ID, task.Type, result.Status, result.Duration)
	}
	m.logger.Debug("task finished",
		"task_id", task.ID, "status", result.Status, "duration", result.Duration)

	return result
}

// execute runs the runnable with panic containment.
func (m *ResourceManager) execute(ctx context.Context, task *AgentTask, runnable Runnable) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("task panicked: %v", r)
			task.markFailed(msg)
			result = Result{
				TaskID:   task.ID,
				Status:   "error",
				Error:    msg,
				Duration: time.Since(start),
			}
		}
	}()

	if runnable == nil {
		msg := "no runnable provided for task"
		task.markFailed(msg)
		return Result{
			TaskID:   task.ID,
			Status:   "error",
			Error:    msg,
			Duration: time.Since(start),
		}
	}

	output, err := runnable(ctx, BuildInstruction(task))
	if err != nil {
		task.markFailed(err.Error())
		return Result{
			TaskID:   task.ID,
			Status:   "error",
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	task.markCompleted(output)
	return Result{
		TaskID:   task.ID,
		Status:   "success",
		Output:   output,
		Duration: time.Since(start),
	}
}

// Status returns a snapshot of current capacity usage.
func (m *ResourceManager) Status() ResourceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	status := ResourceStatus{
		RunningTasks:       len(m.running),
		MaxConcurrentTasks: m.maxConcurrent,
		RunningTaskIDs:     ids,
	}
	if m.queue != nil {
		status.QueuedTasks = m.queue.Len()
	}
	return status
}

// ProcessQueue drains the queue, executing each task under the concurrency
// bound. It returns when the queue is closed or the context is cancelled,
// after all in-flight tasks finish. Results are delivered to the callback in
// completion order; a nil callback discards them. Queue depth accounting
// lives in the queue itself.
func (m *ResourceManager) ProcessQueue(ctx context.Context, queue *Queue, runnable Runnable, done func(Result)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		next, err := queue.Dequeue(ctx)
		if err != nil {
			if err == ErrQueueClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func(t *AgentTask) {
			defer wg.Done()
			result := m.SubmitTask(ctx, t, runnable)
			if done != nil {
				done(result)
			}
		}(next)
	}
}

// BuildInstruction renders a task into the instruction string handed to the
// runnable: the task type followed by its parameters in key order.
func BuildInstruction(task *AgentTask) string {
	var b strings.Builder
	b.WriteString(task.Type)

	if len(task.Parameters) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(task.Parameters))
	for k := range task.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(":")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, task.Parameters[k]))
	}
	return b.String()
}
