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
	"sync"
)

// Queue is an in-memory priority queue of agent tasks. Higher priority tasks
// dequeue first; tasks of equal priority dequeue in submission order.
type Queue struct {
	mu       sync.Mutex
	tasks    []*AgentTask
	signal   chan struct{}
	done     chan struct{}
	closed   bool
	closedMu sync.RWMutex
	metrics  MetricsCollector
}

// NewQueue creates an empty task queue.
func NewQueue() *Queue {
	return &Queue{
		tasks:  make([]*AgentTask, 0),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// SetMetrics attaches a collector that tracks queue depth. Must be called
// before the queue is used.
func (q *Queue) SetMetrics(metrics MetricsCollector) {
	q.metrics = metrics
}

// Enqueue adds a task to the queue. The closed lock is held for the whole
// call so no enqueue can succeed once Close has returned.
func (q *Queue) Enqueue(ctx context.Context, task *AgentTask) error {
	q.closedMu.RLock()
	defer q.closedMu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.mu.Lock()
	// Insert before the first strictly lower priority entry so equal
	// priorities stay FIFO.
	inserted := false
	for i, existing := range q.tasks {
		if task.Priority > existing.Priority {
			q.tasks = append(q.tasks[:i], append([]*AgentTask{task}, q.tasks[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		q.tasks = append(q.tasks, task)
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.IncrementQueueDepth()
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// Dequeue removes and returns the highest priority task. Blocks until a task
// is available, the context is cancelled, or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (*AgentTask, error) {
	for {
		q.closedMu.RLock()
		if q.closed {
			q.closedMu.RUnlock()
			return nil, ErrQueueClosed
		}
		q.closedMu.RUnlock()

		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			if q.metrics != nil {
				q.metrics.DecrementQueueDepth()
			}
			return task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		case <-q.signal:
			// A task may be available, loop again.
		}
	}
}

// Peek returns the next task without removing it, or nil when empty.
func (q *Queue) Peek() *AgentTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close closes the queue. Further Enqueue and Dequeue calls return
// ErrQueueClosed. The signal channel is left open; shutdown is announced on
// the dedicated done channel so a concurrent Enqueue can never send on a
// closed channel.
func (q *Queue) Close() error {
	q.closedMu.Lock()
	defer q.closedMu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// ErrQueueClosed is returned when operations are performed on a closed queue.
var ErrQueueClosed = &QueueError{message: "queue is closed"}

// QueueError represents a queue-related error.
type QueueError struct {
	message string
}

func (e *QueueError) Error() string {
	return e.message
}
