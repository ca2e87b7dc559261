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

package telemetry

import (
	"context"
	"time"

	"github.com/tombee/casenav/internal/mcp"
	"github.com/tombee/casenav/internal/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Compile-time interface assertions.
var (
	_ mcp.MetricsCollector  = (*Collector)(nil)
	_ task.MetricsCollector = (*Collector)(nil)
)

// Collector records tool-call and task metrics. It satisfies the consumer
// interfaces declared in the mcp and task packages.
type Collector struct {
	meter metric.Meter

	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	tasksTotal   metric.Int64Counter
	taskDuration metric.Float64Histogram
	queueDepth   metric.Int64UpDownCounter
}

// NewCollector creates a collector using the given meter provider.
func NewCollector(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("casenav")

	c := &Collector{meter: meter}

	var err error
	c.toolCallsTotal, err = meter.Int64Counter(
		"casenav_tool_calls_total",
		metric.WithDescription("Total number of MCP tool calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	c.toolCallDuration, err = meter.Float64Histogram(
		"casenav_tool_call_duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	c.tasksTotal, err = meter.Int64Counter(
		"casenav_tasks_total",
		metric.WithDescription("Total number of agent tasks executed"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	c.taskDuration, err = meter.Float64Histogram(
		"casenav_task_duration_seconds",
		metric.WithDescription("Agent task duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	c.queueDepth, err = meter.Int64UpDownCounter(
		"casenav_task_queue_depth",
		metric.WithDescription("Tasks waiting in the priority queue"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// RecordToolCall records one MCP tool call outcome.
func (c *Collector) RecordToolCall(server, tool, status string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	c.toolCallsTotal.Add(ctx, 1, attrs)
	c.toolCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
	))
}

// RecordTaskStart records a task beginning execution.
func (c *Collector) RecordTaskStart(ctx context.Context, taskID, taskType string) {
	_ = taskID // per-task series would blow up cardinality
	c.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", taskType),
		attribute.String("status", "started"),
	))
}

// RecordTaskComplete records a finished task with its outcome.
func (c *Collector) RecordTaskComplete(ctx context.Context, taskID, taskType, status string, duration time.Duration) {
	_ = taskID
	c.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", taskType),
		attribute.String("status", status),
	))
	c.taskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("type", taskType),
	))
}

// IncrementQueueDepth bumps the queue depth gauge.
func (c *Collector) IncrementQueueDepth() {
	c.queueDepth.Add(context.Background(), 1)
}

// DecrementQueueDepth lowers the queue depth gauge.
func (c *Collector) DecrementQueueDepth() {
	c.queueDepth.Add(context.Background(), -1)
}
