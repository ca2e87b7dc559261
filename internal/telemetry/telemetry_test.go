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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestCollector_RecordsWithoutError(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(context.Background())

	collector, err := NewCollector(mp)
	require.NoError(t, err)

	collector.RecordToolCall("research", "search", "success", 120*time.Millisecond)
	collector.RecordToolCall("research", "search", "error", 5*time.Millisecond)
	collector.RecordTaskStart(context.Background(), "t1", "research")
	collector.RecordTaskComplete(context.Background(), "t1", "research", "success", time.Second)
	collector.IncrementQueueDepth()
	collector.DecrementQueueDepth()
}

func TestProvider_MetricsHandlerServes(t *testing.T) {
	provider, err := New("casenav-test", "0.0.1")
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	provider.Collector().RecordToolCall("research", "search", "success", time.Millisecond)

	recorder := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, recorder.Body.String())
}
