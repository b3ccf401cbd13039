/*
Copyright 2024 The Canalworks Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/canalworks/icestream/pkg/aggregate"
	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sources"
	"github.com/canalworks/icestream/pkg/telemetry"
)

// memoryReader replays canned records, then reads time out empty.
type memoryReader struct {
	ch chan *sources.RawMessage
}

func newMemoryReader(capacity int) *memoryReader {
	return &memoryReader{ch: make(chan *sources.RawMessage, capacity)}
}

func (m *memoryReader) push(payload string, ingestTime time.Time) {
	m.ch <- &sources.RawMessage{Payload: []byte(payload), IngestTime: ingestTime}
}

func (m *memoryReader) GetName() string { return "memory" }

func (m *memoryReader) Read(ctx context.Context, count int64) ([]*sources.RawMessage, error) {
	var out []*sources.RawMessage
	timeout := time.After(10 * time.Millisecond)
	for int64(len(out)) < count {
		select {
		case msg := <-m.ch:
			out = append(out, msg)
		case <-timeout:
			return out, nil
		case <-ctx.Done():
			return out, nil
		}
	}
	return out, nil
}

func (m *memoryReader) Close() error { return nil }

// captureSinker records everything written to it.
type captureSinker struct {
	mu      sync.Mutex
	results []*telemetry.AggregateResult
}

func (c *captureSinker) GetName() string { return "capture" }

func (c *captureSinker) Write(_ context.Context, results []*telemetry.AggregateResult) []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
	return make([]error, len(results))
}

func (c *captureSinker) Close() error { return nil }

func (c *captureSinker) snapshot() []*telemetry.AggregateResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*telemetry.AggregateResult, len(c.results))
	copy(out, c.results)
	return out
}

func rawRecord(location string, eventTime time.Time, ice, snow float64) string {
	return fmt.Sprintf(`{"location":%q,"iceThickness":%v,"surfaceTemperature":-5,"snowAccumulation":%v,"externalTemperature":-10,"timestamp":%q}`,
		location, ice, snow, eventTime.UTC().Format(time.RFC3339))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.WindowLength = time.Minute
	opts.AllowedSlack = 5 * time.Second
	opts.MaxLateDelay = 5 * time.Second
	opts.Policy = aggregate.PolicyAdjust
	return opts
}

func TestPipeline_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, zaptest.NewLogger(t).Sugar())

	reader := newMemoryReader(64)
	sinker := &captureSinker{}
	locations := []string{"Dow's Lake", "Fifth Avenue", "NAC"}

	p, err := New(ctx, "test-pipeline", reader, sinker, locations, testOptions())
	require.NoError(t, err)

	baseTime := time.Unix(1651129200, 0)
	ingest := baseTime
	// three readings inside one window, out of event-time order
	reader.push(rawRecord("Dow's Lake", baseTime.Add(10*time.Second), 27.0, 8.0), ingest)
	reader.push(rawRecord("Dow's Lake", baseTime.Add(30*time.Second), 28.0, 9.0), ingest.Add(time.Second))
	reader.push(rawRecord("Dow's Lake", baseTime.Add(20*time.Second), 29.0, 7.5), ingest.Add(2*time.Second))
	// a record far enough in the future to push the watermark past the close
	reader.push(rawRecord("Dow's Lake", baseTime.Add(70*time.Second), 30.0, 1.0), ingest.Add(3*time.Second))
	// a malformed record and an unknown site must be rejected without damage
	reader.push(`{"location":"Dow's Lake"`, ingest.Add(4*time.Second))
	reader.push(rawRecord("Somewhere Else", baseTime.Add(80*time.Second), 1.0, 1.0), ingest.Add(5*time.Second))

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(sinker.snapshot()) >= 1
	}, 5*time.Second, 10*time.Millisecond, "expected the first window to close")

	cancel()
	require.NoError(t, <-done)

	results := sinker.snapshot()
	require.NotEmpty(t, results)
	first := results[0]
	assert.Equal(t, "Dow's Lake", first.Location)
	assert.True(t, first.WindowEndTime.Equal(baseTime.Add(time.Minute)))
	assert.Equal(t, 28.0, first.AvgIceThickness)
	assert.Equal(t, 9.0, first.MaxSnowAccumulation)
	assert.Equal(t, int64(3), first.NumberOfReadings)
}

func TestPipeline_PartitionsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, zaptest.NewLogger(t).Sugar())

	reader := newMemoryReader(64)
	sinker := &captureSinker{}
	p, err := New(ctx, "test-pipeline", reader, sinker, []string{"Dow's Lake", "NAC"}, testOptions())
	require.NoError(t, err)

	baseTime := time.Unix(1651129200, 0)
	// NAC's window closes; Dow's Lake never gets a watermark-advancing event
	reader.push(rawRecord("NAC", baseTime.Add(10*time.Second), 20.0, 2.0), baseTime)
	reader.push(rawRecord("Dow's Lake", baseTime.Add(10*time.Second), 25.0, 3.0), baseTime)
	reader.push(rawRecord("NAC", baseTime.Add(70*time.Second), 21.0, 2.0), baseTime)

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(sinker.snapshot()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for _, r := range sinker.snapshot() {
		if r.Location == "NAC" && r.WindowEndTime.Equal(baseTime.Add(time.Minute)) {
			assert.Equal(t, int64(1), r.NumberOfReadings)
			return
		}
	}
	t.Fatalf("expected a closed NAC window")
}

func TestPipeline_NoLocations(t *testing.T) {
	ctx := logging.WithLogger(context.Background(), zaptest.NewLogger(t).Sugar())
	_, err := New(ctx, "test-pipeline", newMemoryReader(1), &captureSinker{}, nil, testOptions())
	assert.Error(t, err)
}
