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
	"time"

	"go.uber.org/zap"

	"github.com/canalworks/icestream/pkg/aggregate"
	"github.com/canalworks/icestream/pkg/sinks/forward"
	"github.com/canalworks/icestream/pkg/telemetry"
	"github.com/canalworks/icestream/pkg/watermark"
)

// partitionWorker processes the ordered stream of one location. It exclusively
// owns the partition's tracker and engine; no other goroutine touches them.
type partitionWorker struct {
	partitionName   string
	ch              chan *telemetry.TelemetryEvent
	tracker         *watermark.Tracker
	engine          *aggregate.Engine
	forwarder       *forward.Retrier
	shutdownTimeout time.Duration
	log             *zap.SugaredLogger
}

func newPartitionWorker(pipelineName, partitionName string, bufferSize int, tracker *watermark.Tracker, engine *aggregate.Engine, forwarder *forward.Retrier, shutdownTimeout time.Duration, log *zap.SugaredLogger) *partitionWorker {
	return &partitionWorker{
		partitionName:   partitionName,
		ch:              make(chan *telemetry.TelemetryEvent, bufferSize),
		tracker:         tracker,
		engine:          engine,
		forwarder:       forwarder,
		shutdownTimeout: shutdownTimeout,
		log:             log.With("partition", partitionName),
	}
}

// run folds events in arrival order until the channel closes, then flushes.
// A sink failure that exhausts its retries is fatal for the partition.
func (w *partitionWorker) run(ctx context.Context) error {
	for ev := range w.ch {
		wm := w.tracker.Observe(ev.EventTime)
		results := w.engine.Fold(ev, wm)
		if len(results) == 0 {
			continue
		}
		if err := w.forwarder.Forward(ctx, results); err != nil {
			if ctx.Err() != nil {
				// shutting down, the flush below gets its own deadline
				break
			}
			return fmt.Errorf("partition %q halted: %w", w.partitionName, err)
		}
	}
	return w.flush()
}

// flush closes the watermark-eligible windows best effort before exiting.
// Windows not yet eligible are dropped by the engine and logged there.
func (w *partitionWorker) flush() error {
	cctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	results := w.engine.Drain(w.tracker.GetWatermark())
	if len(results) == 0 {
		return nil
	}
	w.log.Infow("Flushing closed windows on shutdown", zap.Int("results", len(results)))
	if err := w.forwarder.Forward(cctx, results); err != nil {
		return fmt.Errorf("partition %q flush: %w", w.partitionName, err)
	}
	return nil
}
