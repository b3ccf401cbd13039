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

// Package pipeline wires the source, validator, aggregation engines and sink
// together. One worker per registered location owns that partition's state;
// partitions progress independently and a slow sink write blocks only its own
// partition.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canalworks/icestream/pkg/aggregate"
	"github.com/canalworks/icestream/pkg/metrics"
	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/sinks/forward"
	"github.com/canalworks/icestream/pkg/sources"
	"github.com/canalworks/icestream/pkg/telemetry"
	"github.com/canalworks/icestream/pkg/watermark"
)

// Options are the windowing and scheduling knobs of the pipeline.
type Options struct {
	WindowLength    time.Duration
	AllowedSlack    time.Duration
	MaxLateDelay    time.Duration
	Policy          aggregate.Policy
	ReadBatchSize   int64
	WorkerBuffer    int
	ShutdownTimeout time.Duration
}

// DefaultOptions mirror conservative stream-processing practice for slowly
// varying physical measurements.
func DefaultOptions() Options {
	return Options{
		WindowLength:    5 * time.Minute,
		AllowedSlack:    5 * time.Second,
		MaxLateDelay:    5 * time.Second,
		Policy:          aggregate.PolicyAdjust,
		ReadBatchSize:   100,
		WorkerBuffer:    1024,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pipeline owns the read loop and the per-partition workers.
type Pipeline struct {
	name      string
	reader    sources.TelemetryReader
	validator *telemetry.Validator
	workers   map[string]*partitionWorker
	opts      Options
	log       *zap.SugaredLogger
}

// New builds a Pipeline with one partition per registered location.
func New(ctx context.Context, name string, reader sources.TelemetryReader, sinker sinks.Sinker, locations []string, opts Options) (*Pipeline, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one registered location")
	}
	log := logging.FromContext(ctx).With("pipeline", name)
	p := &Pipeline{
		name:      name,
		reader:    reader,
		validator: telemetry.NewValidator(locations),
		workers:   make(map[string]*partitionWorker, len(locations)),
		opts:      opts,
		log:       log,
	}
	for _, loc := range locations {
		tracker := watermark.NewTracker(name, loc, opts.AllowedSlack)
		engine := aggregate.NewEngine(name, loc, opts.WindowLength, opts.MaxLateDelay, opts.Policy, log)
		forwarder := forward.NewRetrier(sinker, forward.WithLogger(log.With("partition", loc)))
		p.workers[loc] = newPartitionWorker(name, loc, opts.WorkerBuffer, tracker, engine, forwarder, opts.ShutdownTimeout, log)
	}
	return p, nil
}

// Run processes the stream until the context is cancelled, then flushes every
// partition best effort. The returned error aggregates partition failures.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	errsCh := make(chan error, len(p.workers))
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			if err := w.run(gctx); err != nil {
				errsCh <- err
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		return p.readLoop(gctx)
	})
	// the first failure cancels gctx; the surviving partitions drain and flush
	_ = g.Wait()
	close(errsCh)
	var merged error
	for err := range errsCh {
		merged = multierr.Append(merged, err)
	}
	return merged
}

// readLoop reads raw records, validates them and fans them out to the owning
// partition worker. It closes the worker channels on shutdown so each worker
// drains its buffer before flushing.
func (p *Pipeline) readLoop(ctx context.Context) error {
	defer func() {
		for _, w := range p.workers {
			close(w.ch)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			p.log.Infow("Stopping pipeline read loop...")
			return nil
		default:
		}
		msgs, err := p.reader.Read(ctx, p.opts.ReadBatchSize)
		if err != nil {
			// upstream unavailable; keep the accumulators, retry the read
			p.log.Errorw("Failed to read from source", zap.Error(err))
			metrics.ReadMessagesError.WithLabelValues(p.name, p.reader.GetName()).Inc()
			continue
		}
		for _, msg := range msgs {
			ev, err := p.validator.Validate(msg.Payload)
			if err != nil {
				p.log.Debugw("Rejecting record", zap.String("offset", msg.Offset), zap.Error(err))
				continue
			}
			if !msg.IngestTime.IsZero() {
				ev.IngestTime = msg.IngestTime
			}
			metrics.ReadMessagesCount.WithLabelValues(p.name, ev.Location).Inc()
			w := p.workers[ev.Location]
			select {
			case w.ch <- ev:
			case <-ctx.Done():
				p.log.Infow("Stopping pipeline read loop...")
				return nil
			}
		}
	}
}
