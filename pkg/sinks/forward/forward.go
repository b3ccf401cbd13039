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

// Package forward delivers results to a sink with at-least-once semantics.
// Transient write failures are retried with exponential backoff; exhausting
// the retries is fatal for the calling partition and surfaced as an error.
package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/telemetry"
)

// Retrier wraps a Sinker with the retry policy of the emitter.
type Retrier struct {
	sinker  sinks.Sinker
	backoff wait.Backoff
	logger  *zap.SugaredLogger
}

type Option func(*Retrier)

// WithBackoff overrides the retry backoff.
func WithBackoff(b wait.Backoff) Option {
	return func(r *Retrier) {
		r.backoff = b
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Retrier) {
		r.logger = log
	}
}

// NewRetrier returns a Retrier around the sinker.
func NewRetrier(sinker sinks.Sinker, opts ...Option) *Retrier {
	r := &Retrier{
		sinker: sinker,
		backoff: wait.Backoff{
			Steps:    8,
			Duration: 100 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
			Cap:      10 * time.Second,
		},
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = logging.NewLogger()
	}
	return r
}

// Forward writes the results, retrying the failed subset until everything is
// persisted or the backoff is exhausted. Duplicate writes of an unchanged
// result are safe under the sink's upsert-by-key contract.
func (r *Retrier) Forward(ctx context.Context, results []*telemetry.AggregateResult) error {
	if len(results) == 0 {
		return nil
	}
	pending := results
	err := wait.ExponentialBackoffWithContext(ctx, r.backoff, func(_ context.Context) (bool, error) {
		errs := r.sinker.Write(ctx, pending)
		var failed []*telemetry.AggregateResult
		for i, werr := range errs {
			if werr != nil {
				failed = append(failed, pending[i])
				sinkWriteErrorCount.WithLabelValues(r.sinker.GetName()).Inc()
			}
		}
		if len(failed) == 0 {
			return true, nil
		}
		r.logger.Warnw("Failed to write results to sink, retrying",
			zap.String("sink", r.sinker.GetName()),
			zap.Int("failed", len(failed)),
			zap.Error(errs[firstFailure(errs)]))
		pending = failed
		return false, nil
	})
	if err != nil {
		if errors.Is(err, wait.ErrWaitTimeout) {
			return fmt.Errorf("sink %q write retries exhausted with %d results pending", r.sinker.GetName(), len(pending))
		}
		return fmt.Errorf("sink %q write aborted, %w", r.sinker.GetName(), err)
	}
	return nil
}

func firstFailure(errs []error) int {
	for i, err := range errs {
		if err != nil {
			return i
		}
	}
	return 0
}
