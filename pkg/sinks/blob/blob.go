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

// Package blob implements a sink writing results as newline-delimited JSON
// blobs, path-partitioned by emission date and time:
// <root>/aggregated-data/<YYYY-MM-DD>/<HHMMSS>.json. This is the layout the
// downstream visualizer reads.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/telemetry"
)

const containerDir = "aggregated-data"

// ToBlob writes result rows to date/time partitioned NDJSON files.
type ToBlob struct {
	name   string
	root   string
	now    func() time.Time
	logger *zap.SugaredLogger
}

type Option func(*ToBlob)

// WithClock overrides the emission clock used for path partitioning.
func WithClock(now func() time.Time) Option {
	return func(t *ToBlob) {
		t.now = now
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToBlob) {
		t.logger = log
	}
}

// NewToBlob returns a blob sink rooted at the given directory.
func NewToBlob(root string, opts ...Option) (*ToBlob, error) {
	if root == "" {
		return nil, fmt.Errorf("blob sink root must not be empty")
	}
	t := &ToBlob{
		name: "blob",
		root: root,
		now:  time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = logging.NewLogger()
	}
	if err := os.MkdirAll(filepath.Join(root, containerDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob container dir, %w", err)
	}
	return t, nil
}

var _ sinks.Sinker = (*ToBlob)(nil)

// GetName returns the name.
func (t *ToBlob) GetName() string {
	return t.name
}

// Write appends the results to the blob of the current emission time. A
// failure to persist is reported per result so the caller can retry; retrying
// the same batch appends the same rows again, which the upsert-by-key
// consumer contract makes safe.
func (t *ToBlob) Write(ctx context.Context, results []*telemetry.AggregateResult) []error {
	errs := make([]error, len(results))
	if len(results) == 0 {
		return errs
	}
	emittedAt := t.now().UTC()
	path := filepath.Join(t.root, containerDir, emittedAt.Format("2006-01-02"), emittedAt.Format("150405")+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return t.failAll(errs, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return t.failAll(errs, err)
	}
	defer func() { _ = f.Close() }()
	for i, r := range results {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		row, err := r.Marshal()
		if err != nil {
			// not transient, log and move on instead of wedging the partition
			t.logger.Errorw("Failed to marshal result row", zap.Error(err))
			continue
		}
		if _, err := f.Write(append(row, '\n')); err != nil {
			errs[i] = err
			continue
		}
		blobSinkWriteCount.WithLabelValues(t.name).Inc()
	}
	return errs
}

func (t *ToBlob) failAll(errs []error, err error) []error {
	for i := range errs {
		errs[i] = err
	}
	return errs
}

func (t *ToBlob) Close() error {
	return nil
}
