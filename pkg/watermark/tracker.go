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

// Package watermark tracks event-time progress per partition. The watermark is
// a lower bound below which no further events with an earlier event time are
// expected; windows whose end time is at or below the watermark may be closed.
package watermark

import (
	"time"

	"go.uber.org/atomic"

	"github.com/canalworks/icestream/pkg/metrics"
)

// Watermark is the event-time progress marker of a partition.
type Watermark time.Time

func (w Watermark) String() string {
	var location, _ = time.LoadLocation("UTC")
	var t = time.Time(w).In(location)
	return t.Format(time.RFC3339Nano)
}

// Time returns the Watermark as a time.Time.
func (w Watermark) Time() time.Time {
	return time.Time(w)
}

// Tracker maintains the watermark of one partition as
// max(eventTime seen) - allowedOutOfOrderSlack. The watermark is monotonically
// non-decreasing: observing an out-of-order event never retreats it.
//
// Observe is called only by the partition worker that owns the Tracker; the
// published value may be read concurrently through GetWatermark.
type Tracker struct {
	pipelineName  string
	partitionName string
	slack         time.Duration
	maxEventTime  time.Time
	// wm is the published watermark in unix milliseconds, read-only to the
	// aggregator and lateness policy.
	wm *atomic.Int64
}

// NewTracker returns a Tracker with the given out-of-order slack.
func NewTracker(pipelineName, partitionName string, slack time.Duration) *Tracker {
	return &Tracker{
		pipelineName:  pipelineName,
		partitionName: partitionName,
		slack:         slack,
		wm:            atomic.NewInt64(time.Time{}.UnixMilli()),
	}
}

// Observe folds one event time into the tracker and returns the resulting
// watermark. The watermark advances only when the event time exceeds the
// maximum seen so far.
func (t *Tracker) Observe(eventTime time.Time) Watermark {
	if eventTime.After(t.maxEventTime) {
		t.maxEventTime = eventTime
		wm := t.maxEventTime.Add(-t.slack)
		t.wm.Store(wm.UnixMilli())
		metrics.PartitionWatermark.WithLabelValues(t.pipelineName, t.partitionName).Set(float64(wm.UnixMilli()))
	}
	return t.GetWatermark()
}

// GetWatermark returns the current watermark of the partition.
func (t *Tracker) GetWatermark() Watermark {
	return Watermark(time.UnixMilli(t.wm.Load()))
}
