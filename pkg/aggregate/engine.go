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

// Package aggregate implements the windowed aggregation engine. Each partition
// worker owns one Engine; the Engine folds validated events into per-window
// accumulators, closes windows as the watermark passes them and applies the
// configured lateness policy to events that arrive after closure.
package aggregate

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/canalworks/icestream/pkg/telemetry"
	"github.com/canalworks/icestream/pkg/watermark"
	"github.com/canalworks/icestream/pkg/window"
)

// defaultRevisableCapacity caps the closed-but-revisable set. With the default
// 5 minute windows and 5 second lateness bound at most one closed window is
// revisable at a time, so this is generous for any sane configuration.
const defaultRevisableCapacity = 64

// closedWindow is an emitted window retained for possible revision until the
// lateness bound elapses.
type closedWindow struct {
	win window.IntervalWindow
	acc *Accumulator
}

// Engine is the per-partition aggregation state machine. All methods are
// called only by the owning partition worker; there is no locking because the
// partition is the serialization boundary.
type Engine struct {
	pipelineName  string
	partitionName string
	windowLength  time.Duration
	maxLateDelay  time.Duration
	policy        Policy

	windower *window.Windower
	// open holds the accumulator of each active window, keyed by window start
	// in unix milliseconds.
	open map[int64]*Accumulator
	// revisable holds closed windows still within the lateness bound, keyed by
	// window end in unix milliseconds. The LRU capacity is the hard memory
	// bound; entries are also removed eagerly as the watermark passes
	// windowEnd + maxLateDelay.
	revisable *lru.Cache[int64, *closedWindow]
	// closedFrontier is the largest window end closed so far. Closure is
	// monotonic: the frontier never retreats.
	closedFrontier time.Time

	log *zap.SugaredLogger
}

type EngineOption func(*Engine)

// WithRevisableCapacity overrides the bound of the closed-but-revisable set.
func WithRevisableCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.revisable.Resize(n)
	}
}

// NewEngine returns an Engine for one partition.
func NewEngine(pipelineName, partitionName string, windowLength, maxLateDelay time.Duration, policy Policy, log *zap.SugaredLogger, opts ...EngineOption) *Engine {
	revisable, _ := lru.New[int64, *closedWindow](defaultRevisableCapacity)
	e := &Engine{
		pipelineName:  pipelineName,
		partitionName: partitionName,
		windowLength:  windowLength,
		maxLateDelay:  maxLateDelay,
		policy:        policy,
		windower:      window.NewWindower(windowLength),
		open:          make(map[int64]*Accumulator),
		revisable:     revisable,
		log:           log.With("partition", partitionName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Fold folds one validated event into its window under the given watermark and
// returns the results that became final because of it: at most one revision
// for a late event, followed by the closures the watermark made eligible, in
// ascending order of window end.
func (e *Engine) Fold(ev *telemetry.TelemetryEvent, wm watermark.Watermark) []*telemetry.AggregateResult {
	e.expireRevisable(wm)

	var out []*telemetry.AggregateResult
	iw := window.AssignWindow(ev.EventTime, e.windowLength)
	if iw.End.After(e.closedFrontier) {
		e.foldOpen(ev, iw)
	} else if revised := e.foldLate(ev, iw, wm); revised != nil {
		out = append(out, revised)
	}

	out = append(out, e.closeWindows(wm)...)
	return out
}

// foldOpen looks up or creates the accumulator of an active window and folds
// the event into it.
func (e *Engine) foldOpen(ev *telemetry.TelemetryEvent, iw window.IntervalWindow) {
	if _, created := e.windower.InsertIfNotPresent(iw); created {
		e.open[iw.Start.UnixMilli()] = NewAccumulator(ev.Location)
		openWindowsGauge.WithLabelValues(e.pipelineName, e.partitionName).Set(float64(e.windower.Len()))
	}
	e.open[iw.Start.UnixMilli()].Fold(ev)
}

// foldLate applies the lateness policy to an event whose window has already
// been closed. It returns a superseding result when the policy permits
// revision, nil otherwise.
func (e *Engine) foldLate(ev *telemetry.TelemetryEvent, iw window.IntervalWindow, wm watermark.Watermark) *telemetry.AggregateResult {
	if e.policy == PolicyDrop {
		e.dropLate(ev, iw, wm, "policy is drop")
		return nil
	}
	// outer bound that guarantees eventual release of closed-window state
	if wm.Time().Sub(iw.End) > e.maxLateDelay {
		e.dropLate(ev, iw, wm, "past the late arrival bound")
		return nil
	}
	cw, ok := e.revisable.Get(iw.End.UnixMilli())
	if !ok {
		e.dropLate(ev, iw, wm, "window no longer revisable")
		return nil
	}
	cw.acc.Fold(ev)
	revisionsCount.WithLabelValues(e.pipelineName, e.partitionName).Inc()
	e.log.Infow("Revising closed window for late event",
		zap.String("window", iw.String()),
		zap.Time("eventTime", ev.EventTime),
		zap.Time("watermark", wm.Time()))
	return cw.acc.Result(iw.End)
}

func (e *Engine) dropLate(ev *telemetry.TelemetryEvent, iw window.IntervalWindow, wm watermark.Watermark, why string) {
	lateDroppedCount.WithLabelValues(e.pipelineName, e.partitionName).Inc()
	e.log.Debugw("Dropping the late event",
		zap.String("window", iw.String()),
		zap.Time("eventTime", ev.EventTime),
		zap.Time("watermark", wm.Time()),
		zap.String("reason", why))
}

// closeWindows closes every active window the watermark has passed and
// returns their results in ascending order of window end.
func (e *Engine) closeWindows(wm watermark.Watermark) []*telemetry.AggregateResult {
	closed := e.windower.RemoveWindows(wm.Time())
	if len(closed) == 0 {
		return nil
	}
	results := make([]*telemetry.AggregateResult, 0, len(closed))
	for _, win := range closed {
		acc := e.open[win.Start.UnixMilli()]
		delete(e.open, win.Start.UnixMilli())
		results = append(results, acc.Result(win.End))
		e.closedFrontier = win.End
		if e.policy == PolicyAdjust {
			e.revisable.Add(win.End.UnixMilli(), &closedWindow{win: win, acc: acc})
		}
		windowsClosedCount.WithLabelValues(e.pipelineName, e.partitionName).Inc()
	}
	openWindowsGauge.WithLabelValues(e.pipelineName, e.partitionName).Set(float64(e.windower.Len()))
	return results
}

// expireRevisable permanently destroys closed windows whose lateness bound
// has elapsed.
func (e *Engine) expireRevisable(wm watermark.Watermark) {
	// Keys are in LRU recency order, not window order, so check every entry.
	for _, end := range e.revisable.Keys() {
		if !time.UnixMilli(end).Add(e.maxLateDelay).After(wm.Time()) {
			e.revisable.Remove(end)
		}
	}
}

// Drain closes the watermark-eligible windows and discards the rest. It is
// called on cooperative shutdown; the discarded windows are the documented
// data-loss boundary, logged rather than silently hidden.
func (e *Engine) Drain(wm watermark.Watermark) []*telemetry.AggregateResult {
	results := e.closeWindows(wm)
	dropped := e.windower.DrainWindows()
	for _, win := range dropped {
		acc := e.open[win.Start.UnixMilli()]
		delete(e.open, win.Start.UnixMilli())
		e.log.Warnw("Dropping window not yet watermark eligible on shutdown",
			zap.String("window", win.String()),
			zap.Int64("pendingReadings", acc.Count()))
	}
	openWindowsGauge.WithLabelValues(e.pipelineName, e.partitionName).Set(0)
	return results
}

// OpenWindows returns the number of currently open windows.
func (e *Engine) OpenWindows() int {
	return e.windower.Len()
}
