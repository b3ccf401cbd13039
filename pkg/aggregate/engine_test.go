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

package aggregate

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canalworks/icestream/pkg/watermark"
)

const (
	testPipeline = "test-pipeline"
	testWindow   = 5 * time.Minute
	testMaxLate  = 5 * time.Second
)

// baseTime is aligned to a 5 minute window boundary
var baseTime = time.Unix(1651129200, 0)

func newTestEngine(t *testing.T, partition string, policy Policy) *Engine {
	t.Helper()
	return NewEngine(testPipeline, partition, testWindow, testMaxLate, policy, zaptest.NewLogger(t).Sugar())
}

func wmAt(t time.Time) watermark.Watermark {
	return watermark.Watermark(t)
}

func TestEngine_FoldAndClose(t *testing.T) {
	e := newTestEngine(t, "Dow's Lake", PolicyAdjust)

	ice := []float64{27.0, 28.0, 29.0}
	snow := []float64{8.0, 9.0, 7.5}
	for i := 0; i < 3; i++ {
		ev := testEvent("Dow's Lake", baseTime.Add(time.Duration(i+1)*time.Minute), ice[i], -5.0, snow[i], -10.0)
		out := e.Fold(ev, wmAt(ev.EventTime.Add(-testMaxLate)))
		assert.Empty(t, out, "window must not close before the watermark passes its end")
	}
	assert.Equal(t, 1, e.OpenWindows())

	// an event in the next window advances the watermark past the first end
	closing := testEvent("Dow's Lake", baseTime.Add(6*time.Minute), 30.0, -5.0, 1.0, -10.0)
	out := e.Fold(closing, wmAt(baseTime.Add(5*time.Minute)))
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, "Dow's Lake", r.Location)
	assert.True(t, r.WindowEndTime.Equal(baseTime.Add(5*time.Minute)))
	assert.Equal(t, 28.0, r.AvgIceThickness)
	assert.Equal(t, 9.0, r.MaxSnowAccumulation)
	assert.Equal(t, int64(3), r.NumberOfReadings)
	assert.Equal(t, 1, e.OpenWindows())
}

func TestEngine_ClosesInOrder(t *testing.T) {
	e := newTestEngine(t, "NAC", PolicyDrop)

	// two consecutive windows, filled out of order
	e.Fold(testEvent("NAC", baseTime.Add(6*time.Minute), 20.0, 0, 0, 0), wmAt(baseTime.Add(time.Minute)))
	e.Fold(testEvent("NAC", baseTime.Add(1*time.Minute), 22.0, 0, 0, 0), wmAt(baseTime.Add(time.Minute)))

	out := e.Fold(testEvent("NAC", baseTime.Add(11*time.Minute), 24.0, 0, 0, 0), wmAt(baseTime.Add(10*time.Minute)))
	require.Len(t, out, 2)
	assert.True(t, out[0].WindowEndTime.Before(out[1].WindowEndTime))
	assert.Equal(t, 22.0, out[0].AvgIceThickness)
	assert.Equal(t, 20.0, out[1].AvgIceThickness)
}

func TestEngine_AdjustRevisesClosedWindow(t *testing.T) {
	e := newTestEngine(t, "Fifth Avenue", PolicyAdjust)

	for i := 0; i < 3; i++ {
		ev := testEvent("Fifth Avenue", baseTime.Add(time.Duration(i+1)*time.Minute), 20.0, 0, 5.0, 0)
		e.Fold(ev, wmAt(ev.EventTime))
	}
	out := e.Fold(testEvent("Fifth Avenue", baseTime.Add(6*time.Minute), 25.0, 0, 0, 0), wmAt(baseTime.Add(5*time.Minute)))
	require.Len(t, out, 1)
	first := out[0]
	assert.Equal(t, int64(3), first.NumberOfReadings)

	// late event within the lateness bound re-opens and supersedes
	late := testEvent("Fifth Avenue", baseTime.Add(4*time.Minute), 26.0, 0, 12.0, 0)
	out = e.Fold(late, wmAt(baseTime.Add(5*time.Minute)))
	require.Len(t, out, 1)
	revised := out[0]
	assert.True(t, revised.WindowEndTime.Equal(first.WindowEndTime), "revision must target the same key")
	assert.Greater(t, revised.NumberOfReadings, first.NumberOfReadings)
	assert.Equal(t, int64(4), revised.NumberOfReadings)
	assert.Equal(t, 12.0, revised.MaxSnowAccumulation)
}

func TestEngine_AdjustDropsPastLatenessBound(t *testing.T) {
	e := newTestEngine(t, "Dow's Lake", PolicyAdjust)
	dropped := testutil.ToFloat64(lateDroppedCount.WithLabelValues(testPipeline, "Dow's Lake"))

	e.Fold(testEvent("Dow's Lake", baseTime.Add(time.Minute), 20.0, 0, 0, 0), wmAt(baseTime.Add(time.Minute)))
	out := e.Fold(testEvent("Dow's Lake", baseTime.Add(6*time.Minute), 25.0, 0, 0, 0), wmAt(baseTime.Add(5*time.Minute)))
	require.Len(t, out, 1)

	// watermark has moved a minute past the closed window's end, far beyond
	// the 5s bound; the late event must never mutate the result
	late := testEvent("Dow's Lake", baseTime.Add(2*time.Minute), 99.0, 0, 99.0, 0)
	out = e.Fold(late, wmAt(baseTime.Add(6*time.Minute)))
	assert.Empty(t, out)
	assert.Equal(t, dropped+1, testutil.ToFloat64(lateDroppedCount.WithLabelValues(testPipeline, "Dow's Lake")))
}

func TestEngine_DropPolicy(t *testing.T) {
	e := newTestEngine(t, "NAC", PolicyDrop)
	dropped := testutil.ToFloat64(lateDroppedCount.WithLabelValues(testPipeline, "NAC"))

	e.Fold(testEvent("NAC", baseTime.Add(time.Minute), 20.0, 0, 0, 0), wmAt(baseTime.Add(time.Minute)))
	out := e.Fold(testEvent("NAC", baseTime.Add(6*time.Minute), 25.0, 0, 0, 0), wmAt(baseTime.Add(5*time.Minute)))
	require.Len(t, out, 1)

	// 20 seconds after the watermark passed the close, maxLateArrivalDelay=5s:
	// discarded, no re-emission, late-drop counter up by one
	late := testEvent("NAC", baseTime.Add(4*time.Minute), 99.0, 0, 99.0, 0)
	out = e.Fold(late, wmAt(baseTime.Add(5*time.Minute+20*time.Second)))
	assert.Empty(t, out)
	assert.Equal(t, dropped+1, testutil.ToFloat64(lateDroppedCount.WithLabelValues(testPipeline, "NAC")))

	// even a late event within the delay is dropped under this policy
	late = testEvent("NAC", baseTime.Add(4*time.Minute+59*time.Second), 99.0, 0, 99.0, 0)
	out = e.Fold(late, wmAt(baseTime.Add(5*time.Minute+20*time.Second)))
	assert.Empty(t, out)
	assert.Equal(t, dropped+2, testutil.ToFloat64(lateDroppedCount.WithLabelValues(testPipeline, "NAC")))
}

func TestEngine_Drain(t *testing.T) {
	e := newTestEngine(t, "Fifth Avenue", PolicyAdjust)

	e.Fold(testEvent("Fifth Avenue", baseTime.Add(time.Minute), 20.0, 0, 0, 0), wmAt(baseTime.Add(time.Minute)))
	e.Fold(testEvent("Fifth Avenue", baseTime.Add(7*time.Minute), 30.0, 0, 0, 0), wmAt(baseTime.Add(4*time.Minute)))
	assert.Equal(t, 2, e.OpenWindows())

	// the first window is watermark eligible and flushes, the second is
	// dropped as the documented shutdown data-loss boundary
	results := e.Drain(wmAt(baseTime.Add(6 * time.Minute)))
	require.Len(t, results, 1)
	assert.Equal(t, 20.0, results[0].AvgIceThickness)
	assert.Equal(t, 0, e.OpenWindows())

	// nothing left to emit
	assert.Empty(t, e.Drain(wmAt(baseTime.Add(20*time.Minute))))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("adjust")
	assert.NoError(t, err)
	assert.Equal(t, PolicyAdjust, p)

	p, err = ParsePolicy("Drop")
	assert.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	_, err = ParsePolicy("keep")
	assert.Error(t, err)
}
