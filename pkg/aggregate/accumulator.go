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
	"time"

	"github.com/canalworks/icestream/pkg/telemetry"
)

// Accumulator holds the running aggregation state of one open window of one
// location. It is owned exclusively by the partition worker and is never read
// externally until emitted.
type Accumulator struct {
	location               string
	sumIceThickness        float64
	sumSurfaceTemperature  float64
	sumExternalTemperature float64
	maxSnowAccumulation    float64
	count                  int64
}

// NewAccumulator returns an empty Accumulator for the location.
func NewAccumulator(location string) *Accumulator {
	return &Accumulator{location: location}
}

// Fold folds one event into the accumulator. Sum, count and max updates are
// plain assignments, so a fold is all-or-nothing and O(1).
func (a *Accumulator) Fold(ev *telemetry.TelemetryEvent) {
	if a.count == 0 || ev.SnowAccumulation > a.maxSnowAccumulation {
		a.maxSnowAccumulation = ev.SnowAccumulation
	}
	a.sumIceThickness += ev.IceThickness
	a.sumSurfaceTemperature += ev.SurfaceTemperature
	a.sumExternalTemperature += ev.ExternalTemperature
	a.count++
}

// Count returns the number of folded events.
func (a *Accumulator) Count() int64 {
	return a.count
}

// Result computes the immutable AggregateResult of the accumulator for the
// given window end. It must not be called on an empty accumulator; windows
// with zero folded events do not exist.
func (a *Accumulator) Result(windowEnd time.Time) *telemetry.AggregateResult {
	n := float64(a.count)
	return &telemetry.AggregateResult{
		Location:               a.location,
		WindowEndTime:          windowEnd.UTC(),
		AvgIceThickness:        a.sumIceThickness / n,
		MaxSnowAccumulation:    a.maxSnowAccumulation,
		AvgSurfaceTemperature:  a.sumSurfaceTemperature / n,
		AvgExternalTemperature: a.sumExternalTemperature / n,
		NumberOfReadings:       a.count,
	}
}
