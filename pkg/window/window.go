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

// Package window implements tumbling windows. Tumbling windows are defined by a static
// window size, e.g. minutely windows or 5-minute windows. They are aligned, i.e. every
// window applies across all the data for the corresponding period of time, they do not
// overlap and they leave no gaps.
package window

import (
	"fmt"
	"time"
)

// IntervalWindow is a half-open [Start, End) event-time interval.
type IntervalWindow struct {
	Start time.Time
	End   time.Time
}

// AssignWindow assigns a window for the given eventTime.
// Assignment follows a left inclusive and right exclusive principle. Since we
// use truncate here, it is guaranteed that any element on the boundary will
// automatically fall in to the window to the right of the boundary.
func AssignWindow(eventTime time.Time, length time.Duration) IntervalWindow {
	start := eventTime.Truncate(length)
	return IntervalWindow{
		Start: start,
		End:   start.Add(length),
	}
}

// Contains returns whether the eventTime falls within the window.
func (iw IntervalWindow) Contains(eventTime time.Time) bool {
	return !eventTime.Before(iw.Start) && eventTime.Before(iw.End)
}

func (iw IntervalWindow) String() string {
	return fmt.Sprintf("[%s, %s)", iw.Start.Format(time.RFC3339), iw.End.Format(time.RFC3339))
}
