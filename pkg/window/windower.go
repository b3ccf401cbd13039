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

package window

import (
	"container/list"
	"time"
)

// Windower tracks the set of active windows of a single partition.
// All the operations order the entries in the ascending order of start time,
// so the earliest window is at the front and the most recent at the back.
// Because most events are expected to belong to the most recent window, Get
// and Insert traverse from the tail; Remove traverses from the head since the
// earlier windows close before the more recent ones.
//
// A Windower is exclusively owned by its partition worker and is not safe for
// concurrent use.
type Windower struct {
	// Length is the temporal length of each window.
	Length  time.Duration
	entries *list.List
}

// NewWindower returns a Windower for tumbling windows of the given length.
func NewWindower(length time.Duration) *Windower {
	return &Windower{
		Length:  length,
		entries: list.New(),
	}
}

// InsertIfNotPresent inserts the window into the active list if it is not
// already tracked, keeping the list sorted by start time. It returns the
// tracked window and whether it was newly created.
func (w *Windower) InsertIfNotPresent(iw IntervalWindow) (IntervalWindow, bool) {
	if w.entries.Len() == 0 {
		w.entries.PushFront(iw)
		return iw, true
	}

	earliest := w.entries.Front().Value.(IntervalWindow)
	recent := w.entries.Back().Value.(IntervalWindow)

	switch {
	case !earliest.Start.Before(iw.End):
		// out-of-order arrival earlier than anything tracked
		w.entries.PushFront(iw)
		return iw, true
	case !recent.End.After(iw.Start):
		w.entries.PushBack(iw)
		return iw, true
	default:
		for e := w.entries.Back(); e != nil; e = e.Prev() {
			win := e.Value.(IntervalWindow)
			if win.Start.Equal(iw.Start) {
				return win, false
			}
			if win.End.Before(iw.End) {
				w.entries.InsertAfter(iw, e)
				return iw, true
			}
		}
		// unreachable as the earliest case is handled above
		w.entries.PushFront(iw)
		return iw, true
	}
}

// RemoveWindows removes and returns all windows whose end time is not after
// the watermark, in ascending order of end time. These are the windows
// eligible for closure.
func (w *Windower) RemoveWindows(wm time.Time) []IntervalWindow {
	var closed []IntervalWindow
	for e := w.entries.Front(); e != nil; {
		win := e.Value.(IntervalWindow)
		if win.End.After(wm) {
			// entries are sorted, nothing later can be eligible
			break
		}
		next := e.Next()
		w.entries.Remove(e)
		closed = append(closed, win)
		e = next
	}
	return closed
}

// DrainWindows removes and returns every active window regardless of the
// watermark, in ascending order of end time. Used during shutdown.
func (w *Windower) DrainWindows() []IntervalWindow {
	var all []IntervalWindow
	for e := w.entries.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(IntervalWindow))
	}
	w.entries.Init()
	return all
}

// OldestWindowEnd returns the end time of the earliest active window, or the
// zero time when no window is active.
func (w *Windower) OldestWindowEnd() time.Time {
	if w.entries.Len() == 0 {
		return time.Time{}
	}
	return w.entries.Front().Value.(IntervalWindow).End
}

// Len returns the number of active windows.
func (w *Windower) Len() int {
	return w.entries.Len()
}
