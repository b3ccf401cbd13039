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

package watermark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Observe(t *testing.T) {
	slack := 5 * time.Second
	tr := NewTracker("test-pipeline", "Dow's Lake", slack)
	baseTime := time.Unix(1651129200, 0)

	wm := tr.Observe(baseTime)
	assert.True(t, wm.Time().Equal(baseTime.Add(-slack)))

	// later event advances the watermark
	wm = tr.Observe(baseTime.Add(10 * time.Second))
	assert.True(t, wm.Time().Equal(baseTime.Add(5*time.Second)))

	// an out-of-order event never retreats it
	wm = tr.Observe(baseTime.Add(2 * time.Second))
	assert.True(t, wm.Time().Equal(baseTime.Add(5*time.Second)))

	// equal event time does not move it either
	wm = tr.Observe(baseTime.Add(10 * time.Second))
	assert.True(t, wm.Time().Equal(baseTime.Add(5*time.Second)))
}

func TestTracker_GetWatermark(t *testing.T) {
	tr := NewTracker("test-pipeline", "NAC", time.Second)
	// nothing observed yet, the watermark is far in the past
	assert.True(t, tr.GetWatermark().Time().Before(time.Unix(0, 0)))

	eventTime := time.Unix(1651129200, 0)
	tr.Observe(eventTime)
	assert.True(t, tr.GetWatermark().Time().Equal(eventTime.Add(-time.Second)))
}
