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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/canalworks/icestream/pkg/metrics"
)

var (
	// windowsClosedCount is used to indicate the number of windows closed and emitted
	windowsClosedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "aggregate",
		Name:      "windows_closed_total",
		Help:      "Total number of windows closed and emitted",
	}, []string{metrics.LabelPipeline, metrics.LabelPartition})

	// revisionsCount is used to indicate the number of superseding emissions for late events
	revisionsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "aggregate",
		Name:      "revisions_total",
		Help:      "Total number of revised emissions caused by late events",
	}, []string{metrics.LabelPipeline, metrics.LabelPartition})

	// lateDroppedCount is used to indicate the number of late events discarded
	lateDroppedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "aggregate",
		Name:      "late_dropped_total",
		Help:      "Total number of late events dropped",
	}, []string{metrics.LabelPipeline, metrics.LabelPartition})

	// openWindowsGauge is the number of currently open windows
	openWindowsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "aggregate",
		Name:      "open_windows",
		Help:      "Number of currently open windows",
	}, []string{metrics.LabelPipeline, metrics.LabelPartition})
)
