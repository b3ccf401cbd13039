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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelPipeline  = "pipeline"
	LabelPartition = "partition"
	LabelReason    = "reason"
	LabelSink      = "sink"
	LabelPolicy    = "policy"
)

// Generic pipeline metrics
var (
	// ReadMessagesCount is used to indicate the number of total raw records read from the source
	ReadMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "read_total",
		Help:      "Total number of raw records read",
	}, []string{LabelPipeline, LabelPartition})

	// ReadMessagesError is used to indicate the number of source read errors
	ReadMessagesError = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "read_error_total",
		Help:      "Total number of source read errors",
	}, []string{LabelPipeline, LabelPartition})

	// PartitionWatermark is the current event-time watermark of a partition, in unix milliseconds
	PartitionWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "pipeline",
		Name:      "watermark",
		Help:      "Current watermark of the partition in unix milliseconds",
	}, []string{LabelPipeline, LabelPartition})
)
