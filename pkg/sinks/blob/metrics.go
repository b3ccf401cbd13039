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

package blob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/canalworks/icestream/pkg/metrics"
)

// blobSinkWriteCount is used to indicate the number of result rows written to the blob sink
var blobSinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "blob_sink",
	Name:      "write_total",
	Help:      "Total number of result rows written to the blob sink",
}, []string{metrics.LabelSink})
