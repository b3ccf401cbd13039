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

// Package telemetry holds the data model of the pipeline. A TelemetryEvent is a single
// validated sensor reading, an AggregateResult is one finished per-window summary.
package telemetry

import (
	"time"

	"github.com/goccy/go-json"
)

// TelemetryEvent is a validated sensor reading from one of the registered
// skateway locations.
type TelemetryEvent struct {
	Location            string
	IceThickness        float64
	SurfaceTemperature  float64
	SnowAccumulation    float64
	ExternalTemperature float64
	// EventTime is the producer assigned timestamp; it may arrive out of order
	// relative to other events of the same location.
	EventTime time.Time
	// IngestTime is the processing time arrival, non-decreasing per partition.
	IngestTime time.Time
}

// AggregateResult is one finished window summary for a location. It is immutable
// once handed to a sink; a late-arrival revision supersedes it under the same
// (location, windowEndTime) key.
type AggregateResult struct {
	Location               string    `json:"location"`
	WindowEndTime          time.Time `json:"windowEndTime"`
	AvgIceThickness        float64   `json:"avgIceThickness"`
	MaxSnowAccumulation    float64   `json:"maxSnowAccumulation"`
	AvgSurfaceTemperature  float64   `json:"avgSurfaceTemperature"`
	AvgExternalTemperature float64   `json:"avgExternalTemperature"`
	NumberOfReadings       int64     `json:"numberOfReadings"`
}

// Marshal returns the result as a single JSON object, the row format of the
// newline-delimited sink blobs.
func (r *AggregateResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// rawReading is the wire shape delivered by the ingestion hub. Numeric fields
// are pointers so that an absent field can be told apart from a zero value.
type rawReading struct {
	Location            string   `json:"location"`
	IceThickness        *float64 `json:"iceThickness"`
	SurfaceTemperature  *float64 `json:"surfaceTemperature"`
	SnowAccumulation    *float64 `json:"snowAccumulation"`
	ExternalTemperature *float64 `json:"externalTemperature"`
	Timestamp           string   `json:"timestamp"`
}
