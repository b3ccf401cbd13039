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

// Package logger implements a sink that prints results instead of storing
// them. Useful for local runs and debugging.
package logger

import (
	"context"
	"log"

	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/telemetry"
)

// ToLog prints the output to a log sink.
type ToLog struct {
	name string
}

// NewToLog returns ToLog type.
func NewToLog() *ToLog {
	return &ToLog{name: "log"}
}

var _ sinks.Sinker = (*ToLog)(nil)

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Write writes to the log.
func (t *ToLog) Write(_ context.Context, results []*telemetry.AggregateResult) []error {
	prefix := "(" + t.GetName() + ")"
	for _, r := range results {
		row, err := r.Marshal()
		if err != nil {
			continue
		}
		log.Println(prefix, " Result - ", string(row))
	}
	return make([]error, len(results))
}

func (t *ToLog) Close() error {
	return nil
}
