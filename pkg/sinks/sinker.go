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

// Package sinks defines the contract between the aggregation pipeline and the
// external result store. Emission is at-least-once: the same result value may
// be written more than once and a revised result overwrites the prior one
// under the same (location, windowEndTime) key.
package sinks

import (
	"context"

	"github.com/canalworks/icestream/pkg/telemetry"
)

// Sinker forwards finished aggregate records to the external store.
type Sinker interface {
	// GetName returns the name of the sink.
	GetName() string
	// Write writes the results to the sink and returns one error slot per
	// result, nil for the ones that were persisted.
	Write(ctx context.Context, results []*telemetry.AggregateResult) []error
	// Close closes the sink connection.
	Close() error
}
