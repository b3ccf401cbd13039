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

// Package sources defines the ingestion contract. A source delivers telemetry
// as opaque byte records; validation happens downstream.
package sources

import (
	"context"
	"time"
)

// RawMessage is one record read from the ingestion hub.
type RawMessage struct {
	// Payload is the raw record, expected to be one JSON object.
	Payload []byte
	// IngestTime is the processing-time arrival of the record.
	IngestTime time.Time
	// Offset identifies the read for logging.
	Offset string
}

// TelemetryReader reads raw telemetry records from the ingestion hub.
type TelemetryReader interface {
	// GetName returns the name of the source.
	GetName() string
	// Read reads up to count records, waiting at most the source's read
	// timeout when fewer are available.
	Read(ctx context.Context, count int64) ([]*RawMessage, error)
	// Close closes the source connection.
	Close() error
}
