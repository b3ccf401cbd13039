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

package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/relvacode/iso8601"
)

// RejectionReason classifies why a raw record was discarded.
type RejectionReason string

const (
	ReasonBadPayload      RejectionReason = "bad_payload"
	ReasonUnknownLocation RejectionReason = "unknown_location"
	ReasonMissingField    RejectionReason = "missing_field"
	ReasonNotFinite       RejectionReason = "not_finite"
	ReasonBadTimestamp    RejectionReason = "bad_timestamp"
)

// ValidationError is returned for records that can never be processed.
// Rejected records are counted and permanently discarded, never retried.
type ValidationError struct {
	Reason RejectionReason
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validator normalizes raw hub records into TelemetryEvents. Records for
// locations outside the registered site set are rejected, not bucketed
// under a default.
type Validator struct {
	locations map[string]struct{}
	now       func() time.Time
}

type ValidatorOption func(*Validator)

// WithClock overrides the ingest-time clock, used in tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator returns a Validator accepting only the given locations.
func NewValidator(locations []string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		locations: make(map[string]struct{}, len(locations)),
		now:       time.Now,
	}
	for _, l := range locations {
		v.locations[l] = struct{}{}
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate parses and checks one raw record. On success it returns the
// normalized event with IngestTime stamped; on failure a *ValidationError.
func (v *Validator) Validate(raw []byte) (*TelemetryEvent, error) {
	var r rawReading
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, v.reject(ReasonBadPayload, err)
	}
	if _, ok := v.locations[r.Location]; !ok {
		return nil, v.reject(ReasonUnknownLocation, fmt.Errorf("location %q is not a registered site", r.Location))
	}
	fields := map[string]*float64{
		"iceThickness":        r.IceThickness,
		"surfaceTemperature":  r.SurfaceTemperature,
		"snowAccumulation":    r.SnowAccumulation,
		"externalTemperature": r.ExternalTemperature,
	}
	for name, f := range fields {
		if f == nil {
			return nil, v.reject(ReasonMissingField, fmt.Errorf("field %q is missing", name))
		}
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			return nil, v.reject(ReasonNotFinite, fmt.Errorf("field %q is not finite", name))
		}
	}
	if r.Timestamp == "" {
		return nil, v.reject(ReasonBadTimestamp, fmt.Errorf("field %q is missing", "timestamp"))
	}
	eventTime, err := iso8601.ParseString(r.Timestamp)
	if err != nil {
		return nil, v.reject(ReasonBadTimestamp, err)
	}
	return &TelemetryEvent{
		Location:            r.Location,
		IceThickness:        *r.IceThickness,
		SurfaceTemperature:  *r.SurfaceTemperature,
		SnowAccumulation:    *r.SnowAccumulation,
		ExternalTemperature: *r.ExternalTemperature,
		EventTime:           eventTime,
		IngestTime:          v.now(),
	}, nil
}

func (v *Validator) reject(reason RejectionReason, err error) error {
	rejectedEventsCount.WithLabelValues(string(reason)).Inc()
	return &ValidationError{Reason: reason, Err: err}
}
