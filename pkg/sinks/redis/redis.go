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

// Package redis implements a sink that upserts results into Redis hashes, one
// hash per location with the window end time as the field. A revised result
// for the same (location, windowEndTime) key overwrites the prior emission,
// which makes the supersede semantics of the adjust policy directly
// observable to consumers.
package redis

import (
	"context"
	"fmt"

	redislib "github.com/redis/go-redis/v9"

	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/telemetry"
)

const defaultKeyPrefix = "icestream:results"

// ToRedis writes results to Redis hashes keyed by location.
type ToRedis struct {
	name      string
	keyPrefix string
	client    redislib.UniversalClient
}

type Option func(*ToRedis)

// WithKeyPrefix overrides the hash key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(t *ToRedis) {
		t.keyPrefix = prefix
	}
}

// NewToRedis returns a redis sink using the given client.
func NewToRedis(client redislib.UniversalClient, opts ...Option) *ToRedis {
	t := &ToRedis{
		name:      "redis",
		keyPrefix: defaultKeyPrefix,
		client:    client,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

var _ sinks.Sinker = (*ToRedis)(nil)

// GetName returns the name.
func (t *ToRedis) GetName() string {
	return t.name
}

// Write upserts each result under (location, windowEndTime). Rewriting an
// unchanged result is a no-op from the consumer's perspective.
func (t *ToRedis) Write(ctx context.Context, results []*telemetry.AggregateResult) []error {
	errs := make([]error, len(results))
	cmds := make([]*redislib.IntCmd, len(results))
	_, pipeErr := t.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
		for i, r := range results {
			row, err := r.Marshal()
			if err != nil {
				errs[i] = err
				continue
			}
			key := fmt.Sprintf("%s:%s", t.keyPrefix, r.Location)
			cmds[i] = pipe.HSet(ctx, key, r.WindowEndTime.Format("2006-01-02T15:04:05Z07:00"), row)
		}
		return nil
	})
	for i, cmd := range cmds {
		if errs[i] != nil {
			continue
		}
		switch {
		case cmd == nil:
			errs[i] = pipeErr
		case cmd.Err() != nil:
			errs[i] = cmd.Err()
		default:
			redisSinkWriteCount.WithLabelValues(t.name).Inc()
		}
	}
	return errs
}

func (t *ToRedis) Close() error {
	return t.client.Close()
}
