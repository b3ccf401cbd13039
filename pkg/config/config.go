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

// Package config is the configuration surface of the aggregator. Values come
// from a YAML file with ICESTREAM_* environment overrides; windowing
// semantics are fixed at startup, there is no hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/canalworks/icestream/pkg/aggregate"
	"github.com/canalworks/icestream/pkg/sources/natssrc"
)

// DefaultLocations are the registered skateway measurement sites.
var DefaultLocations = []string{"Dow's Lake", "Fifth Avenue", "NAC"}

// BlobConfig configures the NDJSON blob sink.
type BlobConfig struct {
	Root string `json:"root" mapstructure:"root"`
}

// RedisConfig configures the redis upsert sink.
type RedisConfig struct {
	URL string `json:"url" mapstructure:"url"`
}

// SinkConfig selects and configures the result sink.
type SinkConfig struct {
	// Type is one of "blob", "redis", "log".
	Type  string      `json:"type" mapstructure:"type"`
	Blob  BlobConfig  `json:"blob" mapstructure:"blob"`
	Redis RedisConfig `json:"redis" mapstructure:"redis"`
}

// Config is the full configuration of the aggregator.
type Config struct {
	PipelineName           string         `json:"pipelineName" mapstructure:"pipelineName"`
	WindowLength           time.Duration  `json:"windowLength" mapstructure:"windowLength"`
	AllowedOutOfOrderSlack time.Duration  `json:"allowedOutOfOrderSlack" mapstructure:"allowedOutOfOrderSlack"`
	MaxLateArrivalDelay    time.Duration  `json:"maxLateArrivalDelay" mapstructure:"maxLateArrivalDelay"`
	LatenessPolicy         string         `json:"latenessPolicy" mapstructure:"latenessPolicy"`
	Locations              []string       `json:"locations" mapstructure:"locations"`
	Source                 natssrc.Config `json:"source" mapstructure:"source"`
	Sink                   SinkConfig     `json:"sink" mapstructure:"sink"`
	MetricsPort            int            `json:"metricsPort" mapstructure:"metricsPort"`
}

// Policy returns the parsed lateness policy.
func (c *Config) Policy() (aggregate.Policy, error) {
	return aggregate.ParsePolicy(c.LatenessPolicy)
}

// Load reads the configuration file at path (defaults apply when the file is
// absent) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("icestream")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("pipelineName", "skateway")
	v.SetDefault("windowLength", "5m")
	v.SetDefault("allowedOutOfOrderSlack", "5s")
	v.SetDefault("maxLateArrivalDelay", "5s")
	v.SetDefault("latenessPolicy", string(aggregate.PolicyAdjust))
	v.SetDefault("locations", DefaultLocations)
	v.SetDefault("source.url", "nats://localhost:4222")
	v.SetDefault("source.subject", "telemetry.readings")
	v.SetDefault("source.queue", "icestream")
	v.SetDefault("sink.type", "blob")
	v.SetDefault("sink.blob.root", "/var/lib/icestream")
	v.SetDefault("metricsPort", 2469)

	if err := v.ReadInConfig(); err != nil {
		// a missing file falls back to defaults, a malformed one does not
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load configuration file, %w", err)
		}
	}
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration, %w", err)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	if c.WindowLength <= 0 {
		return fmt.Errorf("windowLength must be positive, got %s", c.WindowLength)
	}
	if c.AllowedOutOfOrderSlack < 0 {
		return fmt.Errorf("allowedOutOfOrderSlack must not be negative, got %s", c.AllowedOutOfOrderSlack)
	}
	if c.MaxLateArrivalDelay < 0 {
		return fmt.Errorf("maxLateArrivalDelay must not be negative, got %s", c.MaxLateArrivalDelay)
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("at least one registered location is required")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Sink.Type {
	case "blob", "redis", "log":
	default:
		return fmt.Errorf("unknown sink type %q, must be one of [blob, redis, log]", c.Sink.Type)
	}
	return nil
}
