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

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	redislib "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/canalworks/icestream/pkg/config"
	"github.com/canalworks/icestream/pkg/metrics"
	"github.com/canalworks/icestream/pkg/pipeline"
	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sinks"
	"github.com/canalworks/icestream/pkg/sinks/blob"
	"github.com/canalworks/icestream/pkg/sinks/logger"
	redissink "github.com/canalworks/icestream/pkg/sinks/redis"
	"github.com/canalworks/icestream/pkg/sources/natssrc"
)

func NewAggregatorCommand() *cobra.Command {
	var configPath string

	command := &cobra.Command{
		Use:   "aggregator",
		Short: "Start the windowed aggregation pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("aggregator")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}
			policy, err := conf.Policy()
			if err != nil {
				return err
			}
			log = log.With("pipeline", conf.PipelineName)
			log.Infow("Starting aggregator",
				"windowLength", conf.WindowLength.String(),
				"allowedOutOfOrderSlack", conf.AllowedOutOfOrderSlack.String(),
				"maxLateArrivalDelay", conf.MaxLateArrivalDelay.String(),
				"latenessPolicy", string(policy),
				"sink", conf.Sink.Type)

			ms := metrics.NewMetricsServer(metrics.WithPort(conf.MetricsPort))
			shutdown, err := ms.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start metrics server, %w", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			reader, err := natssrc.New(ctx, conf.Source, natssrc.WithLogger(log.Named("source")))
			if err != nil {
				return err
			}
			defer func() { _ = reader.Close() }()

			sinker, err := buildSinker(conf)
			if err != nil {
				return err
			}
			defer func() { _ = sinker.Close() }()

			opts := pipeline.DefaultOptions()
			opts.WindowLength = conf.WindowLength
			opts.AllowedSlack = conf.AllowedOutOfOrderSlack
			opts.MaxLateDelay = conf.MaxLateArrivalDelay
			opts.Policy = policy

			p, err := pipeline.New(ctx, conf.PipelineName, reader, sinker, conf.Locations, opts)
			if err != nil {
				return err
			}
			if err := p.Run(ctx); err != nil {
				return fmt.Errorf("pipeline exited abnormally, %w", err)
			}
			log.Info("Aggregator shut down cleanly")
			return nil
		},
	}
	command.Flags().StringVar(&configPath, "config", "/etc/icestream/config.yaml", "Path to the configuration file")
	return command
}

func buildSinker(conf *config.Config) (sinks.Sinker, error) {
	switch conf.Sink.Type {
	case "blob":
		return blob.NewToBlob(conf.Sink.Blob.Root)
	case "redis":
		redisOpts, err := redislib.ParseURL(conf.Sink.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url, %w", err)
		}
		return redissink.NewToRedis(redislib.NewClient(redisOpts)), nil
	case "log":
		return logger.NewToLog(), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", conf.Sink.Type)
	}
}
