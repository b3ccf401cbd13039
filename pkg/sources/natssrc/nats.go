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

// Package natssrc implements the NATS ingestion source. The hub publishes one
// JSON record per message; the source buffers them and hands them to the
// pipeline in arrival order. Reconnects are handled by the client, so a hub
// outage suspends ingestion without corrupting in-memory state.
package natssrc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/canalworks/icestream/pkg/shared/logging"
	"github.com/canalworks/icestream/pkg/sources"
)

// Config is the connection surface of the source.
type Config struct {
	URL     string `json:"url" mapstructure:"url"`
	Subject string `json:"subject" mapstructure:"subject"`
	// Queue is the queue group; subscribers in the same group share the
	// subject so replicas do not double-read.
	Queue string `json:"queue" mapstructure:"queue"`
}

type natsSource struct {
	name        string
	logger      *zap.SugaredLogger
	natsConn    *natslib.Conn
	sub         *natslib.Subscription
	bufferSize  int
	messages    chan *sources.RawMessage
	readTimeout time.Duration
}

type Option func(*natsSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *natsSource) error {
		o.logger = l
		return nil
	}
}

// WithBufferSize sets the buffer size for storing the messages from nats
func WithBufferSize(s int) Option {
	return func(o *natsSource) error {
		o.bufferSize = s
		return nil
	}
}

// WithReadTimeout sets the read timeout
func WithReadTimeout(t time.Duration) Option {
	return func(o *natsSource) error {
		o.readTimeout = t
		return nil
	}
}

// New connects to the hub and starts buffering records.
func New(ctx context.Context, conf Config, opts ...Option) (sources.TelemetryReader, error) {
	n := &natsSource{
		name:        "nats",
		bufferSize:  1000,            // default size
		readTimeout: 1 * time.Second, // default timeout
		logger:      logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	n.messages = make(chan *sources.RawMessage, n.bufferSize)

	opt := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			n.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			n.logger.Info("Nats reconnected")
		}),
	}

	n.logger.Info("Connecting to nats service...")
	conn, err := natslib.Connect(conf.URL, opt...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server, %w", err)
	}
	n.natsConn = conn

	if sub, err := n.natsConn.QueueSubscribe(conf.Subject, conf.Queue, func(msg *natslib.Msg) {
		m := &sources.RawMessage{
			Payload:    msg.Data,
			IngestTime: time.Now(),
			Offset:     uuid.New().String(),
		}
		n.messages <- m
	}); err != nil {
		n.natsConn.Close()
		return nil, fmt.Errorf("failed to QueueSubscribe nats messages, %w", err)
	} else {
		n.sub = sub
	}
	return n, nil
}

func (ns *natsSource) GetName() string {
	return ns.name
}

func (ns *natsSource) Read(_ context.Context, count int64) ([]*sources.RawMessage, error) {
	var msgs []*sources.RawMessage
	timeout := time.After(ns.readTimeout)
loop:
	for i := int64(0); i < count; i++ {
		select {
		case m := <-ns.messages:
			natsSourceReadCount.WithLabelValues(ns.name).Inc()
			msgs = append(msgs, m)
		case <-timeout:
			ns.logger.Debugw("Timed out waiting for messages to read.", zap.Duration("waited", ns.readTimeout), zap.Int("read", len(msgs)))
			break loop
		}
	}
	ns.logger.Debugf("Read %d messages.", len(msgs))
	return msgs, nil
}

func (ns *natsSource) Close() error {
	ns.logger.Info("Shutting down nats source server...")
	if err := ns.sub.Unsubscribe(); err != nil {
		ns.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
	}
	ns.natsConn.Close()
	ns.logger.Info("Nats source server shutdown")
	return nil
}
