// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Config configures the NATS publisher.
type Config struct {
	// URL of an external NATS server. Ignored when Embedded is set.
	URL string

	// Embedded starts an in-process server on a random port.
	Embedded bool

	// SubjectPrefix is prepended to the lower-cased status.
	SubjectPrefix string

	Logger *slog.Logger
}

// NATSPublisher publishes events as JSON on "<prefix>.<status>".
type NATSPublisher struct {
	conn   *nats.Conn
	server *server.Server
	prefix string
	logger *slog.Logger
}

// Connect dials NATS (starting an embedded server first if configured).
func Connect(ctx context.Context, cfg Config) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "areas.executions"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &NATSPublisher{prefix: cfg.SubjectPrefix, logger: logger}

	url := cfg.URL
	if cfg.Embedded {
		ns, err := server.NewServer(&server.Options{
			Port:   -1,
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}
		p.server = ns
		url = ns.ClientURL()
	}

	conn, err := nats.Connect(url,
		nats.Name("areas"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		if p.server != nil {
			p.server.Shutdown()
		}
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p.conn = conn

	return p, nil
}

// URL returns the server URL the publisher is connected to.
func (p *NATSPublisher) URL() string {
	return p.conn.ConnectedUrl()
}

// Subject returns the subject used for a status.
func (p *NATSPublisher) Subject(status string) string {
	return p.prefix + "." + strings.ToLower(status)
}

// Publish implements Publisher. Trace context travels in message headers.
func (p *NATSPublisher) Publish(ctx context.Context, ev ExecutionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal execution event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(ev.Status))
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close drains the connection and stops the embedded server, if any.
func (p *NATSPublisher) Close() error {
	var err error
	if p.conn != nil {
		err = p.conn.Drain()
	}
	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
	}
	return err
}
