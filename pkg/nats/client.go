package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

const (
	clientName    = "sokolink-outbox"
	maxReconnects = 10
	reconnectWait = 2 * time.Second
	streamBytes   = 1 << 30
)

// Client wraps a NATS connection with JetStream support.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  config.NATSConfig
	logg *logger.Logger
}

// New connects to NATS and opens a JetStream context.
func New(ctx context.Context, cfg config.NATSConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}
	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logg != nil && err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "url", c.ConnectedUrl()), "nats reconnected")
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "url", conn.ConnectedUrl()), "nats connection established")
	}

	return &Client{conn: conn, js: js, cfg: cfg, logg: logg}, nil
}

// EnsureStream creates or updates the event stream so that every subject
// under the configured prefix is retained for MaxAge.
func (c *Client) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	if c == nil || c.js == nil {
		return nil, errors.New("nats client not initialized")
	}
	maxAge := c.cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	streamCfg := jetstream.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.SubjectPrefix + ".>"},
		MaxAge:    maxAge,
		MaxBytes:  streamBytes,
		Replicas:  1,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
	stream, err := c.js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("creating/updating stream %s: %w", c.cfg.Stream, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"stream":   c.cfg.Stream,
			"subjects": streamCfg.Subjects,
		}), "nats stream ensured")
	}
	return stream, nil
}

// Subject maps a logical topic and event type onto the stream's subject space.
func Subject(prefix, topic, eventType string) string {
	return strings.Join([]string{prefix, topic, eventType}, ".")
}

// Publisher returns a topic-bound publisher.
func (c *Client) Publisher(topic string) *Publisher {
	if c == nil || c.js == nil || strings.TrimSpace(topic) == "" {
		return nil
	}
	return &Publisher{js: c.js, prefix: c.cfg.SubjectPrefix, topic: topic}
}

// Ping reports whether the connection is currently usable.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("nats client not initialized")
	}
	if !c.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.conn.Close()
	return nil
}

type jetStreamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher publishes outbox payloads to JetStream with broker-side
// deduplication on the message id.
type Publisher struct {
	js     jetStreamPublisher
	prefix string
	topic  string
}

// Publish sends data with headers. msgID becomes the Nats-Msg-Id header.
func (p *Publisher) Publish(ctx context.Context, eventType, msgID string, data []byte, headers map[string]string) (uint64, error) {
	if p == nil || p.js == nil {
		return 0, errors.New("nats publisher not initialized")
	}
	msg := nats.NewMsg(Subject(p.prefix, p.topic, eventType))
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return 0, fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	return ack.Sequence, nil
}
