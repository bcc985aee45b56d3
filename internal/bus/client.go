package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with minimal helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, name string, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := []nats.Option{
		nats.Name(name),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) Logger() *slog.Logger {
	return c.log
}

// Report publishes status on the completed or failed subject.
func (c *Client) Report(_ context.Context, status protocol.StitchStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal stitch status: %w", err)
	}
	subject := protocol.SubjectStitchCompleted
	if !status.Completed {
		subject = protocol.SubjectStitchFailed
	}
	return c.conn.Publish(subject, data)
}
