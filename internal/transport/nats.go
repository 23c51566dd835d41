package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConn wraps one connection used for both the inbound subscription and
// the outbound publisher.
type NATSConn struct {
	nc  *nats.Conn
	log *zap.Logger
}

func NewNATSConn(url string, log *zap.Logger) (*NATSConn, error) {
	opts := []nats.Option{
		nats.Name("fieldops-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSConn{nc: nc, log: log}, nil
}

// Subscribe starts delivering inbound events from the subject to the
// handler. The handler runs on the subscription's dispatch goroutine:
// callbacks for one subscription are serial, which keeps two messages from
// the same chat in arrival order all the way into the session.
func (c *NATSConn) Subscribe(subject string, h Handler) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			c.log.Warn("dropping malformed inbound event", zap.Error(err))
			return
		}
		if ev.ChatID == "" {
			c.log.Warn("dropping inbound event without chat id")
			return
		}
		h(context.Background(), ev)
	})
}

// NATSSender publishes outbound messages to a subject.
type NATSSender struct {
	conn    *NATSConn
	subject string
}

func NewNATSSender(conn *NATSConn, subject string) *NATSSender {
	return &NATSSender{conn: conn, subject: subject}
}

func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	if s.conn.nc == nil || s.conn.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return s.conn.nc.Publish(s.subject, payload)
}

// Close drains the connection so in-flight subscription callbacks finish
// and buffered publishes flush. Drain is asynchronous and closes the
// connection itself when done; Close waits for that, falling back to a hard
// close if the drain errors or stalls.
func (c *NATSConn) Close() {
	if c.nc == nil || c.nc.IsClosed() {
		return
	}
	done := make(chan struct{})
	c.nc.SetClosedHandler(func(*nats.Conn) { close(done) })
	if err := c.nc.Drain(); err != nil {
		c.log.Warn("nats drain", zap.Error(err))
		c.nc.Close()
		return
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.log.Warn("nats drain timed out, closing hard")
		c.nc.Close()
	}
}

var _ Sender = (*NATSSender)(nil)
