// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the relay server and its out-of-process collaborators: the audit
// archiver consuming abuse events and the feedback service consuming user
// feedback. It handles connection lifecycle and subject-based subscriptions.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the relay.
const (
	SubjectAbuseReport = "abuse.report"
	SubjectAbuseBan    = "abuse.ban"
	SubjectFeedback    = "feedback.submitted"
)

// ReportEvent is published on every accepted (non-duplicate) abuse report.
type ReportEvent struct {
	TargetID   string `json:"target_id"`
	ReporterID string `json:"reporter_id"`
	Count      int    `json:"count"` // distinct reporters so far
	Ts         int64  `json:"ts"`
}

// BanEvent is published when the report threshold bans a user.
type BanEvent struct {
	TargetID  string   `json:"target_id"`
	Reporters []string `json:"reporters"`
	Ts        int64    `json:"ts"`
}

// FeedbackEvent carries user-submitted feedback, opaque to the relay.
type FeedbackEvent struct {
	ConnID string `json:"conn_id"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "knocktalk-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishReport publishes an abuse report event. It satisfies the hub's
// Events contract; failures are logged and absorbed since the relay's state
// change must not depend on delivery.
func (c *Client) PublishReport(targetID, reporterID string, count int) {
	c.publishJSON(SubjectAbuseReport, ReportEvent{
		TargetID:   targetID,
		ReporterID: reporterID,
		Count:      count,
		Ts:         time.Now().Unix(),
	})
}

// PublishBan publishes a ban event.
func (c *Client) PublishBan(targetID string, reporters []string) {
	c.publishJSON(SubjectAbuseBan, BanEvent{
		TargetID:  targetID,
		Reporters: reporters,
		Ts:        time.Now().Unix(),
	})
}

// PublishFeedback forwards user feedback to the feedback service.
func (c *Client) PublishFeedback(connID, text string) {
	c.publishJSON(SubjectFeedback, FeedbackEvent{
		ConnID: connID,
		Text:   text,
		Ts:     time.Now().Unix(),
	})
}

func (c *Client) publishJSON(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// SubscribeReports subscribes to abuse report events.
func (c *Client) SubscribeReports(handler func(data []byte)) error {
	return c.Subscribe(SubjectAbuseReport, handler)
}

// SubscribeBans subscribes to ban events.
func (c *Client) SubscribeBans(handler func(data []byte)) error {
	return c.Subscribe(SubjectAbuseBan, handler)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
