// Package realtime streams live power measurements from the Curb real-time
// API, an MQTT broker reachable over WebSockets. The connection parameters
// (broker URL and topic) come from a profile's real-time configuration.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"curbenergy/curb"
)

const (
	connectTimeout    = 30 * time.Second
	disconnectQuiesce = 250 * time.Millisecond
	messageBuffer     = 64
)

// Message is a single real-time sample: a timestamp in epoch milliseconds
// and the instantaneous reading of each register, keyed by register id.
type Message struct {
	Timestamp    int64              `json:"ts"`
	Measurements map[string]float64 `json:"measurements"`
}

// ClientFactory builds the underlying MQTT client. Replaceable for tests.
type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithClientFactory overrides how the underlying MQTT client is constructed.
func WithClientFactory(factory ClientFactory) Option {
	return func(c *Client) {
		c.factory = factory
	}
}

// Client consumes the real-time measurement stream for one profile.
//
// Lifecycle: Connect, range over Messages, Close. Close is safe on any exit
// path, including after a failed Connect.
type Client struct {
	config  curb.RealTimeConfig
	factory ClientFactory

	impl     mqtt.Client
	messages chan Message
}

// New creates a Client for the given real-time configuration, typically
// taken from Profile.RealTime.
func New(config curb.RealTimeConfig, opts ...Option) *Client {
	c := &Client{
		config:   config,
		factory:  mqtt.NewClient,
		messages: make(chan Message, messageBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the connection parameters the client was built with.
func (c *Client) Config() curb.RealTimeConfig {
	return c.config
}

// Connect establishes the broker connection and subscribes to the
// configured topic at QoS 0.
func (c *Client) Connect(ctx context.Context) error {
	if c.config.WebsocketURL == "" {
		return errors.New("realtime config carries no broker URL")
	}
	if c.config.Topic == "" {
		return errors.New("realtime config carries no topic")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(c.config.WebsocketURL).
		SetClientID("curb-" + uuid.NewString()[:8]).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	c.impl = c.factory(opts)

	if err := c.await(ctx, c.impl.Connect()); err != nil {
		return fmt.Errorf("connecting to %s: %w", c.config.WebsocketURL, err)
	}

	if err := c.await(ctx, c.impl.Subscribe(c.config.Topic, 0, c.handleMessage)); err != nil {
		c.impl.Disconnect(uint(disconnectQuiesce.Milliseconds()))
		return fmt.Errorf("subscribing to %s: %w", c.config.Topic, err)
	}

	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.impl != nil && c.impl.IsConnected()
}

// Messages returns the stream of decoded samples. The channel is closed by
// Close.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Close unsubscribes, disconnects from the broker and closes the message
// channel. Safe to call when the client never connected.
func (c *Client) Close() error {
	defer close(c.messages)

	if c.impl == nil {
		return nil
	}
	if c.impl.IsConnected() {
		token := c.impl.Unsubscribe(c.config.Topic)
		if ok := token.WaitTimeout(disconnectQuiesce); ok && token.Error() != nil {
			slog.Warn("unsubscribe failed", "topic", c.config.Topic, "error", token.Error())
		}
	}
	c.impl.Disconnect(uint(disconnectQuiesce.Milliseconds()))
	return nil
}

// handleMessage decodes one broker message and forwards it to the consumer.
// Malformed payloads are logged and dropped; so are samples arriving faster
// than the consumer drains them.
func (c *Client) handleMessage(_ mqtt.Client, raw mqtt.Message) {
	msg, err := decode(raw.Payload())
	if err != nil {
		slog.Warn("dropping malformed realtime message", "topic", raw.Topic(), "error", err)
		return
	}

	select {
	case c.messages <- msg:
	default:
		slog.Debug("dropping realtime message: consumer is behind", "topic", raw.Topic())
	}
}

// await blocks on an MQTT operation until it completes or ctx is done.
func (c *Client) await(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decode parses a broker payload into a Message.
func decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Timestamp == 0 {
		return Message{}, errors.New("message carries no timestamp")
	}
	return msg, nil
}
