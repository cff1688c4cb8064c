package realtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"curbenergy/curb"
)

// doneToken is an mqtt.Token that has already completed.
type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

// stubMQTT fakes the broker side of the paho client.
type stubMQTT struct {
	connectErr   error
	subscribeErr error

	connected    bool
	disconnected bool

	subscribedTopic string
	subscribedQoS   byte
	unsubscribed    []string
	handler         mqtt.MessageHandler
}

var _ mqtt.Client = (*stubMQTT)(nil)

func (s *stubMQTT) IsConnected() bool      { return s.connected }
func (s *stubMQTT) IsConnectionOpen() bool { return s.connected }

func (s *stubMQTT) Connect() mqtt.Token {
	if s.connectErr == nil {
		s.connected = true
	}
	return &doneToken{err: s.connectErr}
}

func (s *stubMQTT) Disconnect(quiesce uint) {
	s.connected = false
	s.disconnected = true
}

func (s *stubMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return &doneToken{}
}

func (s *stubMQTT) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	if s.subscribeErr == nil {
		s.subscribedTopic = topic
		s.subscribedQoS = qos
		s.handler = callback
	}
	return &doneToken{err: s.subscribeErr}
}

func (s *stubMQTT) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &doneToken{}
}

func (s *stubMQTT) Unsubscribe(topics ...string) mqtt.Token {
	s.unsubscribed = append(s.unsubscribed, topics...)
	return &doneToken{}
}

func (s *stubMQTT) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (s *stubMQTT) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// stubMessage is a broker message carrying a fixed payload.
type stubMessage struct {
	payload []byte
}

var _ mqtt.Message = (*stubMessage)(nil)

func (m *stubMessage) Duplicate() bool   { return false }
func (m *stubMessage) Qos() byte         { return 0 }
func (m *stubMessage) Retained() bool    { return false }
func (m *stubMessage) Topic() string     { return "profile/7" }
func (m *stubMessage) MessageID() uint16 { return 1 }
func (m *stubMessage) Payload() []byte   { return m.payload }
func (m *stubMessage) Ack()              {}

func testConfig() curb.RealTimeConfig {
	return curb.RealTimeConfig{
		Topic:        "profile/7",
		Format:       "json",
		WebsocketURL: "wss://broker.example.com/mqtt",
	}
}

func newStubbedClient(config curb.RealTimeConfig, stub *stubMQTT) (*Client, **mqtt.ClientOptions) {
	var captured *mqtt.ClientOptions
	client := New(config, WithClientFactory(func(opts *mqtt.ClientOptions) mqtt.Client {
		captured = opts
		return stub
	}))
	return client, &captured
}

func TestConnectValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		config curb.RealTimeConfig
	}{
		{
			name:   "missing broker URL",
			config: curb.RealTimeConfig{Topic: "profile/7"},
		},
		{
			name:   "missing topic",
			config: curb.RealTimeConfig{WebsocketURL: "wss://broker.example.com/mqtt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.config)
			if err := client.Connect(context.Background()); err == nil {
				t.Fatal("Connect succeeded on incomplete config, want error")
			}
		})
	}
}

func TestConnectSubscribes(t *testing.T) {
	stub := &stubMQTT{}
	client, captured := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	opts := *captured
	if opts == nil {
		t.Fatal("factory never invoked")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "wss://broker.example.com/mqtt" {
		t.Errorf("brokers = %v, want the configured websocket URL", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, "curb-") {
		t.Errorf("client id = %q, want curb- prefix", opts.ClientID)
	}

	if stub.subscribedTopic != "profile/7" {
		t.Errorf("subscribed topic = %q, want %q", stub.subscribedTopic, "profile/7")
	}
	if stub.subscribedQoS != 0 {
		t.Errorf("subscribed QoS = %d, want 0", stub.subscribedQoS)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestConnectFailure(t *testing.T) {
	stub := &stubMQTT{connectErr: errors.New("broker unreachable")}
	client, _ := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded, want broker error")
	}
}

func TestSubscribeFailureDisconnects(t *testing.T) {
	stub := &stubMQTT{subscribeErr: errors.New("not authorized")}
	client, _ := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded, want subscribe error")
	}
	if !stub.disconnected {
		t.Error("broker connection left open after failed subscribe")
	}
}

func TestMessagesAreDecodedAndDelivered(t *testing.T) {
	stub := &stubMQTT{}
	client, _ := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	stub.handler(stub, &stubMessage{payload: []byte(
		`{"ts":1700000000000,"measurements":{"reg-oven":350.5,"reg-lights":12.0}}`,
	)})

	select {
	case msg := <-client.Messages():
		if msg.Timestamp != 1700000000000 {
			t.Errorf("timestamp = %d, want 1700000000000", msg.Timestamp)
		}
		if got := msg.Measurements["reg-oven"]; got != 350.5 {
			t.Errorf("reg-oven = %v, want 350.5", got)
		}
	default:
		t.Fatal("no message delivered")
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	stub := &stubMQTT{}
	client, _ := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for _, payload := range []string{
		`{"ts":`,
		`{"measurements":{"reg-oven":1.0}}`, // no timestamp
		``,
	} {
		stub.handler(stub, &stubMessage{payload: []byte(payload)})
	}

	select {
	case msg := <-client.Messages():
		t.Fatalf("unexpected message %+v from malformed payloads", msg)
	default:
	}
}

func TestCloseUnsubscribesAndClosesStream(t *testing.T) {
	stub := &stubMQTT{}
	client, _ := newStubbedClient(testConfig(), stub)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(stub.unsubscribed) != 1 || stub.unsubscribed[0] != "profile/7" {
		t.Errorf("unsubscribed topics = %v, want [profile/7]", stub.unsubscribed)
	}
	if !stub.disconnected {
		t.Error("broker connection left open after Close")
	}
	if _, ok := <-client.Messages(); ok {
		t.Error("message channel still open after Close")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	client := New(testConfig())
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-client.Messages(); ok {
		t.Error("message channel still open after Close")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		wantTS  int64
	}{
		{
			name:    "valid sample",
			payload: `{"ts":1700000000000,"measurements":{"reg-1":5.0}}`,
			wantTS:  1700000000000,
		},
		{
			name:    "missing timestamp",
			payload: `{"measurements":{"reg-1":5.0}}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{"ts":}`,
			wantErr: true,
		},
		{
			name:    "empty payload",
			payload: ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decode([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("decode succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Timestamp != tt.wantTS {
				t.Errorf("timestamp = %d, want %d", msg.Timestamp, tt.wantTS)
			}
		})
	}
}
