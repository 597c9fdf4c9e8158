// Package mqtt provides an MQTT transport for sharing received AX.25 frames.
//
// Frames are exchanged as JSON envelopes on the topic "{prefix}/{channel}".
// Each envelope carries the raw frame (FCS included) in base64 together with
// the receiver's signal report, so several receivers can feed one broker and
// every subscriber decodes the same bytes that were heard on air.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix for frames.
	DefaultTopicPrefix = "ax25"

	publishTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
)

var errTokenTimeout = errors.New("timed out waiting for broker")

// Envelope is the JSON message published for each frame. Frame is encoded
// as base64 by encoding/json.
type Envelope struct {
	Frame []byte  `json:"frame"`
	Port  uint8   `json:"port,omitempty"`
	RSSI  int16   `json:"rssi,omitempty"`
	SNR   float32 `json:"snr,omitempty"`
}

// Config holds the configuration for an MQTT transport.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "ax25").
	TopicPrefix string
	// Channel names the shared radio channel (e.g., "144.390"). The transport
	// subscribes to "{TopicPrefix}/{Channel}" and publishes to the same topic.
	Channel string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over MQTT.
type Transport struct {
	cfg          Config
	client       paho.Client
	log          *slog.Logger
	mu           sync.RWMutex
	connected    bool
	frameHandler transport.FrameHandler
	stateHandler transport.StateHandler
	errorHandler transport.ErrorHandler
}

// New creates a new MQTT transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the MQTT broker and begins listening for frames.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if t.cfg.Channel == "" {
		return errors.New("channel is required")
	}

	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = "ax25-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	t.client = paho.NewClient(opts)

	token := t.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(30 * time.Second):
		return errors.New("connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(1000)
		t.connected = false
	}
	return nil
}

// IsConnected returns true if the transport is connected to the broker.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// SetFrameHandler sets the callback for incoming AX.25 frames.
func (t *Transport) SetFrameHandler(fn transport.FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// SetErrorHandler sets the callback for envelopes whose frame fails to decode.
func (t *Transport) SetErrorHandler(fn transport.ErrorHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = fn
}

// SendFrame publishes the frame's raw bytes to the channel topic.
func (t *Transport) SendFrame(frame *codec.Frame) error {
	return t.Publish(frame, transport.RxMeta{})
}

// Publish publishes the frame's raw bytes along with the signal report from
// meta.
func (t *Transport) Publish(frame *codec.Frame, meta transport.RxMeta) error {
	if !t.IsConnected() {
		return errors.New("not connected")
	}

	payload, err := encodeEnvelope(frame, meta)
	if err != nil {
		return err
	}

	if err := awaitToken(t.client.Publish(t.topic(), 0, false, payload), publishTimeout); err != nil {
		return fmt.Errorf("publishing frame: %w", err)
	}
	return nil
}

func encodeEnvelope(frame *codec.Frame, meta transport.RxMeta) ([]byte, error) {
	data, err := json.Marshal(Envelope{
		Frame: frame.Raw,
		Port:  meta.Port,
		RSSI:  meta.RSSI,
		SNR:   meta.SNR,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

func (t *Transport) topic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.Channel
}

// subscribe waits for the broker to acknowledge the channel subscription. A
// refused subscription leaves the transport able to publish but deaf.
func (t *Transport) subscribe() error {
	topic := t.topic()
	if err := awaitToken(t.client.Subscribe(topic, 0, t.handleMessage), subscribeTimeout); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	t.log.Debug("subscribed to channel topic", "topic", topic)
	return nil
}

func awaitToken(token paho.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errTokenTimeout
	}
	return token.Error()
}

func (t *Transport) handleMessage(_ paho.Client, message paho.Message) {
	t.handlePayload(message.Payload())
}

func (t *Transport) handlePayload(payload []byte) {
	t.mu.RLock()
	handler := t.frameHandler
	onErr := t.errorHandler
	t.mu.RUnlock()

	if handler == nil && onErr == nil {
		return
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.log.Debug("failed to decode envelope", "error", err)
		return
	}

	meta := transport.RxMeta{
		Source:     transport.FrameSourceMQTT,
		Port:       env.Port,
		RSSI:       env.RSSI,
		SNR:        env.SNR,
		ReceivedAt: time.Now(),
	}

	frame, err := codec.Decode(env.Frame)
	if err != nil {
		t.log.Debug("failed to decode AX.25 frame", "error", err)
		if onErr != nil {
			onErr(err, meta)
		}
		return
	}

	if handler != nil {
		handler(frame, meta)
	}
}

func (t *Transport) onConnected(_ paho.Client) {
	t.mu.Lock()
	t.connected = true
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Info("connected to MQTT broker", "broker", t.cfg.Broker)
	if err := t.subscribe(); err != nil {
		t.log.Error("no frames will be received from the channel", "error", err)
	}

	if handler != nil {
		handler(t, transport.EventConnected)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}

func (t *Transport) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	t.log.Info("reconnecting to MQTT broker")

	if handler != nil {
		handler(t, transport.EventReconnecting)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
