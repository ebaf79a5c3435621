package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var ErrMQTTNotConnected = errors.New("mqtt not connected")

// publisher is the part of mqtt.Client the notifier needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes operator messages to a broker topic; a bridge forwards them to the phone.
type MQTTNotifier struct {
	sender
	client    publisher
	topic     string
	recipient string
	logger    *logger.Logger

	mu        sync.RWMutex
	connected bool
}

type mqttEnvelope struct {
	ID        string `json:"id"`
	To        string `json:"to,omitempty"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewMQTTNotifier connects to the configured broker.
func NewMQTTNotifier(ctx context.Context, config *config.Config, logger *logger.Logger) (*MQTTNotifier, error) {
	n := &MQTTNotifier{
		topic:     config.MQTTTopic,
		recipient: config.TwilioToNumber,
		logger:    logger,
	}
	n.sender = sender{send: n.send}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", config.MQTTBroker))
	opts.SetClientID("camwatch-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		logger.Info("MQTT connection established: broker=%s", config.MQTTBroker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		logger.Warning("MQTT connection lost, will auto-reconnect: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	n.client = client
	n.setConnected(true)
	return n, nil
}

func newMQTTNotifierWithClient(client publisher, topic, recipient string, logger *logger.Logger) *MQTTNotifier {
	n := &MQTTNotifier{
		client:    client,
		topic:     topic,
		recipient: recipient,
		logger:    logger,
		connected: true,
	}
	n.sender = sender{send: n.send}
	return n
}

func (n *MQTTNotifier) send(ctx context.Context, msg Message) error {
	if !n.isConnected() {
		return ErrMQTTNotConnected
	}

	payload, err := json.Marshal(mqttEnvelope{
		ID:        uuid.NewString(),
		To:        n.recipient,
		Kind:      msg.Kind,
		Body:      msg.Body,
		MediaURL:  msg.MediaURL,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", n.topic, msg.Kind)
	token := n.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	n.logger.Info("MQTT %s message published to %s", msg.Kind, topic)
	return nil
}

// Disconnect closes the broker connection if there is one.
func (n *MQTTNotifier) Disconnect() {
	if client, ok := n.client.(mqtt.Client); ok && client.IsConnected() {
		client.Disconnect(250)
		n.logger.Info("MQTT disconnected")
	}
	n.setConnected(false)
}

func (n *MQTTNotifier) setConnected(connected bool) {
	n.mu.Lock()
	n.connected = connected
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

var _ Notifier = (*MQTTNotifier)(nil)
