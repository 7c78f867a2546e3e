// Package mqtt bridges the assistant to an MQTT broker. Questions
// arrive on <prefix>/ask/<conversation>, replies go out on
// <prefix>/reply/<conversation>, and a retained status topic carries
// online/offline with a broker-side will for unclean exits.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/kahyalabs/kahya/internal/assistant"
	"github.com/kahyalabs/kahya/internal/config"
	"github.com/kahyalabs/kahya/internal/input"
)

// Asker processes one conversation turn.
type Asker interface {
	Process(ctx context.Context, conversationID string, in input.Input) *assistant.Reply
}

// askPayload is the optional JSON form of an inbound question. Plain
// text payloads are accepted as-is.
type askPayload struct {
	Input string `json:"input"`
}

// Bridge connects the assistant to an MQTT broker.
type Bridge struct {
	cfg        config.MQTTConfig
	instanceID string
	manager    Asker
	logger     *slog.Logger

	// mu guards cm: the broker read loop can deliver a queued message
	// the moment the subscription is live, concurrently with Start.
	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

func (b *Bridge) setConn(cm *autopaho.ConnectionManager) {
	b.mu.Lock()
	b.cm = cm
	b.mu.Unlock()
}

func (b *Bridge) conn() *autopaho.ConnectionManager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cm
}

// NewBridge creates a bridge but does not connect. Call [Bridge.Start]
// to begin.
func NewBridge(cfg config.MQTTConfig, instanceID string, manager Asker, logger *slog.Logger) *Bridge {
	return &Bridge{
		cfg:        cfg,
		instanceID: instanceID,
		manager:    manager,
		logger:     logger.With("component", "mqtt"),
	}
}

// --- Topic helpers ---

func (b *Bridge) statusTopic() string {
	return b.cfg.TopicPrefix + "/status"
}

func (b *Bridge) askFilter() string {
	return b.cfg.TopicPrefix + "/ask/+"
}

func (b *Bridge) replyTopic(conversationID string) string {
	return b.cfg.TopicPrefix + "/reply/" + conversationID
}

// conversationFromTopic extracts the conversation ID from an ask
// topic. Empty when the topic does not match the expected shape.
func (b *Bridge) conversationFromTopic(topic string) string {
	prefix := b.cfg.TopicPrefix + "/ask/"
	suffix, ok := strings.CutPrefix(topic, prefix)
	if !ok || suffix == "" || strings.Contains(suffix, "/") {
		return ""
	}
	return suffix
}

// clientID prefers the configured value, falling back to the persisted
// instance ID so reconnects keep the broker session.
func (b *Bridge) clientID() string {
	if b.cfg.ClientID != "" {
		return b.cfg.ClientID
	}
	return "kahya-" + b.instanceID
}

// Start connects to the broker and serves questions until ctx is
// cancelled. Subscription and the online status are re-established on
// every reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(b.cfg.KeepAliveSec),
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.statusTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			// Store the connection before subscribing: a retained or
			// queued question can arrive as soon as the subscription is
			// live, and its reply publishes through b.conn().
			b.setConn(cm)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: b.askFilter(), QoS: 1},
				},
			}); err != nil {
				b.logger.Error("mqtt subscribe failed", "filter", b.askFilter(), "error", err)
			}
			b.publishStatus(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.clientID(),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					// One goroutine per question keeps slow turns from
					// blocking the broker read loop.
					go b.handleAsk(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.setConn(cm)

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop publishes the offline status and disconnects. The provided
// context bounds how long to wait.
func (b *Bridge) Stop(ctx context.Context) error {
	cm := b.conn()
	if cm == nil {
		return nil
	}
	b.publishStatus(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

func (b *Bridge) publishStatus(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.statusTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqtt status publish failed", "status", status, "error", err)
	} else {
		b.logger.Info("mqtt status published", "status", status)
	}
}

// handleAsk processes one inbound question and publishes the reply.
func (b *Bridge) handleAsk(ctx context.Context, topic string, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("mqtt handler panicked", "topic", topic, "panic", rec)
		}
	}()

	conversationID, question, err := b.parseAsk(topic, payload)
	if err != nil {
		b.logger.Warn("mqtt ask rejected", "topic", topic, "error", err)
		return
	}

	cm := b.conn()
	if cm == nil {
		// No connection means no way to publish a reply.
		b.logger.Warn("mqtt ask dropped, not connected", "topic", topic)
		return
	}

	reply := b.manager.Process(ctx, conversationID, input.Input{
		Kind: input.KindText,
		Text: question,
	})

	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("mqtt marshal reply failed", "error", err)
		return
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.replyTopic(conversationID),
		Payload: data,
		QoS:     1,
	}); err != nil {
		b.logger.Warn("mqtt reply publish failed",
			"conversation_id", conversationID, "error", err)
	}
}

// parseAsk validates an inbound message. The payload is either JSON
// with an input field or plain text.
func (b *Bridge) parseAsk(topic string, payload []byte) (conversationID, question string, err error) {
	conversationID = b.conversationFromTopic(topic)
	if conversationID == "" {
		return "", "", fmt.Errorf("unexpected topic %q", topic)
	}

	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var ask askPayload
		if jsonErr := json.Unmarshal(payload, &ask); jsonErr == nil && ask.Input != "" {
			return conversationID, ask.Input, nil
		}
	}
	if text == "" {
		return "", "", fmt.Errorf("empty payload")
	}
	return conversationID, text, nil
}
