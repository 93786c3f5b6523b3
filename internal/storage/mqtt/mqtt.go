// Package mqttstorage publishes console state to an MQTT broker so remote
// dashboards can follow a session live.
package mqttstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
	"github.com/roadops/operator-console/pkg/streaming"
)

// publishTimeout bounds how long a publish waits for the broker.
const publishTimeout = 5 * time.Second

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// Backend implements storage.Backend by publishing streaming envelopes.
// Hero state and the current path are retained so late subscribers get the
// latest value immediately.
type Backend struct {
	pub    Publisher
	prefix string
	qos    byte
	now    func() time.Time

	mu      sync.Mutex
	session string
}

// New creates a backend on top of pub.
func New(pub Publisher, cfg config.MQTTConfig) *Backend {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "console"
	}
	return &Backend{
		pub:    pub,
		prefix: prefix,
		qos:    cfg.QoS,
		now:    time.Now,
	}
}

// Dial connects to the broker in cfg and returns a backend publishing to it.
func Dial(cfg config.MQTTConfig, logger *slog.Logger) (*Backend, error) {
	pub, err := newPahoPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(pub, cfg), nil
}

// Topic returns the topic for a message kind within the current session.
func (b *Backend) Topic(kind string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("%s/%s/%s", b.prefix, b.session, kind)
}

// Init is a no-op; the connection is made by Dial.
func (b *Backend) Init() error {
	return nil
}

// Close disconnects from the broker.
func (b *Backend) Close() error {
	b.pub.Close()
	return nil
}

// StartSession announces the session.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.session = s.ID
	b.mu.Unlock()
	return b.send("session", streaming.TypeSessionStart, true, streaming.SessionStartPayload{Session: s})
}

// EndSession announces the end of the session.
func (b *Backend) EndSession() error {
	return b.send("session", streaming.TypeSessionEnd, true, struct{}{})
}

// RecordHeroState publishes a retained hero snapshot.
func (b *Backend) RecordHeroState(s *core.HeroVehicleState) error {
	return b.send("hero", streaming.TypeHeroState, true, s)
}

// RecordPathProposal publishes the retained current path.
func (b *Backend) RecordPathProposal(p *core.PathProposal) error {
	return b.send("path", streaming.TypePathProposal, true, p)
}

// RecordTrafficFrame publishes a traffic frame.
func (b *Backend) RecordTrafficFrame(f *core.TrafficFrame) error {
	return b.send("traffic", streaming.TypeTrafficFrame, false, f)
}

func (b *Backend) send(kind, msgType string, retained bool, payload any) error {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	data, err := streaming.Marshal(msgType, session, b.now(), payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	topic := b.Topic(kind)
	if err := b.pub.Publish(topic, b.qos, retained, data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// pahoPublisher publishes through the paho client.
type pahoPublisher struct {
	client mqtt.Client
	logger *slog.Logger
}

func newPahoPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*pahoPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &pahoPublisher{logger: logger.With("component", "mqtt_publisher")}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("Connected to MQTT broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Error("Connection lost. Reconnecting...", slog.Any("error", err))
	})

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return p, nil
}

func (p *pahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timed out after %s", publishTimeout)
	}
	return token.Error()
}

func (p *pahoPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("MQTT Client disconnected")
	}
}
