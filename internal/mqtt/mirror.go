package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/lumen/internal/config"
	"github.com/nugget/lumen/internal/events"
)

const (
	statsInterval = time.Minute
	commandLimit  = 10
	busBuffer     = 256
)

// Mirror forwards bus events to the broker and serves the command
// topic.
type Mirror struct {
	cfg      config.MQTTConfig
	clientID string
	bus      *events.Bus
	counts   *DailyCounts
	commands *commandHandler
	logger   *slog.Logger
	cm       *autopaho.ConnectionManager
}

// New creates a Mirror but does not connect. target receives cancel
// commands and may be nil.
func New(cfg config.MQTTConfig, instanceID string, bus *events.Bus, counts *DailyCounts, target Canceller, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if counts == nil {
		counts = NewDailyCounts(nil)
	}
	logger = logger.With("component", "mqtt")
	return &Mirror{
		cfg:      cfg,
		clientID: clientID(cfg.ClientID, instanceID),
		bus:      bus,
		counts:   counts,
		commands: &commandHandler{
			prefix:  cfg.TopicPrefix,
			target:  target,
			limiter: newCommandBucket(commandLimit, time.Minute, logger),
			logger:  logger,
		},
		logger: logger,
	}
}

// Start connects and mirrors events until ctx is cancelled. A failed
// initial connection is logged; autopaho keeps retrying in the
// background.
func (m *Mirror) Start(ctx context.Context) error {
	if m.bus == nil {
		return errors.New("mqtt mirror needs an event bus")
	}
	brokerURL, err := url.Parse(m.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	// Subscribe before connecting so nothing published during the
	// handshake is lost.
	sub := m.bus.Subscribe(busBuffer)
	defer m.bus.Unsubscribe(sub)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: m.cfg.Username,
		ConnectPassword: []byte(m.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availabilityTopic(m.cfg.TopicPrefix),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			m.logger.Info("mqtt connected to broker", "broker", m.cfg.Broker, "client_id", m.clientID)
			m.publishAvailability(ctx, cm, "online")
			m.subscribeCommands(ctx, cm)
		},
		OnConnectError: func(err error) {
			m.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: m.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					return m.commands.handle(pr.Packet.Topic, pr.Packet.Payload), nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	m.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		m.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	go m.commands.limiter.run(ctx)
	m.run(ctx, sub)
	return nil
}

// Stop publishes "offline" and disconnects. ctx bounds both steps.
func (m *Mirror) Stop(ctx context.Context) error {
	if m.cm == nil {
		return nil
	}
	m.publishAvailability(ctx, m.cm, "offline")
	return m.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// expires.
func (m *Mirror) AwaitConnection(ctx context.Context) error {
	if m.cm == nil {
		return errors.New("mqtt mirror not started")
	}
	return m.cm.AwaitConnection(ctx)
}

func (m *Mirror) run(ctx context.Context, sub <-chan events.Event) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			m.counts.Observe(ev)
			m.publishEvent(ctx, ev)
		case <-ticker.C:
			m.publishStats(ctx)
		}
	}
}

func (m *Mirror) publishEvent(ctx context.Context, ev events.Event) {
	pub, err := eventMessage(m.cfg.TopicPrefix, ev)
	if err != nil {
		m.logger.Error("mqtt marshal event", "kind", ev.Kind, "error", err)
		return
	}
	if _, err := m.cm.Publish(ctx, pub); err != nil {
		m.logger.Debug("mqtt event publish failed", "topic", pub.Topic, "error", err)
	}
}

func (m *Mirror) publishStats(ctx context.Context) {
	pub, err := statsMessage(m.cfg.TopicPrefix, m.counts.Snapshot())
	if err != nil {
		m.logger.Error("mqtt marshal stats", "error", err)
		return
	}
	if _, err := m.cm.Publish(ctx, pub); err != nil {
		m.logger.Debug("mqtt stats publish failed", "error", err)
	}
}

func (m *Mirror) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   availabilityTopic(m.cfg.TopicPrefix),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		m.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		m.logger.Info("mqtt availability published", "status", status)
	}
}

func (m *Mirror) subscribeCommands(ctx context.Context, cm *autopaho.ConnectionManager) {
	topic := commandTopic(m.cfg.TopicPrefix)
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	}); err != nil {
		m.logger.Warn("mqtt command subscribe failed", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("mqtt subscribed", "topic", topic)
}

func availabilityTopic(prefix string) string {
	return prefix + "/availability"
}

func commandTopic(prefix string) string {
	return prefix + "/command/#"
}

// eventTopic is <prefix>/events/<source>/<kind>. Missing parts become
// "unknown" so the topic never has empty levels.
func eventTopic(prefix string, ev events.Event) string {
	source, kind := ev.Source, ev.Kind
	if source == "" {
		source = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	return prefix + "/events/" + source + "/" + kind
}

func eventMessage(prefix string, ev events.Event) (*paho.Publish, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &paho.Publish{Topic: eventTopic(prefix, ev), Payload: payload}, nil
}

func statsMessage(prefix string, c Counts) (*paho.Publish, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return &paho.Publish{Topic: prefix + "/stats", Payload: payload, Retain: true}, nil
}
