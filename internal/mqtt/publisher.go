package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/zpool-mqtt/internal/config"
	"github.com/nugget/zpool-mqtt/internal/registry"
	"github.com/nugget/zpool-mqtt/internal/zpool"
)

// publishTimeout bounds one cycle's worth of publish calls. While the
// broker is unreachable autopaho blocks publishes until reconnect;
// the deadline turns that into a drop so the poll timer never backs
// up. State is naturally republished next cycle and discovery after
// the next session reset.
const publishTimeout = 10 * time.Second

// publishClient is the slice of autopaho's connection manager the
// publish paths need. Narrowed to an interface so tests can capture
// publishes without a live broker.
type publishClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the broker connection and publishes HA discovery
// config and pool metric states. Discovery is idempotent per broker
// session: the session set is cleared on every (re-)connect and each
// entity identity is announced at most once until the next reset.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	session    *registry.Session
	interval   time.Duration
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
	pub        publishClient
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection. pollInterval is the poll loop's cycle time,
// used to derive each sensor's expire_after.
func New(cfg config.MQTTConfig, instanceID string, session *registry.Session, pollInterval time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		session:    session,
		interval:   pollInterval,
		logger:     logger,
	}
}

// Start connects to the MQTT broker and returns once the connection
// machinery is running. autopaho owns reconnection with backoff from
// here on. On every (re-)connect the announced session is reset and a
// retained "online" birth message is published, in that order, so
// discovery state is rebuilt before the hub sees the bridge come up.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.BrokerURL())
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.BrokerURL())
			p.connected(ctx, cm)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID(),
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
	p.cm = cm
	p.pub = cm

	return nil
}

// Stop gracefully disconnects by publishing a retained "offline"
// availability message before closing the MQTT connection. The
// provided context controls how long to wait for the publish and
// disconnect to complete.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.pub, "offline")
	return p.cm.Disconnect(ctx)
}

// connected runs on every successful (re-)connect: the announced
// session is reset first, then the retained birth message goes out.
// Discovery must be re-announced after the reset, never before.
func (p *Publisher) connected(ctx context.Context, pub publishClient) {
	p.session.Reset()
	p.publishAvailability(ctx, pub, "online")
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	return p.cm.AwaitConnection(ctx)
}

// --- Topic helpers ---

func (p *Publisher) clientID() string {
	id := p.instanceID
	if len(id) > 8 {
		id = id[:8]
	}
	return "zpool-mqtt-" + id
}

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/" + p.clientID() + "/status"
}

func (p *Publisher) stateTopic(poolName, fieldKey string) string {
	return p.cfg.TopicPrefix + "/" + registry.Slug(poolName) + "/" + fieldKey + "/state"
}

func (p *Publisher) attributesTopic(poolName string) string {
	return p.cfg.TopicPrefix + "/" + registry.Slug(poolName) + "/attributes"
}

func (p *Publisher) discoveryTopic(identity string) string {
	return p.cfg.DiscoveryPrefix + "/sensor/" + identity + "/config"
}

// --- Discovery ---

// sensorConfig builds the discovery payload for one pool metric field.
func (p *Publisher) sensorConfig(poolName string, fieldKey string, device DeviceInfo) SensorConfig {
	meta := zpool.MetaFor(fieldKey)
	return SensorConfig{
		Name:                poolName + " " + meta.Label,
		UniqueID:            registry.IdentityFor(poolName, fieldKey),
		StateTopic:          p.stateTopic(poolName, fieldKey),
		AvailabilityTopic:   p.availabilityTopic(),
		JsonAttributesTopic: p.attributesTopic(poolName),
		Device:              device,
		Icon:                meta.Icon,
		UnitOfMeasurement:   meta.Unit,
		DeviceClass:         meta.DeviceClass,
		StateClass:          meta.StateClass,
		ExpireAfter:         p.expireAfter(),
	}
}

// expireAfter is 1.5 poll intervals rounded up, so the hub marks a
// sensor unavailable after one missed cycle plus slack.
func (p *Publisher) expireAfter() int {
	return int(math.Ceil(p.interval.Seconds() * 1.5))
}

// PublishDiscovery announces every pool/field identity not yet in the
// current session. Payloads are retained so the hub picks them up even
// if it subscribes later. An identity is only marked announced after a
// successful publish; failures retry next cycle.
func (p *Publisher) PublishDiscovery(ctx context.Context, pools []zpool.Pool) {
	if p.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	published := 0
	for _, pool := range pools {
		device := NewPoolDevice(pool.Name)
		for _, f := range pool.Fields {
			identity := registry.IdentityFor(pool.Name, f.Key)
			if p.session.IsAnnounced(identity) {
				continue
			}

			payload, err := json.Marshal(p.sensorConfig(pool.Name, f.Key, device))
			if err != nil {
				p.logger.Error("mqtt marshal discovery payload",
					"identity", identity, "error", err)
				continue
			}

			topic := p.discoveryTopic(identity)
			if _, err := p.pub.Publish(ctx, &paho.Publish{
				Topic:   topic,
				Payload: payload,
				QoS:     1,
				Retain:  true,
			}); err != nil {
				p.logger.Warn("mqtt discovery publish failed",
					"identity", identity, "topic", topic, "error", err)
				continue
			}

			p.session.MarkAnnounced(identity)
			published++
			p.logger.Debug("mqtt discovery published",
				"identity", identity, "topic", topic)
		}
	}

	if published > 0 {
		p.logger.Info("mqtt discovery announced",
			"entities", published, "session_total", p.session.Len())
	}
}

// --- State ---

// PublishStates pushes every pool/field value to its state topic,
// regardless of announced status, plus one JSON attributes payload per
// pool. All retained so the hub shows last-known values immediately
// after its own restart. Fields absent this cycle are not retracted;
// their topics simply stop updating and expire_after ages them out.
func (p *Publisher) PublishStates(ctx context.Context, pools []zpool.Pool) {
	if p.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for _, pool := range pools {
		for _, f := range pool.Fields {
			topic := p.stateTopic(pool.Name, f.Key)
			if _, err := p.pub.Publish(ctx, &paho.Publish{
				Topic:   topic,
				Payload: []byte(f.Value),
				QoS:     0,
				Retain:  true,
			}); err != nil {
				p.logger.Debug("mqtt state publish failed",
					"topic", topic, "error", err)
			} else {
				p.logger.Log(ctx, config.LevelTrace, "mqtt state published",
					"topic", topic, "value", f.Value)
			}
		}

		p.publishAttributes(ctx, pool)
	}

	p.logger.Debug("mqtt pool states published", "pools", len(pools))
}

// publishAttributes publishes one JSON object per pool carrying all
// raw field values plus human-readable renderings of the byte-valued
// metrics, for the HA device page.
func (p *Publisher) publishAttributes(ctx context.Context, pool zpool.Pool) {
	attrs := make(map[string]string, len(pool.Fields)+3)
	for _, f := range pool.Fields {
		attrs[f.Key] = f.Value
	}
	for _, key := range []string{"size", "alloc", "free"} {
		if raw, ok := pool.Get(key); ok {
			if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
				attrs[key+"_human"] = humanize.IBytes(n)
			}
		}
	}

	payload, err := json.Marshal(attrs)
	if err != nil {
		p.logger.Error("mqtt marshal attributes payload",
			"pool", pool.Name, "error", err)
		return
	}

	topic := p.attributesTopic(pool.Name)
	if _, err := p.pub.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt attributes publish failed",
			"topic", topic, "error", err)
	}
}

// --- Availability ---

func (p *Publisher) publishAvailability(ctx context.Context, pub publishClient, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}
