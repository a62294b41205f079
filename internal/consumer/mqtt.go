// internal/consumer/mqtt.go
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-acquisition/internal/buffer"
	"github.com/tamzrod/modbus-acquisition/internal/metrics"
)

const publishTimeout = 5 * time.Second

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// publishFunc is the exact contract the publisher uses.
type publishFunc func(topic string, qos byte, payload []byte) error

// mqttMessage is the JSON payload of one publish.
type mqttMessage struct {
	SourceID uint8           `json:"source_id"`
	Channel  string          `json:"channel"`
	Samples  []buffer.Sample `json:"samples"`
}

// MQTTPublisher publishes samples newer than the last published Seq of each
// series to <prefix>/<source>/<channel>.
type MQTTPublisher struct {
	prefix  string
	qos     byte
	publish publishFunc
	client  mqtt.Client
	log     zerolog.Logger

	mu   sync.Mutex
	next map[buffer.Key]uint64 // first Seq not yet published
}

// NewMQTTPublisher connects to the broker. Reconnects are handled by paho.
func NewMQTTPublisher(cfg MQTTConfig, log zerolog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetWriteTimeout(publishTimeout)

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	p := newMQTTPublisher(cfg.TopicPrefix, cfg.QoS, func(topic string, qos byte, payload []byte) error {
		token := client.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish %s: timeout", topic)
		}
		return token.Error()
	}, log)
	p.client = client
	return p, nil
}

func newMQTTPublisher(prefix string, qos byte, publish publishFunc, log zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		prefix:  strings.Trim(prefix, "/"),
		qos:     qos,
		publish: publish,
		log:     log,
		next:    make(map[buffer.Key]uint64),
	}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic of one series.
func (p *MQTTPublisher) Topic(sourceID uint8, channel string) string {
	t := buffer.Key{SourceID: sourceID, Channel: channel}.String()
	if p.prefix == "" {
		return t
	}
	return p.prefix + "/" + t
}

// Consume publishes every series that has new samples.
// A failed series keeps its position and is retried next call.
func (p *MQTTPublisher) Consume(ctx context.Context, v View) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []string

	for _, k := range v.Keys() {
		if ctx.Err() != nil {
			break
		}

		samples := v.Snapshot(k.SourceID, k.Channel)
		fresh := newerThan(samples, p.next[k])
		if len(fresh) == 0 {
			continue
		}

		payload, err := json.Marshal(mqttMessage{
			SourceID: k.SourceID,
			Channel:  k.Channel,
			Samples:  fresh,
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("mqtt: encode %s: %v", k, err))
			continue
		}

		topic := p.Topic(k.SourceID, k.Channel)
		if err := p.publish(topic, p.qos, payload); err != nil {
			metrics.MQTTErrors.Inc()
			errs = append(errs, fmt.Sprintf("mqtt: topic=%s err=%v", topic, err))
			continue
		}

		p.next[k] = fresh[len(fresh)-1].Seq + 1
		metrics.MQTTPublished.Add(float64(len(fresh)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}

// newerThan returns the tail of samples with Seq >= from. Samples are in Seq order.
func newerThan(samples []buffer.Sample, from uint64) []buffer.Sample {
	for i, s := range samples {
		if s.Seq >= from {
			return samples[i:]
		}
	}
	return nil
}

var _ Consumer = (*MQTTPublisher)(nil)
