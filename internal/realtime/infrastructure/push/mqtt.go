package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250
)

// MQTTConfig configures the MQTT source.
type MQTTConfig struct {
	Brokers     []string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Channels    []string
}

// MQTTSource subscribes to one topic per channel. The last topic segment
// names the channel.
type MQTTSource struct {
	cfg    MQTTConfig
	logger *log.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTSource constructs an MQTT source.
func NewMQTTSource(cfg MQTTConfig, logger *log.Logger) (*MQTTSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("mqtt source: no brokers")
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("mqtt source: no channels")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "building-monitor"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTSource{cfg: cfg, logger: logger}, nil
}

// Name implements application.Source.
func (s *MQTTSource) Name() string { return "mqtt" }

// Filters returns the subscription topics.
func (s *MQTTSource) Filters() map[string]byte {
	filters := make(map[string]byte, len(s.cfg.Channels))
	for _, channel := range s.cfg.Channels {
		filters[s.Topic(channel)] = 0
	}
	return filters
}

// Topic returns the topic of channel under the configured prefix.
func (s *MQTTSource) Topic(channel string) string {
	if prefix := strings.Trim(s.cfg.TopicPrefix, "/"); prefix != "" {
		return prefix + "/" + channel
	}
	return channel
}

// ChannelFromTopic returns the channel name carried by topic.
func ChannelFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Run connects once and delivers messages until ctx is done or the
// connection is lost.
func (s *MQTTSource) Run(ctx context.Context, deliver func(realtime.Reading)) error {
	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions().
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(mqttConnectTimeout).
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})
	for _, broker := range s.cfg.Brokers {
		opts.AddBroker(broker)
	}
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt source: connect: %w", err)
	}
	defer client.Disconnect(mqttQuiesce)
	s.setClient(client)
	defer s.setClient(nil)

	sub := client.SubscribeMultiple(s.Filters(), func(_ mqtt.Client, msg mqtt.Message) {
		channel := ChannelFromTopic(msg.Topic())
		r, err := realtime.DecodeReading(channel, msg.Payload())
		if err != nil {
			metrics.IncReading(channel, metrics.ResultInvalid)
			s.logger.Printf("mqtt source: drop message on %s: %v", msg.Topic(), err)
			return
		}
		deliver(r)
	})
	sub.Wait()
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt source: subscribe: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lost:
		return fmt.Errorf("mqtt source: connection lost: %w", err)
	}
}

func (s *MQTTSource) setClient(client mqtt.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// Send publishes payload on the command topic of channel.
func (s *MQTTSource) Send(ctx context.Context, channel string, payload []byte) error {
	if strings.TrimSpace(channel) == "" {
		return realtime.ErrInvalidFrame
	}
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := client.Publish(s.Topic(channel), 1, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt source: publish %s: %w", channel, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
