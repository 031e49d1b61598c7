package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/segmentio/kafka-go"

	"building-monitor/internal/observability/metrics"
	realtime "building-monitor/internal/realtime/domain"
)

const channelHeader = "channel"

// KafkaConfig configures the Kafka source.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the subset of *kafka.Reader used by the source.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes sensor events keyed by channel name.
type KafkaSource struct {
	cfg       KafkaConfig
	logger    *log.Logger
	newReader func() messageReader
}

// NewKafkaSource constructs a Kafka source.
func NewKafkaSource(cfg KafkaConfig, logger *log.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka source: no brokers")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka source: empty topic")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &KafkaSource{cfg: cfg, logger: logger}
	s.newReader = func() messageReader {
		rc := kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}
		if cfg.GroupID != "" {
			rc.GroupID = cfg.GroupID
			rc.StartOffset = kafka.LastOffset
		}
		return kafka.NewReader(rc)
	}
	return s, nil
}

// Name implements application.Source.
func (s *KafkaSource) Name() string { return "kafka" }

// Run consumes until ctx is done or the reader fails.
func (s *KafkaSource) Run(ctx context.Context, deliver func(realtime.Reading)) error {
	reader := s.newReader()
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka source: reader closed: %w", err)
			}
			return fmt.Errorf("kafka source: fetch: %w", err)
		}

		channel := messageChannel(msg)
		r, err := realtime.DecodeReading(channel, msg.Value)
		if err != nil {
			metrics.IncReading(channel, metrics.ResultInvalid)
			s.logger.Printf("kafka source: drop offset %d: %v", msg.Offset, err)
		} else {
			deliver(r)
		}

		if s.cfg.GroupID != "" {
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				s.logger.Printf("kafka source: commit offset %d: %v", msg.Offset, err)
			}
		}
	}
}

func messageChannel(msg kafka.Message) string {
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	for _, h := range msg.Headers {
		if h.Key == channelHeader {
			return string(h.Value)
		}
	}
	return ""
}
