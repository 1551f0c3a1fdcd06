package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
	"github.com/JoeShih716/go-stmt-ledger/pkg/resilience"
)

// MessageWriter *kafka.Writer 的子集
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config Kafka 設定
type Config struct {
	Brokers []string          `yaml:"brokers"`
	Topic   string            `yaml:"topic"`
	Breaker resilience.Config `yaml:"breaker"`
}

// NewWriter 建立 kafka.Writer，同帳戶的事件以 account_id 為 key 落在同一個 partition
func NewWriter(cfg Config, logger *logging.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

// Publisher 將帳目事件寫入 Kafka topic
type Publisher struct {
	writer  MessageWriter
	breaker *resilience.Breaker
	logger  *logging.Logger
}

func NewPublisher(writer MessageWriter, breaker resilience.Config, collector metrics.Collector) *Publisher {
	return &Publisher{
		writer:  writer,
		breaker: resilience.NewBreaker("kafka-publisher", breaker, collector, nil),
		logger:  logging.L().Named("kafka-publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, event *usecase.StatementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Statement.AccountID.String()),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.logger.Debug("write message failed", zap.String("statement_id", event.Statement.ID), zap.Error(err))
		return err
	}
	return nil
}

// Close 關閉 writer，會把尚未送出的 batch 寫完
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ usecase.EventPublisher = (*Publisher)(nil)
