package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/usecase"
	"github.com/JoeShih716/go-stmt-ledger/pkg/metrics"
	"github.com/JoeShih716/go-stmt-ledger/pkg/resilience"
)

// DefaultChannel 帳目事件的 Pub/Sub 頻道
const DefaultChannel = "ledger.statements"

// Publisher 以 Redis Pub/Sub 發佈帳目事件
type Publisher struct {
	client  Client
	channel string
	breaker *resilience.Breaker
}

func NewPublisher(client Client, channel string, cfg resilience.Config, collector metrics.Collector) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		client:  client,
		channel: channel,
		breaker: resilience.NewBreaker("redis-publisher", cfg, collector, nil),
	}
}

func (p *Publisher) Publish(ctx context.Context, event *usecase.StatementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.client.Publish(ctx, p.channel, payload).Err()
	})
}

var _ usecase.EventPublisher = (*Publisher)(nil)
