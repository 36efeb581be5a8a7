package repository

import (
	"context"
	"fmt"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
)

// Publisher is the subset of pkg/kafka.Producer the trade log needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaTradeLog publishes each leg record as JSON keyed by chain id, so legs
// of one chain stay ordered.
type KafkaTradeLog struct {
	producer Publisher
	topic    string
}

var _ drepo.TradeLog = (*KafkaTradeLog)(nil)

// NewKafkaTradeLog creates a Kafka trade log.
func NewKafkaTradeLog(producer Publisher, topic string) *KafkaTradeLog {
	return &KafkaTradeLog{producer: producer, topic: topic}
}

func (p *KafkaTradeLog) Record(ctx context.Context, rec models.LegRecord) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(rec.ChainID), rec); err != nil {
		return fmt.Errorf("publish leg %s/%s: %w", rec.ChainID, rec.Leg, err)
	}
	return nil
}

func (p *KafkaTradeLog) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
