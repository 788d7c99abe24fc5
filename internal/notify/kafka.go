package notify

import (
	"context"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

// Publisher is satisfied by messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload any) error
}

// KafkaDispatcher hands notifications to the relay pipeline, keyed by order
// reference so one order's messages stay ordered.
type KafkaDispatcher struct {
	publisher Publisher
}

func NewKafkaDispatcher(p Publisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: p}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	return d.publisher.Publish(ctx, n.OrderReference, string(n.Kind), n)
}
