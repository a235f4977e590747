// Package inventory publishes stock adjustments to the commerce system.
// Delivery is at-least-once; consumers dedupe by transaction id.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	kafka_infra "github.com/williamfortunademoraes/woocommerce-asaas/internal/infrastructure/kafka"
)

type StockDecrementEvent struct {
	OrderID       int64     `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type KafkaInventory struct {
	producer kafka_infra.Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaInventory(producer kafka_infra.Producer, topic string, logger *zap.Logger) *KafkaInventory {
	return &KafkaInventory{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (i *KafkaInventory) DecrementStock(ctx context.Context, orderID int64, transactionID string) error {
	event := StockDecrementEvent{
		OrderID:       orderID,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stock decrement event: %w", err)
	}
	if err := i.producer.Produce(ctx, i.topic, fmt.Sprintf("%d", orderID), payload); err != nil {
		return fmt.Errorf("failed to publish stock decrement for order %d: %w", orderID, err)
	}
	i.logger.Debug("Stock decrement published",
		zap.Int64("order_id", orderID),
		zap.String("transaction_id", transactionID))
	return nil
}
