package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/app/reconciler"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
	kafka_infra "github.com/williamfortunademoraes/woocommerce-asaas/internal/infrastructure/kafka"
)

// NotificationReplayHandler feeds notifications from the replay topic
// through the same reconciliation path as the webhook. Operators publish
// to the topic to reprocess deliveries; the reconciler's idempotency
// makes replaying always safe.
func NotificationReplayHandler(service reconciler.Service, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var raw domain.RawNotification
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			logger.Error("Failed to unmarshal replayed notification, skipping",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		result, err := service.HandleNotification(ctx, raw, msg.Value)
		if err != nil {
			// Transient provider failures keep the offset uncommitted so
			// the replay is retried; everything else is a bad message and
			// is dropped after logging.
			if errors.Is(err, asaas.ErrProviderUnavailable) {
				return fmt.Errorf("provider unavailable for replayed notification: %w", err)
			}
			logger.Warn("Replayed notification rejected",
				zap.String("reference", raw.Reference),
				zap.Error(err),
			)
			return nil
		}

		logger.Info("Replayed notification processed",
			zap.Int64("order_id", result.OrderID),
			zap.String("outcome", string(result.Outcome)),
			zap.Bool("applied", result.Applied),
		)
		return nil
	}
}
