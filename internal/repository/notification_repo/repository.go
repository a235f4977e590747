package notification_repo

import (
	"context"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
)

// NotificationRepository persists the delivery audit trail. One row per
// delivery, duplicates included.
type NotificationRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, record *domain.NotificationRecord) error
	ListByOrderIDTx(ctx context.Context, querier domain.Querier, orderID int64) ([]*domain.NotificationRecord, error)
}
