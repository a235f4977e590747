package order_repo

import (
	"context"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
)

// OrderRepository is the order store the reconciler mutates. All status
// changes go through CompareAndApply; there is no direct status setter.
type OrderRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error)
	ListByStatusTx(ctx context.Context, querier domain.Querier, status domain.OrderStatus) ([]*domain.Order, error)
	// CompareAndApply atomically applies mut if the order's current status
	// still equals expected. A nil expected skips the guard. Returns
	// domain.ErrStatusConflict when the guard fails and
	// domain.ErrOrderNotFound when the order does not exist.
	CompareAndApplyTx(ctx context.Context, querier domain.Querier, id int64, expected *domain.OrderStatus, mut domain.OrderMutation) (*domain.Order, error)
	// AppendNoteTx records a best-effort audit note; failures are
	// independent of the main transition.
	AppendNoteTx(ctx context.Context, querier domain.Querier, id int64, note string) error
}
