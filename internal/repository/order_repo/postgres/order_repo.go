package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/order_repo"
)

type pgOrderRepository struct{}

func NewOrderRepository() order_repo.OrderRepository {
	return &pgOrderRepository{}
}

const orderColumns = `id, status, amount_due, transaction_id, payer_email, payer_name, payment_method_label, installment_count, payment_link, created_at, updated_at`

func (r *pgOrderRepository) CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, status, amount_due, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := querier.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.AmountDue,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("failed to create order %d: %w", order.ID, err)
	}
	return nil
}

func (r *pgOrderRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by id %d: %w", id, err)
	}
	return order, nil
}

func (r *pgOrderRepository) ListByStatusTx(ctx context.Context, querier domain.Querier, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	rows, err := querier.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by status %s: %w", status, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", scanErr)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error listing orders: %w", err)
	}
	return orders, nil
}

// CompareAndApplyTx is the optimistic-concurrency primitive: a single
// guarded UPDATE, so concurrent notifications for the same order serialize
// on the status column without any explicit lock. transaction_id keeps its
// first value via COALESCE.
func (r *pgOrderRepository) CompareAndApplyTx(ctx context.Context, querier domain.Querier, id int64, expected *domain.OrderStatus, mut domain.OrderMutation) (*domain.Order, error) {
	query := `
		UPDATE orders SET
			status = $2,
			transaction_id = COALESCE(transaction_id, $3),
			payer_email = COALESCE($4, payer_email),
			payer_name = COALESCE($5, payer_name),
			payment_method_label = COALESCE($6, payment_method_label),
			installment_count = COALESCE($7, installment_count),
			payment_link = COALESCE($8, payment_link),
			updated_at = $9
		WHERE id = $1 AND ($10::text IS NULL OR status = $10)
		RETURNING ` + orderColumns

	var expectedArg interface{}
	if expected != nil {
		expectedArg = string(*expected)
	}

	order, err := scanOrder(querier.QueryRowContext(ctx, query,
		id,
		mut.NewStatus,
		mut.TransactionID,
		mut.PayerEmail,
		mut.PayerName,
		mut.PaymentMethodLabel,
		mut.InstallmentCount,
		mut.PaymentLink,
		time.Now(),
		expectedArg,
	))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to apply order mutation for %d: %w", id, err)
	}

	// Guard failed or the order is gone; distinguish the two.
	if _, getErr := r.GetByIDTx(ctx, querier, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrStatusConflict
}

func (r *pgOrderRepository) AppendNoteTx(ctx context.Context, querier domain.Querier, id int64, note string) error {
	query := `INSERT INTO order_notes (order_id, note, created_at) VALUES ($1, $2, $3)`
	if _, err := querier.ExecContext(ctx, query, id, note, time.Now()); err != nil {
		return fmt.Errorf("failed to append note to order %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var (
		amountDue        string
		transactionID    sql.NullString
		payerEmail       sql.NullString
		payerName        sql.NullString
		methodLabel      sql.NullString
		installmentCount sql.NullInt64
		paymentLink      sql.NullString
	)
	err := row.Scan(
		&order.ID,
		&order.Status,
		&amountDue,
		&transactionID,
		&payerEmail,
		&payerName,
		&methodLabel,
		&installmentCount,
		&paymentLink,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.AmountDue, err = decimal.NewFromString(amountDue)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_due for order %d: %w", order.ID, err)
	}
	if transactionID.Valid {
		order.TransactionID = &transactionID.String
	}
	if payerEmail.Valid {
		order.PayerEmail = &payerEmail.String
	}
	if payerName.Valid {
		order.PayerName = &payerName.String
	}
	if methodLabel.Valid {
		order.PaymentMethodLabel = &methodLabel.String
	}
	if installmentCount.Valid {
		count := int(installmentCount.Int64)
		order.InstallmentCount = &count
	}
	if paymentLink.Valid {
		order.PaymentLink = &paymentLink.String
	}
	return order, nil
}
