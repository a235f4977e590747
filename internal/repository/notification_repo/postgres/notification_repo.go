package postgres

import (
	"context"
	"fmt"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/notification_repo"
)

type pgNotificationRepository struct{}

func NewNotificationRepository() notification_repo.NotificationRepository {
	return &pgNotificationRepository{}
}

func (r *pgNotificationRepository) CreateTx(ctx context.Context, querier domain.Querier, record *domain.NotificationRecord) error {
	query := `
		INSERT INTO notification_log (id, order_id, reference, status_code, outcome, resolution, detail, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := querier.ExecContext(ctx, query,
		record.ID,
		record.OrderID,
		record.Reference,
		record.StatusCode,
		record.Outcome,
		record.Resolution,
		record.Detail,
		record.Payload,
		record.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification record: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) ListByOrderIDTx(ctx context.Context, querier domain.Querier, orderID int64) ([]*domain.NotificationRecord, error) {
	query := `
		SELECT id, order_id, reference, status_code, outcome, resolution, detail, payload, received_at
		FROM notification_log
		WHERE order_id = $1
		ORDER BY received_at ASC
	`
	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification records for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var records []*domain.NotificationRecord
	for rows.Next() {
		record := &domain.NotificationRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.OrderID,
			&record.Reference,
			&record.StatusCode,
			&record.Outcome,
			&record.Resolution,
			&record.Detail,
			&record.Payload,
			&record.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification record: %w", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error listing notification records: %w", err)
	}
	return records, nil
}
