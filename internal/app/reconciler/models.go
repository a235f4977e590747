package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
)

type CreateOrderRequest struct {
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type OrderResponse struct {
	OrderID            int64   `json:"order_id"`
	Reference          string  `json:"reference"`
	Status             string  `json:"status"`
	AmountDue          string  `json:"amount_due"`
	TransactionID      *string `json:"transaction_id,omitempty"`
	PayerEmail         *string `json:"payer_email,omitempty"`
	PayerName          *string `json:"payer_name,omitempty"`
	PaymentMethodLabel *string `json:"payment_method,omitempty"`
	InstallmentCount   *int    `json:"installments,omitempty"`
	PaymentLink        *string `json:"payment_link,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// NotificationResponse is one row of an order's delivery trail.
type NotificationResponse struct {
	ID         string                        `json:"id"`
	Reference  string                        `json:"reference"`
	StatusCode *int                          `json:"status_code,omitempty"`
	Outcome    domain.CanonicalOutcome       `json:"outcome"`
	Resolution domain.NotificationResolution `json:"resolution"`
	Detail     string                        `json:"detail,omitempty"`
	ReceivedAt string                        `json:"received_at"`
}

func mapNotificationToResponse(record *domain.NotificationRecord) *NotificationResponse {
	return &NotificationResponse{
		ID:         record.ID,
		Reference:  record.Reference,
		StatusCode: record.StatusCode,
		Outcome:    record.Outcome,
		Resolution: record.Resolution,
		Detail:     record.Detail,
		ReceivedAt: record.ReceivedAt.Format(time.RFC3339),
	}
}

// Result describes what one notification did to an order. A no-op result
// is a success: the notification was understood and deliberately not
// applied again.
type Result struct {
	OrderID          int64                   `json:"order_id"`
	Reference        string                  `json:"reference"`
	Outcome          domain.CanonicalOutcome `json:"outcome"`
	FromStatus       domain.OrderStatus      `json:"from_status"`
	ToStatus         domain.OrderStatus      `json:"to_status"`
	Applied          bool                    `json:"applied"`
	NoOpReason       string                  `json:"no_op_reason,omitempty"`
	StockDecremented bool                    `json:"stock_decremented"`
	OperatorAlerted  bool                    `json:"operator_alerted"`
}

func (s *service) mapOrderToResponse(order *domain.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:            order.ID,
		Reference:          domain.FormatInvoiceReference(s.invoicePrefix, order.ID),
		Status:             string(order.Status),
		AmountDue:          order.AmountDue.StringFixed(2),
		TransactionID:      order.TransactionID,
		PayerEmail:         order.PayerEmail,
		PayerName:          order.PayerName,
		PaymentMethodLabel: order.PaymentMethodLabel,
		InstallmentCount:   order.InstallmentCount,
		PaymentLink:        order.PaymentLink,
		CreatedAt:          order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          order.UpdatedAt.Format(time.RFC3339),
	}
}
