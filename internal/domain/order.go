package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusAwaitingFunds OrderStatus = "AWAITING_FUNDS"
	OrderStatusUnderReview   OrderStatus = "UNDER_REVIEW"
	OrderStatusApproved      OrderStatus = "APPROVED"
	OrderStatusCredited      OrderStatus = "CREDITED"
	OrderStatusDisputed      OrderStatus = "DISPUTED"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrStatusConflict     = errors.New("order status changed concurrently")
	ErrInvalidOrder       = errors.New("invalid order data")
)

// Order is the single source of truth the reconciler is allowed to mutate.
// All status changes go through the repository's CompareAndApply; the
// metadata fields are written as they arrive in notifications, with
// TransactionID being write-once.
type Order struct {
	ID                 int64
	Status             OrderStatus
	AmountDue          decimal.Decimal
	TransactionID      *string
	PayerEmail         *string
	PayerName          *string
	PaymentMethodLabel *string
	InstallmentCount   *int
	PaymentLink        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewOrder(id int64, amountDue decimal.Decimal) (*Order, error) {
	if id <= 0 || amountDue.IsNegative() || amountDue.IsZero() {
		return nil, ErrInvalidOrder
	}
	now := time.Now()
	return &Order{
		ID:        id,
		Status:    OrderStatusPending,
		AmountDue: amountDue,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal reports whether an order in this status can no longer
// transition. CREDITED is terminal only when the deployment says so.
func (s OrderStatus) IsTerminal(creditedIsTerminal bool) bool {
	switch s {
	case OrderStatusRefunded, OrderStatusCancelled:
		return true
	case OrderStatusCredited:
		return creditedIsTerminal
	}
	return false
}

// OrderMutation is the set of changes CompareAndApply is asked to make.
// Nil pointers mean "leave the column alone"; TransactionID is only
// ever written if the stored value is still NULL.
type OrderMutation struct {
	NewStatus          OrderStatus
	TransactionID      *string
	PayerEmail         *string
	PayerName          *string
	PaymentMethodLabel *string
	InstallmentCount   *int
	PaymentLink        *string
}
