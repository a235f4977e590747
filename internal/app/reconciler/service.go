package reconciler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/notification_repo"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/order_repo"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/repository/outbox_repo"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/util"
)

// ErrReconciliationConflict is surfaced after the single internal retry
// also lost the compare-and-apply race. The notification needs manual
// review; automated retry already failed once.
var ErrReconciliationConflict = errors.New("reconciliation conflict, manual review required")

// StatusConfirmer fetches the canonical payment status from the provider.
// The Asaas client satisfies it.
type StatusConfirmer interface {
	ConfirmStatus(ctx context.Context, transactionID string) (*asaas.ProviderStatus, error)
}

// Inventory is the stock side-effect port. Implementations must be
// idempotent per transaction id; the reconciler guarantees the call is
// made at most once per recorded transition, not exactly once overall.
type Inventory interface {
	DecrementStock(ctx context.Context, orderID int64, transactionID string) error
}

type Service interface {
	HandleNotification(ctx context.Context, raw domain.RawNotification, rawPayload []byte) (*Result, error)
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, orderID int64) (*OrderResponse, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*OrderResponse, error)
	ListOrderNotifications(ctx context.Context, orderID int64) ([]*NotificationResponse, error)
}

// Options are the policy knobs resolved once at startup.
type Options struct {
	InvoicePrefix string
	// ConfirmStatus makes the push payload a hint only: when a
	// transaction id is present the status is re-read from the provider
	// before any transition.
	ConfirmStatus      bool
	CreditedIsTerminal bool
	AlertsTopic        string
}

type service struct {
	db                 *sql.DB
	orderRepo          order_repo.OrderRepository
	notificationRepo   notification_repo.NotificationRepository
	outboxRepo         outbox_repo.OutboxRepository
	confirmer          StatusConfirmer
	inventory          Inventory
	invoicePrefix      string
	confirmStatus      bool
	creditedIsTerminal bool
	alertsTopic        string
	logger             *zap.Logger
}

func NewService(
	db *sql.DB,
	orderRepo order_repo.OrderRepository,
	notificationRepo notification_repo.NotificationRepository,
	outboxRepo outbox_repo.OutboxRepository,
	confirmer StatusConfirmer,
	inventory Inventory,
	opts Options,
	logger *zap.Logger,
) Service {
	return &service{
		db:                 db,
		orderRepo:          orderRepo,
		notificationRepo:   notificationRepo,
		outboxRepo:         outboxRepo,
		confirmer:          confirmer,
		inventory:          inventory,
		invoicePrefix:      opts.InvoicePrefix,
		confirmStatus:      opts.ConfirmStatus,
		creditedIsTerminal: opts.CreditedIsTerminal,
		alertsTopic:        opts.AlertsTopic,
		logger:             logger,
	}
}

// HandleNotification applies one provider notification to its order.
// Safe under duplicate, out-of-order and concurrent delivery: repeated
// delivery of the same outcome is a no-op and regressive outcomes are
// discarded.
func (s *service) HandleNotification(ctx context.Context, raw domain.RawNotification, rawPayload []byte) (*Result, error) {
	notification, err := domain.ParseNotification(raw, s.invoicePrefix)
	if err != nil {
		s.logger.Warn("Rejected invalid notification",
			zap.String("reference", raw.Reference),
			zap.String("status", raw.Status),
			zap.Error(err))
		s.recordRejection(ctx, raw, rawPayload, err)
		return nil, err
	}

	if s.confirmStatus && notification.TransactionID != nil {
		confirmed, confirmErr := s.confirmer.ConfirmStatus(ctx, *notification.TransactionID)
		if confirmErr != nil {
			if errors.Is(confirmErr, asaas.ErrProviderUnavailable) {
				s.logger.Warn("Provider unavailable while confirming status, caller may retry",
					zap.Int64("order_id", notification.OrderID),
					zap.Error(confirmErr))
				return nil, confirmErr
			}
			s.logger.Error("Provider rejected status confirmation, operator attention required",
				zap.Int64("order_id", notification.OrderID),
				zap.String("transaction_id", *notification.TransactionID),
				zap.Error(confirmErr))
			return nil, confirmErr
		}
		if confirmed.StatusCode != notification.ProviderStatusCode {
			s.logger.Info("Push payload status differs from confirmed status, trusting the provider",
				zap.Int64("order_id", notification.OrderID),
				zap.Int("push_status", notification.ProviderStatusCode),
				zap.Int("confirmed_status", confirmed.StatusCode))
		}
		notification.ProviderStatusCode = confirmed.StatusCode
		if notification.PaymentLink == nil && confirmed.PaymentLink != "" {
			notification.PaymentLink = &confirmed.PaymentLink
		}
	}

	// One local retry against fresh state when a concurrent notification
	// wins the compare-and-apply race; after that the conflict surfaces.
	for attempt := 0; attempt < 2; attempt++ {
		result, applyErr := s.applyOnce(ctx, notification, rawPayload)
		if errors.Is(applyErr, domain.ErrStatusConflict) {
			s.logger.Warn("Concurrent transition detected, recomputing against fresh state",
				zap.Int64("order_id", notification.OrderID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return result, applyErr
	}

	s.logger.Error("Reconciliation conflict persisted after retry",
		zap.Int64("order_id", notification.OrderID),
		zap.Int("status_code", notification.ProviderStatusCode))
	return nil, ErrReconciliationConflict
}

func (s *service) applyOnce(ctx context.Context, n *domain.Notification, rawPayload []byte) (*Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic during reconciliation, rolling back",
				zap.Int64("order_id", n.OrderID), zap.Any("panic", r))
			tx.Rollback()
			panic(r)
		}
	}()

	result, err := s.applyOnceTx(ctx, tx, n, rawPayload)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back reconciliation transaction",
				zap.Int64("order_id", n.OrderID), zap.Error(rbErr))
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reconciliation transaction: %w", err)
	}

	// Side effects run only after the transition is durably recorded, and
	// never while a transaction is open. Stock decrement is at-least-once;
	// downstream dedupes by transaction id.
	if result.Applied && result.Outcome == domain.OutcomeApproved {
		transactionID := ""
		if n.TransactionID != nil {
			transactionID = *n.TransactionID
		}
		if invErr := s.inventory.DecrementStock(ctx, n.OrderID, transactionID); invErr != nil {
			s.logger.Error("Stock decrement side effect failed",
				zap.Int64("order_id", n.OrderID),
				zap.String("transaction_id", transactionID),
				zap.Error(invErr))
		} else {
			result.StockDecremented = true
		}
	}

	if result.Applied {
		s.logger.Info("Notification applied",
			zap.Int64("order_id", result.OrderID),
			zap.String("outcome", string(result.Outcome)),
			zap.String("from", string(result.FromStatus)),
			zap.String("to", string(result.ToStatus)))
	} else {
		s.logger.Info("Notification resolved as no-op",
			zap.Int64("order_id", result.OrderID),
			zap.String("outcome", string(result.Outcome)),
			zap.String("reason", result.NoOpReason))
	}
	return result, nil
}

func (s *service) applyOnceTx(ctx context.Context, tx *sql.Tx, n *domain.Notification, rawPayload []byte) (*Result, error) {
	order, err := s.orderRepo.GetByIDTx(ctx, tx, n.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Warn("Notification references unknown order",
				zap.Int64("order_id", n.OrderID),
				zap.String("reference", n.Reference))
		}
		return nil, err
	}

	outcome := n.Outcome()
	result := &Result{
		OrderID:    order.ID,
		Reference:  n.Reference,
		Outcome:    outcome,
		FromStatus: order.Status,
		ToStatus:   order.Status,
	}

	if outcome == domain.OutcomeUnknown {
		// Keep the raw code for audit, touch nothing else.
		result.NoOpReason = noOpReasonUnknown
		if err := s.recordDelivery(ctx, tx, n, rawPayload, outcome, domain.ResolutionNoOp, result.NoOpReason); err != nil {
			return nil, err
		}
		note := fmt.Sprintf("Asaas: ignored notification with unrecognized status code %d.", n.ProviderStatusCode)
		if noteErr := s.orderRepo.AppendNoteTx(ctx, tx, order.ID, note); noteErr != nil {
			s.logger.Warn("Failed to append audit note", zap.Int64("order_id", order.ID), zap.Error(noteErr))
		}
		return result, nil
	}

	target, allowed, reason := planTransition(order.Status, outcome, s.creditedIsTerminal)
	if !allowed {
		result.NoOpReason = reason
		if err := s.recordDelivery(ctx, tx, n, rawPayload, outcome, domain.ResolutionNoOp, reason); err != nil {
			return nil, err
		}
		return result, nil
	}

	mutation := domain.OrderMutation{
		NewStatus:        target,
		TransactionID:    n.TransactionID,
		PayerEmail:       n.PayerEmail,
		PayerName:        n.PayerName,
		InstallmentCount: n.InstallmentCount,
		PaymentLink:      n.PaymentLink,
	}
	if label := domain.PaymentMethodLabel(n.PaymentTypeCode, n.PaymentMethodCode); label != "" {
		mutation.PaymentMethodLabel = &label
	}

	expected := order.Status
	updated, err := s.orderRepo.CompareAndApplyTx(ctx, tx, order.ID, &expected, mutation)
	if err != nil {
		return nil, err
	}

	result.ToStatus = updated.Status
	result.Applied = true

	if err := s.recordDelivery(ctx, tx, n, rawPayload, outcome, domain.ResolutionApplied, ""); err != nil {
		return nil, err
	}
	if noteErr := s.orderRepo.AppendNoteTx(ctx, tx, order.ID, outcomeNote(outcome)); noteErr != nil {
		s.logger.Warn("Failed to append transition note", zap.Int64("order_id", order.ID), zap.Error(noteErr))
	}

	if outcome == domain.OutcomeDisputed || outcome == domain.OutcomeRefunded {
		if err := s.enqueueOperatorAlert(ctx, tx, order.ID, n.Reference, outcome); err != nil {
			return nil, err
		}
		result.OperatorAlerted = true
	}

	return result, nil
}

func outcomeNote(outcome domain.CanonicalOutcome) string {
	switch outcome {
	case domain.OutcomeAwaitingFunds:
		return "Asaas: The buyer initiated the transaction, but the provider has not received any payment information yet."
	case domain.OutcomeUnderReview:
		return "Asaas: Payment under review."
	case domain.OutcomeApproved:
		return "Asaas: Payment approved."
	case domain.OutcomeCredited:
		return "Asaas: Payment completed and credited to your account."
	case domain.OutcomeDisputed:
		return "Asaas: Payment came into dispute."
	case domain.OutcomeRefunded:
		return "Asaas: Payment refunded."
	case domain.OutcomeCancelled:
		return "Asaas: Payment canceled."
	}
	return ""
}

func (s *service) enqueueOperatorAlert(ctx context.Context, tx *sql.Tx, orderID int64, reference string, outcome domain.CanonicalOutcome) error {
	var alert domain.OperatorAlertEvent
	switch outcome {
	case domain.OutcomeDisputed:
		alert = domain.OperatorAlertEvent{
			OrderID:   orderID,
			Reference: reference,
			Subject:   fmt.Sprintf("Payment for order %d came into dispute", orderID),
			Title:     "Payment in dispute",
			Message:   fmt.Sprintf("Order %d has been marked as disputed, because the payment came into dispute in Asaas.", orderID),
			Timestamp: time.Now(),
		}
	case domain.OutcomeRefunded:
		alert = domain.OperatorAlertEvent{
			OrderID:   orderID,
			Reference: reference,
			Subject:   fmt.Sprintf("Payment for order %d refunded", orderID),
			Title:     "Payment refunded",
			Message:   fmt.Sprintf("Order %d has been marked as refunded by Asaas.", orderID),
			Timestamp: time.Now(),
		}
	default:
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal operator alert for order %d: %w", orderID, err)
	}
	msg := &domain.OutboxMessage{
		ID:        util.GenerateUUID(),
		OrderID:   orderID,
		Topic:     s.alertsTopic,
		Key:       fmt.Sprintf("%d", orderID),
		Payload:   payload,
		Status:    domain.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.outboxRepo.CreateMessageTx(ctx, tx, msg); err != nil {
		return fmt.Errorf("failed to enqueue operator alert for order %d: %w", orderID, err)
	}
	return nil
}

func (s *service) recordDelivery(ctx context.Context, tx *sql.Tx, n *domain.Notification, rawPayload []byte, outcome domain.CanonicalOutcome, resolution domain.NotificationResolution, detail string) error {
	orderID := n.OrderID
	statusCode := n.ProviderStatusCode
	record := &domain.NotificationRecord{
		ID:         util.GenerateUUID(),
		OrderID:    &orderID,
		Reference:  n.Reference,
		StatusCode: &statusCode,
		Outcome:    outcome,
		Resolution: resolution,
		Detail:     detail,
		Payload:    rawPayload,
		ReceivedAt: time.Now(),
	}
	if err := s.notificationRepo.CreateTx(ctx, tx, record); err != nil {
		return fmt.Errorf("failed to record notification delivery: %w", err)
	}
	return nil
}

// recordRejection writes the audit row for payloads that failed
// validation. Best-effort: the rejection itself is already logged.
func (s *service) recordRejection(ctx context.Context, raw domain.RawNotification, rawPayload []byte, cause error) {
	record := &domain.NotificationRecord{
		ID:         util.GenerateUUID(),
		Reference:  raw.Reference,
		Outcome:    domain.OutcomeUnknown,
		Resolution: domain.ResolutionRejected,
		Detail:     cause.Error(),
		Payload:    rawPayload,
		ReceivedAt: time.Now(),
	}
	if err := s.notificationRepo.CreateTx(ctx, s.db, record); err != nil {
		s.logger.Warn("Failed to record rejected notification", zap.Error(err))
	}
}

func (s *service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	order, err := domain.NewOrder(req.OrderID, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.CreateTx(ctx, s.db, order); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyExists) {
			return nil, err
		}
		s.logger.Error("Failed to create order", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("reference", domain.FormatInvoiceReference(s.invoicePrefix, order.ID)))
	return s.mapOrderToResponse(order), nil
}

func (s *service) GetOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	order, err := s.orderRepo.GetByIDTx(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	return s.mapOrderToResponse(order), nil
}

// ListOrderNotifications exposes the delivery trail of an order: every
// notification it received, applied or not, in arrival order.
func (s *service) ListOrderNotifications(ctx context.Context, orderID int64) ([]*NotificationResponse, error) {
	if _, err := s.orderRepo.GetByIDTx(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	records, err := s.notificationRepo.ListByOrderIDTx(ctx, s.db, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for order %d: %w", orderID, err)
	}
	responses := make([]*NotificationResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, mapNotificationToResponse(record))
	}
	return responses, nil
}

func (s *service) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*OrderResponse, error) {
	orders, err := s.orderRepo.ListByStatusTx(ctx, s.db, status)
	if err != nil {
		return nil, err
	}
	responses := make([]*OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, s.mapOrderToResponse(order))
	}
	return responses, nil
}
