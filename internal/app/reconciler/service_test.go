package reconciler

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
)

// The service owns its transactions, so tests register a stub driver
// whose transactions are no-ops; all state lives in the fakes below.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return &stubConn{}, nil }

type stubConn struct{}

func (*stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*stubConn) Close() error                        { return nil }
func (*stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var registerStubOnce sync.Once

func newStubDB(t *testing.T) *sql.DB {
	t.Helper()
	registerStubOnce.Do(func() { sql.Register("reconciler-stub", stubDriver{}) })
	db, err := sql.Open("reconciler-stub", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[int64]*domain.Order
	notes    []string
	getCalls int
	casCalls int
	// beforeCAS runs with the lock held just before the guard check,
	// simulating a concurrent writer that commits between load and apply.
	beforeCAS func(r *fakeOrderRepo)
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[int64]*domain.Order{}}
}

func (r *fakeOrderRepo) put(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *order
	r.orders[order.ID] = &clone
}

func (r *fakeOrderRepo) CreateTx(_ context.Context, _ domain.Querier, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return domain.ErrOrderAlreadyExists
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) GetByIDTx(_ context.Context, _ domain.Querier, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) ListByStatusTx(_ context.Context, _ domain.Querier, status domain.OrderStatus) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.Status == status {
			clone := *order
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) CompareAndApplyTx(_ context.Context, _ domain.Querier, id int64, expected *domain.OrderStatus, mut domain.OrderMutation) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casCalls++
	if r.beforeCAS != nil {
		r.beforeCAS(r)
	}
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if expected != nil && order.Status != *expected {
		return nil, domain.ErrStatusConflict
	}
	order.Status = mut.NewStatus
	if order.TransactionID == nil && mut.TransactionID != nil {
		order.TransactionID = mut.TransactionID
	}
	if mut.PayerEmail != nil {
		order.PayerEmail = mut.PayerEmail
	}
	if mut.PayerName != nil {
		order.PayerName = mut.PayerName
	}
	if mut.PaymentMethodLabel != nil {
		order.PaymentMethodLabel = mut.PaymentMethodLabel
	}
	if mut.InstallmentCount != nil {
		order.InstallmentCount = mut.InstallmentCount
	}
	if mut.PaymentLink != nil {
		order.PaymentLink = mut.PaymentLink
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) AppendNoteTx(_ context.Context, _ domain.Querier, _ int64, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	records []*domain.NotificationRecord
}

func (r *fakeNotificationRepo) CreateTx(_ context.Context, _ domain.Querier, record *domain.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeNotificationRepo) ListByOrderIDTx(_ context.Context, _ domain.Querier, orderID int64) ([]*domain.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.NotificationRecord
	for _, record := range r.records {
		if record.OrderID != nil && *record.OrderID == orderID {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	mu       sync.Mutex
	messages []*domain.OutboxMessage
}

func (r *fakeOutboxRepo) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeOutboxRepo) GetPendingMessages(_ context.Context, _ domain.Querier, _ int) ([]domain.OutboxMessage, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkMessagesAsSent(_ context.Context, _ domain.Querier, _ []string) error {
	return nil
}

func (r *fakeOutboxRepo) MarkMessagesAsFailed(_ context.Context, _ domain.Querier, _ []string) error {
	return nil
}

type fakeInventory struct {
	mu    sync.Mutex
	calls []string
}

func (i *fakeInventory) DecrementStock(_ context.Context, _ int64, transactionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, transactionID)
	return nil
}

type fakeConfirmer struct {
	confirm func(transactionID string) (*asaas.ProviderStatus, error)
	calls   int
}

func (c *fakeConfirmer) ConfirmStatus(_ context.Context, transactionID string) (*asaas.ProviderStatus, error) {
	c.calls++
	if c.confirm == nil {
		return nil, errors.New("unexpected confirmation call")
	}
	return c.confirm(transactionID)
}

type testEnv struct {
	service   Service
	orders    *fakeOrderRepo
	audit     *fakeNotificationRepo
	outbox    *fakeOutboxRepo
	inventory *fakeInventory
	confirmer *fakeConfirmer
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    newFakeOrderRepo(),
		audit:     &fakeNotificationRepo{},
		outbox:    &fakeOutboxRepo{},
		inventory: &fakeInventory{},
		confirmer: &fakeConfirmer{},
	}
	if opts.InvoicePrefix == "" {
		opts.InvoicePrefix = "WC-"
	}
	if opts.AlertsTopic == "" {
		opts.AlertsTopic = "operator_alerts"
	}
	env.service = NewService(
		newStubDB(t),
		env.orders,
		env.audit,
		env.outbox,
		env.confirmer,
		env.inventory,
		opts,
		zap.NewNop(),
	)
	return env
}

func seedOrder(t *testing.T, env *testEnv, id int64, status domain.OrderStatus) {
	t.Helper()
	order, err := domain.NewOrder(id, decimal.NewFromInt(100))
	require.NoError(t, err)
	order.Status = status
	env.orders.put(order)
}

func notificationWithCode(reference, status, transactionID string) domain.RawNotification {
	return domain.RawNotification{
		Reference:     reference,
		Status:        status,
		TransactionID: transactionID,
	}
}

func TestHandleNotificationApprovesPendingOrder(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "3", "TX1"), nil)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)
	assert.Equal(t, domain.OrderStatusPending, result.FromStatus)
	assert.Equal(t, domain.OrderStatusApproved, result.ToStatus)
	assert.True(t, result.StockDecremented)

	stored := env.orders.orders[1]
	assert.Equal(t, domain.OrderStatusApproved, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "TX1", *stored.TransactionID)

	assert.Equal(t, []string{"TX1"}, env.inventory.calls)
}

func TestHandleNotificationDuplicateApprovalIsNoOp(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	ctx := context.Background()
	raw := notificationWithCode("WC-1", "3", "TX1")

	first, err := env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)

	assert.False(t, second.Applied)
	assert.Equal(t, noOpReasonDuplicate, second.NoOpReason)
	assert.Equal(t, domain.OrderStatusApproved, env.orders.orders[1].Status)
	// Side effects fire exactly once across both deliveries.
	assert.Len(t, env.inventory.calls, 1)
}

func TestHandleNotificationUnresolvableReference(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	_, err := env.service.HandleNotification(context.Background(), notificationWithCode("XX-999", "3", ""), nil)
	assert.ErrorIs(t, err, domain.ErrUnresolvableReference)

	// No order was read or mutated; only the rejection audit row exists.
	assert.Zero(t, env.orders.getCalls)
	assert.Zero(t, env.orders.casCalls)
	require.Len(t, env.audit.records, 1)
	assert.Equal(t, domain.ResolutionRejected, env.audit.records[0].Resolution)
}

func TestHandleNotificationOrderNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-404", "3", ""), nil)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestHandleNotificationNoRegressionFromApproved(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusApproved)

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "1", ""), nil)
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, noOpReasonRegressed, result.NoOpReason)
	assert.Equal(t, domain.OrderStatusApproved, env.orders.orders[1].Status)
}

func TestHandleNotificationUnknownCode(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "9", ""), nil)
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, noOpReasonUnknown, result.NoOpReason)
	assert.Equal(t, domain.OrderStatusPending, env.orders.orders[1].Status)
	// The raw code is kept for audit.
	require.Len(t, env.audit.records, 1)
	require.NotNil(t, env.audit.records[0].StatusCode)
	assert.Equal(t, 9, *env.audit.records[0].StatusCode)
}

func TestHandleNotificationDisputeEnqueuesOperatorAlertOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusApproved)

	ctx := context.Background()
	raw := notificationWithCode("WC-1", "5", "")

	first, err := env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.True(t, first.OperatorAlerted)

	second, err := env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	assert.Len(t, env.outbox.messages, 1)
}

func TestHandleNotificationRefundIsTerminal(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusApproved)

	ctx := context.Background()
	result, err := env.service.HandleNotification(ctx, notificationWithCode("WC-1", "6", ""), nil)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.True(t, result.OperatorAlerted)

	// Nothing moves a refunded order.
	late, err := env.service.HandleNotification(ctx, notificationWithCode("WC-1", "3", ""), nil)
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, noOpReasonTerminal, late.NoOpReason)
	assert.Equal(t, domain.OrderStatusRefunded, env.orders.orders[1].Status)
}

func TestHandleNotificationTransactionIDIsWriteOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	ctx := context.Background()
	_, err := env.service.HandleNotification(ctx, notificationWithCode("WC-1", "3", "TX1"), nil)
	require.NoError(t, err)

	_, err = env.service.HandleNotification(ctx, notificationWithCode("WC-1", "6", "TX2"), nil)
	require.NoError(t, err)

	stored := env.orders.orders[1]
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "TX1", *stored.TransactionID)
}

func TestHandleNotificationRecoversFromOneConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusUnderReview)

	// A concurrent approval commits between our load and apply: the first
	// compare-and-apply loses, the retry recomputes against APPROVED and
	// the dispute then lands.
	raced := false
	env.orders.beforeCAS = func(r *fakeOrderRepo) {
		if !raced {
			raced = true
			r.orders[1].Status = domain.OrderStatusApproved
		}
	}

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "5", ""), nil)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, domain.OrderStatusApproved, result.FromStatus)
	assert.Equal(t, domain.OrderStatusDisputed, result.ToStatus)
	assert.Equal(t, 2, env.orders.casCalls)
}

func TestHandleNotificationSurfacesPersistentConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusUnderReview)

	// A pathological racer flips the status before every apply, so both
	// the first attempt and the bounded retry lose.
	flip := domain.OrderStatusApproved
	env.orders.beforeCAS = func(r *fakeOrderRepo) {
		r.orders[1].Status = flip
		if flip == domain.OrderStatusApproved {
			flip = domain.OrderStatusUnderReview
		} else {
			flip = domain.OrderStatusApproved
		}
	}

	_, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "5", ""), nil)
	assert.ErrorIs(t, err, ErrReconciliationConflict)
	assert.Equal(t, 2, env.orders.casCalls)
}

func TestHandleNotificationConfirmsStatusWithProvider(t *testing.T) {
	env := newTestEnv(t, Options{ConfirmStatus: true})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	// Push payload claims AwaitingFunds, the provider says Approved; the
	// provider wins.
	env.confirmer.confirm = func(transactionID string) (*asaas.ProviderStatus, error) {
		return &asaas.ProviderStatus{TransactionID: transactionID, StatusCode: 3}, nil
	}

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "1", "TX1"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, env.confirmer.calls)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.OutcomeApproved, result.Outcome)
	assert.Equal(t, domain.OrderStatusApproved, env.orders.orders[1].Status)
}

func TestHandleNotificationProviderUnavailableIsRetryable(t *testing.T) {
	env := newTestEnv(t, Options{ConfirmStatus: true})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	env.confirmer.confirm = func(string) (*asaas.ProviderStatus, error) {
		return nil, asaas.ErrProviderUnavailable
	}

	_, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "3", "TX1"), nil)
	assert.ErrorIs(t, err, asaas.ErrProviderUnavailable)

	// Nothing was mutated, so the caller can safely retry.
	assert.Zero(t, env.orders.casCalls)
	assert.Equal(t, domain.OrderStatusPending, env.orders.orders[1].Status)
}

func TestHandleNotificationSkipsConfirmationWithoutTransactionID(t *testing.T) {
	env := newTestEnv(t, Options{ConfirmStatus: true})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	result, err := env.service.HandleNotification(context.Background(), notificationWithCode("WC-1", "2", ""), nil)
	require.NoError(t, err)

	assert.Zero(t, env.confirmer.calls)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.OrderStatusUnderReview, result.ToStatus)
}

func TestListOrderNotifications(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env, 1, domain.OrderStatusPending)

	ctx := context.Background()
	raw := notificationWithCode("WC-1", "3", "TX1")
	_, err := env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)
	_, err = env.service.HandleNotification(ctx, raw, nil)
	require.NoError(t, err)

	// The trail keeps every delivery, the idempotent no-op included.
	trail, err := env.service.ListOrderNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.ResolutionApplied, trail[0].Resolution)
	assert.Equal(t, domain.ResolutionNoOp, trail[1].Resolution)
	assert.Equal(t, domain.OutcomeApproved, trail[0].Outcome)

	_, err = env.service.ListOrderNotifications(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCreateAndGetOrder(t *testing.T) {
	env := newTestEnv(t, Options{})

	created, err := env.service.CreateOrder(context.Background(), &CreateOrderRequest{OrderID: 7, Amount: decimal.NewFromInt(250)})
	require.NoError(t, err)
	assert.Equal(t, "WC-7", created.Reference)
	assert.Equal(t, string(domain.OrderStatusPending), created.Status)
	assert.Equal(t, "250.00", created.AmountDue)

	fetched, err := env.service.GetOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, fetched.OrderID)

	_, err = env.service.CreateOrder(context.Background(), &CreateOrderRequest{OrderID: 7, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyExists)
}
