package domain

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrMissingReference      = errors.New("notification has no reference")
	ErrUnresolvableReference = errors.New("notification reference does not resolve to an order id")
	ErrMissingStatus         = errors.New("notification has no status code")
)

// RawNotification is the untyped payload as it arrives on the wire,
// before any validation. String fields mirror the provider's form keys;
// empty string means the field was absent.
type RawNotification struct {
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	TransactionID     string `json:"code"`
	SenderEmail       string `json:"sender_email"`
	SenderName        string `json:"sender_name"`
	PaymentType       string `json:"payment_type"`
	PaymentMethodCode string `json:"payment_method"`
	InstallmentCount  string `json:"installment_count"`
	PaymentLink       string `json:"payment_link"`
}

// Notification is a validated payment event for exactly one order. It is
// transient input: never persisted as-is, and it may be handed to the
// reconciler more than once (at-least-once delivery).
type Notification struct {
	OrderID            int64
	Reference          string
	ProviderStatusCode int
	TransactionID      *string
	PayerEmail         *string
	PayerName          *string
	PaymentTypeCode    *int
	PaymentMethodCode  *int
	InstallmentCount   *int
	PaymentLink        *string
}

// ResolveInvoiceReference strips the invoice prefix and parses the
// remainder as the order id. The remainder must be all digits.
func ResolveInvoiceReference(reference, prefix string) (int64, error) {
	rest := strings.TrimPrefix(reference, prefix)
	if rest == "" {
		return 0, ErrUnresolvableReference
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUnresolvableReference
	}
	return id, nil
}

// ParseNotification validates a raw payload into a typed Notification.
// It is a pure parse: no logging, no I/O. Callers decide what to do with
// rejected payloads.
func ParseNotification(raw RawNotification, invoicePrefix string) (*Notification, error) {
	if raw.Reference == "" {
		return nil, ErrMissingReference
	}
	orderID, err := ResolveInvoiceReference(raw.Reference, invoicePrefix)
	if err != nil {
		return nil, err
	}
	if raw.Status == "" {
		return nil, ErrMissingStatus
	}
	statusCode, err := strconv.Atoi(strings.TrimSpace(raw.Status))
	if err != nil {
		return nil, ErrMissingStatus
	}

	n := &Notification{
		OrderID:            orderID,
		Reference:          raw.Reference,
		ProviderStatusCode: statusCode,
	}
	if raw.TransactionID != "" {
		n.TransactionID = &raw.TransactionID
	}
	if raw.SenderEmail != "" {
		n.PayerEmail = &raw.SenderEmail
	}
	if raw.SenderName != "" {
		n.PayerName = &raw.SenderName
	}
	if code, convErr := strconv.Atoi(raw.PaymentType); convErr == nil && raw.PaymentType != "" {
		n.PaymentTypeCode = &code
	}
	if code, convErr := strconv.Atoi(raw.PaymentMethodCode); convErr == nil && raw.PaymentMethodCode != "" {
		n.PaymentMethodCode = &code
	}
	if count, convErr := strconv.Atoi(raw.InstallmentCount); convErr == nil && raw.InstallmentCount != "" {
		n.InstallmentCount = &count
	}
	if raw.PaymentLink != "" {
		n.PaymentLink = &raw.PaymentLink
	}
	return n, nil
}

// Outcome is a convenience for the canonical outcome of this notification.
func (n *Notification) Outcome() CanonicalOutcome {
	return OutcomeForCode(n.ProviderStatusCode)
}
