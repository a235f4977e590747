package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "WC-"

func TestResolveInvoiceReferenceRoundTrip(t *testing.T) {
	for _, orderID := range []int64{1, 42, 987654321} {
		reference := FormatInvoiceReference(testPrefix, orderID)
		resolved, err := ResolveInvoiceReference(reference, testPrefix)
		require.NoError(t, err)
		assert.Equal(t, orderID, resolved)
	}
}

func TestResolveInvoiceReferenceRejectsNonNumericRemainder(t *testing.T) {
	for _, reference := range []string{"XX-999", "WC-abc", "WC-", "WC-12x", "WC--5"} {
		_, err := ResolveInvoiceReference(reference, testPrefix)
		assert.ErrorIs(t, err, ErrUnresolvableReference, "reference %q", reference)
	}
}

func TestParseNotificationMissingReference(t *testing.T) {
	_, err := ParseNotification(RawNotification{Status: "3"}, testPrefix)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestParseNotificationUnresolvableReference(t *testing.T) {
	_, err := ParseNotification(RawNotification{Reference: "XX-999", Status: "3"}, testPrefix)
	assert.ErrorIs(t, err, ErrUnresolvableReference)
}

func TestParseNotificationMissingStatus(t *testing.T) {
	_, err := ParseNotification(RawNotification{Reference: "WC-10"}, testPrefix)
	assert.ErrorIs(t, err, ErrMissingStatus)

	_, err = ParseNotification(RawNotification{Reference: "WC-10", Status: "approved"}, testPrefix)
	assert.ErrorIs(t, err, ErrMissingStatus)
}

func TestParseNotificationFull(t *testing.T) {
	raw := RawNotification{
		Reference:         "WC-77",
		Status:            "3",
		TransactionID:     "TX1",
		SenderEmail:       "payer@example.com",
		SenderName:        "Maria Silva",
		PaymentType:       "1",
		PaymentMethodCode: "102",
		InstallmentCount:  "3",
		PaymentLink:       "https://provider.example/pay/TX1",
	}

	n, err := ParseNotification(raw, testPrefix)
	require.NoError(t, err)

	assert.Equal(t, int64(77), n.OrderID)
	assert.Equal(t, 3, n.ProviderStatusCode)
	assert.Equal(t, OutcomeApproved, n.Outcome())
	require.NotNil(t, n.TransactionID)
	assert.Equal(t, "TX1", *n.TransactionID)
	require.NotNil(t, n.PayerEmail)
	assert.Equal(t, "payer@example.com", *n.PayerEmail)
	require.NotNil(t, n.PaymentMethodCode)
	assert.Equal(t, 102, *n.PaymentMethodCode)
	require.NotNil(t, n.InstallmentCount)
	assert.Equal(t, 3, *n.InstallmentCount)
}

func TestParseNotificationOptionalFieldsAbsent(t *testing.T) {
	n, err := ParseNotification(RawNotification{Reference: "WC-5", Status: "1"}, testPrefix)
	require.NoError(t, err)

	assert.Nil(t, n.TransactionID)
	assert.Nil(t, n.PayerEmail)
	assert.Nil(t, n.PayerName)
	assert.Nil(t, n.PaymentTypeCode)
	assert.Nil(t, n.PaymentMethodCode)
	assert.Nil(t, n.InstallmentCount)
	assert.Nil(t, n.PaymentLink)
}

func TestPaymentMethodLabel(t *testing.T) {
	typeCode := 1
	methodCode := 102

	assert.Equal(t, "Credit Card MasterCard", PaymentMethodLabel(&typeCode, &methodCode))
	assert.Equal(t, "Credit Card", PaymentMethodLabel(&typeCode, nil))
	assert.Equal(t, "", PaymentMethodLabel(nil, nil))

	unknown := 9999
	assert.Equal(t, "Unknown", PaymentMethodLabel(nil, &unknown))
}

func TestFormatInvoiceReference(t *testing.T) {
	assert.Equal(t, "WC-123", FormatInvoiceReference("WC-", 123))
	assert.Equal(t, fmt.Sprintf("INV%d", 9), FormatInvoiceReference("INV", 9))
}
