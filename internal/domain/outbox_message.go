package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage is an operator alert waiting to be published. It is
// written in the same transaction as the order transition that caused it,
// so the alert is recorded exactly once even though delivery downstream
// is at-least-once.
type OutboxMessage struct {
	ID        string
	OrderID   int64
	Topic     string
	Key       string
	Payload   []byte
	Status    OutboxMessageStatus
	CreatedAt time.Time
	SentAt    *time.Time
}
