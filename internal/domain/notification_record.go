package domain

import "time"

type NotificationResolution string

const (
	ResolutionApplied  NotificationResolution = "APPLIED"
	ResolutionNoOp     NotificationResolution = "NO_OP"
	ResolutionRejected NotificationResolution = "REJECTED"
)

// NotificationRecord is the audit trail row written for every delivery the
// service sees, including duplicates and rejected payloads. The reconciler
// itself stays idempotent without it; the trail exists for operators.
type NotificationRecord struct {
	ID         string
	OrderID    *int64
	Reference  string
	StatusCode *int
	Outcome    CanonicalOutcome
	Resolution NotificationResolution
	Detail     string
	Payload    []byte
	ReceivedAt time.Time
}
