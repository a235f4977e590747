package domain

// CanonicalOutcome is the closed set of payment results derived from the
// provider's raw status code.
type CanonicalOutcome string

const (
	OutcomeAwaitingFunds CanonicalOutcome = "AWAITING_FUNDS"
	OutcomeUnderReview   CanonicalOutcome = "UNDER_REVIEW"
	OutcomeApproved      CanonicalOutcome = "APPROVED"
	OutcomeCredited      CanonicalOutcome = "CREDITED"
	OutcomeDisputed      CanonicalOutcome = "DISPUTED"
	OutcomeRefunded      CanonicalOutcome = "REFUNDED"
	OutcomeCancelled     CanonicalOutcome = "CANCELLED"
	OutcomeUnknown       CanonicalOutcome = "UNKNOWN"
)

// outcomeByCode is kept as data rather than logic so the provider mapping
// stays auditable against the gateway documentation.
var outcomeByCode = map[int]CanonicalOutcome{
	1: OutcomeAwaitingFunds,
	2: OutcomeUnderReview,
	3: OutcomeApproved,
	4: OutcomeCredited,
	5: OutcomeDisputed,
	6: OutcomeRefunded,
	7: OutcomeCancelled,
}

// OutcomeForCode maps a provider status code to a canonical outcome.
// It is total: any code outside 1..7 yields OutcomeUnknown.
func OutcomeForCode(code int) CanonicalOutcome {
	if outcome, ok := outcomeByCode[code]; ok {
		return outcome
	}
	return OutcomeUnknown
}
