package reconciler

import "github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"

// targetStatus is the order status each canonical outcome drives toward.
var targetStatus = map[domain.CanonicalOutcome]domain.OrderStatus{
	domain.OutcomeAwaitingFunds: domain.OrderStatusAwaitingFunds,
	domain.OutcomeUnderReview:   domain.OrderStatusUnderReview,
	domain.OutcomeApproved:      domain.OrderStatusApproved,
	domain.OutcomeCredited:      domain.OrderStatusCredited,
	domain.OutcomeDisputed:      domain.OrderStatusDisputed,
	domain.OutcomeRefunded:      domain.OrderStatusRefunded,
	domain.OutcomeCancelled:     domain.OrderStatusCancelled,
}

// allowedFrom lists the statuses an outcome may be applied from. Anything
// not listed is either a duplicate or a regressive delivery and must be a
// no-op; re-applying the same outcome never repeats side effects.
var allowedFrom = map[domain.CanonicalOutcome][]domain.OrderStatus{
	domain.OutcomeAwaitingFunds: {domain.OrderStatusPending},
	domain.OutcomeUnderReview:   {domain.OrderStatusPending, domain.OrderStatusAwaitingFunds},
	domain.OutcomeApproved:      {domain.OrderStatusPending, domain.OrderStatusAwaitingFunds, domain.OrderStatusUnderReview},
	domain.OutcomeCredited:      {domain.OrderStatusApproved},
	domain.OutcomeDisputed:      {domain.OrderStatusApproved, domain.OrderStatusUnderReview},
	domain.OutcomeRefunded:      {domain.OrderStatusApproved, domain.OrderStatusDisputed},
	domain.OutcomeCancelled: {
		domain.OrderStatusPending,
		domain.OrderStatusAwaitingFunds,
		domain.OrderStatusUnderReview,
		domain.OrderStatusApproved,
		domain.OrderStatusCredited,
		domain.OrderStatusDisputed,
	},
}

const (
	noOpReasonTerminal  = "order is in a terminal status"
	noOpReasonDuplicate = "outcome already applied"
	noOpReasonRegressed = "outcome would regress the order status"
	noOpReasonUnknown   = "provider status code not recognized"
)

// planTransition decides whether outcome may be applied to an order
// currently in from. When it may not, reason says why.
func planTransition(from domain.OrderStatus, outcome domain.CanonicalOutcome, creditedIsTerminal bool) (to domain.OrderStatus, allowed bool, reason string) {
	target, ok := targetStatus[outcome]
	if !ok {
		return from, false, noOpReasonUnknown
	}
	// Terminal wins over duplicate: a CANCELLED order re-receiving the
	// cancel outcome is rejected for being terminal, not for repetition.
	if from.IsTerminal(creditedIsTerminal) {
		return from, false, noOpReasonTerminal
	}
	if from == target {
		return from, false, noOpReasonDuplicate
	}

	for _, status := range allowedFrom[outcome] {
		if status == from {
			return target, true, ""
		}
	}
	return from, false, noOpReasonRegressed
}
