package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeForCode(t *testing.T) {
	expected := map[int]CanonicalOutcome{
		1: OutcomeAwaitingFunds,
		2: OutcomeUnderReview,
		3: OutcomeApproved,
		4: OutcomeCredited,
		5: OutcomeDisputed,
		6: OutcomeRefunded,
		7: OutcomeCancelled,
	}
	for code, outcome := range expected {
		assert.Equal(t, outcome, OutcomeForCode(code), "code %d", code)
	}
}

func TestOutcomeForCodeUnknown(t *testing.T) {
	for _, code := range []int{-1, 0, 8, 42, 100, 999} {
		assert.Equal(t, OutcomeUnknown, OutcomeForCode(code), "code %d", code)
	}
}
