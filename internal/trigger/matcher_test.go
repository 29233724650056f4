package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/stayadmin/internal/domain"
)

func TestMatch_AllConditionsMustMatch(t *testing.T) {
	idx := bookingIndex()
	rule := &domain.TriggerRule{
		ID:   "rule-1",
		Type: domain.TriggerInternal,
		Conditions: []domain.TriggerCondition{
			{QuestionKey: "funder_key", ExpectedAnswer: "NDIS"},
			{QuestionKey: "services_key", ExpectedAnswer: "transport"},
		},
	}

	res := Match(rule, idx, domain.BookingConfirmed)
	assert.False(t, res.Fire)
	require.Len(t, res.Conditions, 2)
	assert.True(t, res.Conditions[0].Matched)
	assert.False(t, res.Conditions[1].Matched)
	assert.Contains(t, res.Reason, "services_key")
	assert.NotContains(t, res.Reason, "funder_key")
}

func TestMatch_ReportsEveryFailure(t *testing.T) {
	rule := &domain.TriggerRule{
		Conditions: []domain.TriggerCondition{
			{QuestionKey: "missing_a"},
			{QuestionKey: "missing_b"},
		},
	}
	res := Match(rule, bookingIndex(), "")
	assert.False(t, res.Fire)
	assert.Contains(t, res.Reason, "missing_a: question not found")
	assert.Contains(t, res.Reason, "missing_b: question not found")
}

func TestMatch_CollectsMatchedAnswers(t *testing.T) {
	rule := &domain.TriggerRule{
		Conditions: []domain.TriggerCondition{
			{QuestionKey: "funder_key", ExpectedAnswer: "NDIS"},
			{QuestionText: "Legacy Consent"},
		},
	}
	res := Match(rule, bookingIndex(), domain.BookingPending)
	require.True(t, res.Fire)
	assert.Equal(t, "all conditions matched", res.Reason)
	require.Len(t, res.MatchedAnswers, 2)
	assert.Equal(t, "funder_key", res.MatchedAnswers[0].Key)
	assert.Equal(t, "NDIS", res.MatchedAnswers[0].Value)
	assert.Equal(t, "Legacy consent", res.MatchedAnswers[1].Key)

	v, ok := res.Matched("funder_key")
	assert.True(t, ok)
	assert.Equal(t, "NDIS", v)
}

func TestMatch_StatusConditions(t *testing.T) {
	rule := &domain.TriggerRule{
		Conditions:       []domain.TriggerCondition{{QuestionKey: "funder_key", ExpectedAnswer: "NDIS"}},
		StatusConditions: []domain.BookingStatus{domain.BookingConfirmed, domain.BookingCompleted},
	}

	res := Match(rule, bookingIndex(), "Confirmed")
	assert.True(t, res.Fire)
	require.NotNil(t, res.StatusMatched)
	assert.True(t, *res.StatusMatched)

	res = Match(rule, bookingIndex(), domain.BookingPending)
	assert.False(t, res.Fire)
	assert.Contains(t, res.Reason, `booking status "pending"`)

	res = Match(rule, bookingIndex(), "")
	assert.False(t, res.Fire)
	assert.Contains(t, res.Reason, "booking status unknown")
}

func TestMatch_StatusOnlyRule(t *testing.T) {
	rule := &domain.TriggerRule{StatusConditions: []domain.BookingStatus{domain.BookingCancelled}}
	res := Match(rule, NewIndex(nil), domain.BookingCancelled)
	assert.True(t, res.Fire)
	assert.Equal(t, "status matched", res.Reason)
	assert.Empty(t, res.MatchedAnswers)
}

func TestMatch_UnconditionalRuleFires(t *testing.T) {
	res := Match(&domain.TriggerRule{}, NewIndex(nil), "")
	assert.True(t, res.Fire)
	assert.Equal(t, ReasonUnconditional, res.Reason)
}
