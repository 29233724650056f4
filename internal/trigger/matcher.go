package trigger

import (
	"fmt"
	"strings"

	"github.com/ignite/stayadmin/internal/domain"
)

// ReasonUnconditional is reported for rules with no conditions at all.
// Such rules are rejected by ValidateRule but still fire if one reaches
// evaluation.
const ReasonUnconditional = "no conditions configured"

// MatchedAnswer is the actual answer behind one satisfied condition.
type MatchedAnswer struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Answer Answer `json:"-"`
}

// MatchResult is the outcome of matching one rule against one booking.
type MatchResult struct {
	Fire           bool              `json:"fire"`
	Reason         string            `json:"reason"`
	Conditions     []ConditionResult `json:"conditions,omitempty"`
	StatusMatched  *bool             `json:"status_matched,omitempty"`
	MatchedAnswers []MatchedAnswer   `json:"matched_answers,omitempty"`
}

// Matched returns the actual answer for a question key (or text), if the
// condition on that question was satisfied.
func (m MatchResult) Matched(key string) (any, bool) {
	for _, ma := range m.MatchedAnswers {
		if ma.Key == key {
			return ma.Value, true
		}
	}
	return nil, false
}

// Match evaluates every condition of rule (no short circuit, so all
// failures are reported) and AND-combines the result with the rule's status
// conditions, if any.
func Match(rule *domain.TriggerRule, idx *Index, status domain.BookingStatus) MatchResult {
	if rule.IsUnconditional() {
		return MatchResult{Fire: true, Reason: ReasonUnconditional}
	}

	var (
		res      MatchResult
		failures []string
	)

	for _, cond := range rule.Conditions {
		cr := Evaluate(cond, idx)
		res.Conditions = append(res.Conditions, cr)
		if !cr.Matched {
			failures = append(failures, fmt.Sprintf("%s: %s", cond.Ref(), cr.Reason))
			continue
		}
		res.MatchedAnswers = append(res.MatchedAnswers, MatchedAnswer{
			Key:    cr.QuestionKey,
			Value:  cr.Raw,
			Answer: cr.Actual,
		})
	}

	if len(rule.StatusConditions) > 0 {
		ok := statusAllowed(rule.StatusConditions, status)
		res.StatusMatched = &ok
		if !ok {
			failures = append(failures, statusReason(rule.StatusConditions, status))
		}
	}

	if len(failures) > 0 {
		res.Reason = strings.Join(failures, "; ")
		return res
	}

	res.Fire = true
	switch {
	case len(rule.Conditions) > 0 && res.StatusMatched != nil:
		res.Reason = "all conditions and status matched"
	case len(rule.Conditions) > 0:
		res.Reason = "all conditions matched"
	default:
		res.Reason = "status matched"
	}
	return res
}

func statusAllowed(allowed []domain.BookingStatus, status domain.BookingStatus) bool {
	if strings.TrimSpace(string(status)) == "" {
		return false
	}
	for _, s := range allowed {
		if s.Equal(status) {
			return true
		}
	}
	return false
}

func statusReason(allowed []domain.BookingStatus, status domain.BookingStatus) string {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	if strings.TrimSpace(string(status)) == "" {
		return fmt.Sprintf("booking status unknown, required one of [%s]", strings.Join(names, ", "))
	}
	return fmt.Sprintf("booking status %q not in [%s]", status, strings.Join(names, ", "))
}
