package trigger

import (
	"fmt"
	"strings"

	"github.com/ignite/stayadmin/internal/domain"
)

// RecipientStrategy decides who receives the notification of a firing rule.
type RecipientStrategy interface {
	Resolve(rule *domain.TriggerRule, m MatchResult) (domain.Recipient, error)
}

// FixedRecipients sends to the comma-separated list configured on the rule.
// Addresses are validated when the rule is saved, not here.
type FixedRecipients struct{}

func (FixedRecipients) Resolve(rule *domain.TriggerRule, _ MatchResult) (domain.Recipient, error) {
	addrs := ParseRecipientList(rule.Recipient)
	if len(addrs) == 0 {
		return domain.Recipient{}, &ResolutionError{RuleID: rule.ID, Reason: "no recipient", Err: ErrNoRecipient}
	}
	return domain.Recipient{Addresses: addrs}, nil
}

// AnswerRecipient sends to the address given by the first matched answer,
// e.g. the funder's email collected on the booking form.
type AnswerRecipient struct{}

func (AnswerRecipient) Resolve(rule *domain.TriggerRule, m MatchResult) (domain.Recipient, error) {
	if len(m.MatchedAnswers) == 0 {
		return domain.Recipient{}, &ResolutionError{RuleID: rule.ID, Reason: "no recipient", Err: ErrNoRecipient}
	}
	addr := addressFrom(m.MatchedAnswers[0])
	if addr == "" {
		return domain.Recipient{}, &ResolutionError{RuleID: rule.ID, Reason: "no recipient", Err: ErrNoRecipient}
	}
	if !IsEmail(addr) {
		return domain.Recipient{}, &ResolutionError{
			RuleID: rule.ID,
			Reason: fmt.Sprintf("invalid recipient %q from answer %s", addr, m.MatchedAnswers[0].Key),
			Err:    ErrInvalidRecipient,
		}
	}
	return domain.Recipient{Addresses: []string{addr}}, nil
}

var strategies = map[domain.TriggerType]RecipientStrategy{
	domain.TriggerInternal:   FixedRecipients{},
	domain.TriggerHighlights: FixedRecipients{},
	domain.TriggerExternal:   AnswerRecipient{},
}

// StrategyFor returns the recipient strategy bound to a trigger type.
func StrategyFor(t domain.TriggerType) (RecipientStrategy, error) {
	s, ok := strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return s, nil
}

// ResolveRecipient picks the recipient for a firing rule using the strategy
// of its type.
func ResolveRecipient(rule *domain.TriggerRule, m MatchResult) (domain.Recipient, error) {
	s, err := StrategyFor(rule.Type)
	if err != nil {
		return domain.Recipient{}, &ResolutionError{RuleID: rule.ID, Reason: err.Error(), Err: err}
	}
	return s.Resolve(rule, m)
}

// ParseRecipientList splits a comma-separated address list, trimming
// whitespace and dropping empty entries.
func ParseRecipientList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func addressFrom(ma MatchedAnswer) string {
	switch ma.Answer.Kind() {
	case Scalar:
		if s, ok := ma.Value.(string); ok {
			return strings.TrimSpace(s)
		}
		return ma.Answer.Scalar()
	case MultiValue:
		return ma.Answer.Values()[0]
	default:
		return ""
	}
}
