package domain

import "time"

// TriggerType is the closed set of notification trigger kinds. Each kind has
// its own recipient strategy.
type TriggerType string

const (
	// TriggerInternal notifies a fixed list of staff addresses.
	TriggerInternal TriggerType = "internal"
	// TriggerExternal notifies the address supplied by the booking's own
	// matched answer (funder, case manager, ...).
	TriggerExternal TriggerType = "external"
	// TriggerHighlights sends booking highlights to a fixed list.
	TriggerHighlights TriggerType = "highlights"
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{TriggerInternal, TriggerExternal, TriggerHighlights}

// Valid reports whether t is one of the supported trigger types.
func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// UsesFixedRecipients is true for trigger types whose recipient list is
// configured on the rule itself.
func (t TriggerType) UsesFixedRecipients() bool {
	return t == TriggerInternal || t == TriggerHighlights
}

// TriggerCondition is one (question, expected answer) pair. The question is
// referenced by key, falling back to exact question text. An empty
// ExpectedAnswer accepts any non-empty answer.
type TriggerCondition struct {
	QuestionKey    string `json:"question_key,omitempty"`
	QuestionText   string `json:"question_text,omitempty"`
	ExpectedAnswer string `json:"expected_answer,omitempty"`
}

// Ref returns the key, or the text when the condition has no key.
func (c TriggerCondition) Ref() string {
	if c.QuestionKey != "" {
		return c.QuestionKey
	}
	return c.QuestionText
}

// TriggerRule is an administrator-configured notification trigger.
type TriggerRule struct {
	ID               string             `json:"id" db:"id"`
	Name             string             `json:"name" db:"name"`
	Enabled          bool               `json:"enabled" db:"enabled"`
	Type             TriggerType        `json:"type" db:"trigger_type"`
	Recipient        string             `json:"recipient" db:"recipient"`
	TemplateRef      string             `json:"template_ref" db:"template_ref"`
	Conditions       []TriggerCondition `json:"conditions"`
	StatusConditions []BookingStatus    `json:"status_conditions,omitempty"`
	FireCount        int64              `json:"fire_count" db:"fire_count"`
	LastFiredAt      *time.Time         `json:"last_fired_at" db:"last_fired_at"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// IsUnconditional is true when the rule has neither answer nor status
// conditions. Such a rule fires for every booking event of its type.
func (r *TriggerRule) IsUnconditional() bool {
	return len(r.Conditions) == 0 && len(r.StatusConditions) == 0
}

// Recipient is the resolved destination of a notification.
type Recipient struct {
	Addresses []string `json:"addresses"`
}

// Primary returns the first address, or "" when there is none.
func (r Recipient) Primary() string {
	if len(r.Addresses) == 0 {
		return ""
	}
	return r.Addresses[0]
}

// FireResult records the outcome of dispatching one matching rule.
type FireResult struct {
	RuleID    string     `json:"rule_id"`
	RuleName  string     `json:"rule_name,omitempty"`
	BookingID string     `json:"booking_id"`
	Success   bool       `json:"success"`
	Recipient []string   `json:"recipient,omitempty"`
	Error     string     `json:"error,omitempty"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
}
