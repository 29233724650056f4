package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the trigger engine.
var (
	ErrNoRecipient      = errors.New("no recipient")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrUnknownType      = errors.New("unknown trigger type")
	ErrNoBooking        = errors.New("booking snapshot missing")
)

// FieldProblem is one validation failure on a rule field.
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigurationError reports a malformed trigger rule. It is raised when a
// rule is saved, never during evaluation.
type ConfigurationError struct {
	Problems []FieldProblem
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "invalid trigger rule: " + strings.Join(parts, "; ")
}

// ResolutionError means no recipient could be determined for a firing rule.
type ResolutionError struct {
	RuleID string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve recipient for rule %s: %s", e.RuleID, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// BindError means the merge-tag bag could not be assembled.
type BindError struct {
	BookingID string
	Err       error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind merge tags for booking %s: %v", e.BookingID, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// DispatchError wraps a notifier failure for one rule.
type DispatchError struct {
	RuleID      string
	TemplateRef string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch rule %s (template %s): %v", e.RuleID, e.TemplateRef, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// InfrastructureError wraps a failure of the stores backing evaluation.
// It aborts a whole evaluation pass.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
