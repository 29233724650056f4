package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/stayadmin/internal/domain"
)

var validate = validator.New()

// IsEmail reports whether s is email-shaped. No deliverability check.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

type ruleShape struct {
	Name        string `validate:"max=255"`
	Type        string `validate:"required,oneof=internal external highlights"`
	TemplateRef string `validate:"required,max=255"`
}

// ValidateRule checks a rule before it is saved and returns a
// *ConfigurationError listing every problem found.
func ValidateRule(rule *domain.TriggerRule) error {
	var problems []FieldProblem
	add := func(field, msg string) {
		problems = append(problems, FieldProblem{Field: field, Message: msg})
	}

	shape := ruleShape{
		Name:        rule.Name,
		Type:        string(rule.Type),
		TemplateRef: strings.TrimSpace(rule.TemplateRef),
	}
	if err := validate.Struct(shape); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			add(fieldName(fe.Field()), describe(fe))
		}
	}

	if rule.IsUnconditional() {
		add("conditions", "at least one condition or status condition is required")
	}
	for i, c := range rule.Conditions {
		if strings.TrimSpace(c.QuestionKey) == "" && strings.TrimSpace(c.QuestionText) == "" {
			add(fmt.Sprintf("conditions[%d]", i), "question key or question text is required")
		}
	}
	for i, s := range rule.StatusConditions {
		if strings.TrimSpace(string(s)) == "" {
			add(fmt.Sprintf("status_conditions[%d]", i), "status must not be empty")
		}
	}

	switch {
	case rule.Type.UsesFixedRecipients():
		addrs := ParseRecipientList(rule.Recipient)
		if len(addrs) == 0 {
			add("recipient", "at least one recipient address is required")
		}
		for _, a := range addrs {
			if !IsEmail(a) {
				add("recipient", fmt.Sprintf("%q is not a valid email address", a))
			}
		}
	case rule.Type == domain.TriggerExternal:
		if len(rule.Conditions) == 0 {
			add("conditions", "external triggers take their recipient from a matched condition")
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func fieldName(f string) string {
	switch f {
	case "TemplateRef":
		return "template_ref"
	default:
		return strings.ToLower(f)
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
