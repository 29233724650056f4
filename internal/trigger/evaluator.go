package trigger

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/ignite/stayadmin/internal/domain"
)

// Reasons reported by Evaluate.
const (
	ReasonQuestionNotFound = "question not found"
	ReasonNoAnswer         = "no answer"
	ReasonAnyAnswer        = "any answer accepted"
	ReasonMatched          = "answer matched"
)

// ConditionResult is the outcome of evaluating one condition. Reason is
// always set so that negative outcomes can be explained.
type ConditionResult struct {
	Condition   domain.TriggerCondition `json:"condition"`
	Matched     bool                    `json:"matched"`
	Reason      string                  `json:"reason"`
	QuestionKey string                  `json:"question_key,omitempty"`
	Actual      Answer                  `json:"-"`
	Raw         any                     `json:"actual_answer,omitempty"`
}

// Evaluate checks one condition against a booking's answers.
func Evaluate(cond domain.TriggerCondition, idx *Index) ConditionResult {
	res := ConditionResult{Condition: cond}

	if idx == nil {
		res.Reason = ReasonQuestionNotFound + ": " + cond.Ref()
		return res
	}
	rec, ok := idx.Resolve(cond.QuestionKey, cond.QuestionText)
	if !ok {
		res.Reason = ReasonQuestionNotFound + ": " + cond.Ref()
		return res
	}

	res.QuestionKey = rec.Ref()
	res.Raw = rec.Value
	res.Actual = Normalize(rec.Value, rec.QuestionType)

	if res.Actual.IsAbsent() {
		res.Reason = ReasonNoAnswer
		return res
	}
	if strings.TrimSpace(cond.ExpectedAnswer) == "" {
		res.Matched = true
		res.Reason = ReasonAnyAnswer
		return res
	}

	expected := Normalize(cond.ExpectedAnswer, rec.QuestionType)
	res.Matched, res.Reason = compare(res.Actual, expected)
	return res
}

func compare(actual, expected Answer) (bool, string) {
	switch {
	case actual.kind == Scalar && expected.kind == Scalar:
		if actual.scalar == expected.scalar {
			return true, ReasonMatched
		}
		return false, fmt.Sprintf("answer %s does not equal expected %s", actual, expected)

	case actual.kind == MultiValue && expected.kind == Scalar:
		if slices.Contains(actual.values, expected.scalar) {
			return true, ReasonMatched
		}
		return false, fmt.Sprintf("expected %s not among selected values %s", expected, actual)

	case actual.kind == MultiValue && expected.kind == MultiValue:
		if missing := difference(expected.values, actual.values); len(missing) > 0 {
			return false, fmt.Sprintf("selected values %s missing expected [%s]", actual, strings.Join(missing, ", "))
		}
		return true, ReasonMatched

	case actual.kind == Scalar && expected.kind == MultiValue:
		for _, v := range expected.values {
			if v != actual.scalar {
				return false, fmt.Sprintf("answer %s does not cover expected %s", actual, expected)
			}
		}
		return true, ReasonMatched

	case actual.kind == Structured && expected.kind == Structured:
		if reflect.DeepEqual(actual.structured, expected.structured) {
			return true, ReasonMatched
		}
		return false, fmt.Sprintf("structured answer %s does not equal expected %s", actual, expected)
	}

	return false, fmt.Sprintf("cannot compare %s answer with %s expectation", actual.kind, expected.kind)
}

// difference returns the elements of want that are not in have.
func difference(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	var missing []string
	for _, w := range want {
		if _, ok := set[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}
