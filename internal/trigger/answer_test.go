package trigger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/stayadmin/internal/domain"
)

func TestNormalize_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		qt   domain.QuestionType
		want Answer
	}{
		{"nil", nil, domain.QuestionText, Answer{}},
		{"empty string", "", domain.QuestionText, Answer{}},
		{"blank string", "   ", domain.QuestionText, Answer{}},
		{"true", true, domain.QuestionSingleChoice, ScalarAnswer("yes")},
		{"false", false, domain.QuestionSingleChoice, ScalarAnswer("no")},
		{"native array", []any{" Catering ", "MUSIC", ""}, domain.QuestionMultiChoice, MultiAnswer("catering", "music")},
		{"string slice", []string{"A", "b"}, domain.QuestionText, MultiAnswer("a", "b")},
		{"empty array", []any{}, domain.QuestionMultiChoice, Answer{}},
		{"json array string", `["Catering","Music"]`, domain.QuestionText, MultiAnswer("catering", "music")},
		{"delimited multi-choice", "Catering, Music", domain.QuestionMultiChoice, MultiAnswer("catering", "music")},
		{"pipe delimited multi-choice", "Catering|Music", domain.QuestionMultiChoice, MultiAnswer("catering", "music")},
		{"delimited text stays scalar", "Catering, Music", domain.QuestionText, ScalarAnswer("catering, music")},
		{"scalar", "  NDIS ", domain.QuestionSingleChoice, ScalarAnswer("ndis")},
		{"number", float64(3), domain.QuestionText, ScalarAnswer("3")},
		{"numeric string", "42", domain.QuestionText, ScalarAnswer("42")},
		{"broken json array", "[abc", domain.QuestionText, ScalarAnswer("[abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw, tt.qt))
		})
	}
}

func TestNormalize_StructuredFromJSONObject(t *testing.T) {
	got := Normalize(`{"Plan": " Core ", "hours": 4}`, domain.QuestionOther)
	assert.Equal(t, Structured, got.Kind())
	assert.Equal(t, map[string]any{"Plan": "core", "hours": float64(4)}, got.Structured())
}

func TestNormalize_RawMessage(t *testing.T) {
	got := Normalize(json.RawMessage(`["a","B"]`), domain.QuestionText)
	assert.Equal(t, MultiAnswer("a", "b"), got)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []struct {
		raw any
		qt  domain.QuestionType
	}{
		{"NDIS", domain.QuestionSingleChoice},
		{true, domain.QuestionSingleChoice},
		{"catering, music", domain.QuestionMultiChoice},
		{`["Catering","Music"]`, domain.QuestionMultiChoice},
		{[]any{"x", float64(2), true}, domain.QuestionMultiChoice},
		{`{"funder":"NDIS","details":{"Plan":"Core","items":["A"," b "]}}`, domain.QuestionOther},
		{map[string]any{"k": " V "}, domain.QuestionOther},
		{float64(1.5), domain.QuestionText},
		{"a, b", domain.QuestionText},
		{nil, domain.QuestionText},
	}

	for _, in := range inputs {
		once := Normalize(in.raw, in.qt)
		twice := Normalize(Render(once), in.qt)
		assert.Equal(t, once, twice, "input %#v", in.raw)
	}
}

func TestAnswer_String(t *testing.T) {
	assert.Equal(t, `"ndis"`, ScalarAnswer("ndis").String())
	assert.Equal(t, "[a, b]", MultiAnswer("a", "b").String())
	assert.Equal(t, "<absent>", Answer{}.String())
}
