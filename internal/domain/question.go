package domain

import "time"

// QuestionType enumerates the form field kinds produced by the form builder.
type QuestionType string

const (
	QuestionText         QuestionType = "text"
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionMultiChoice  QuestionType = "multi-choice"
	QuestionOther        QuestionType = "other"
)

// IsChoice returns true for question types that carry an options list.
func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultiChoice
}

// Question is a form field definition owned by the form builder. Key may be
// empty for legacy questions created before stable keys existed.
type Question struct {
	ID       string       `json:"id" db:"id"`
	Key      string       `json:"key" db:"question_key"`
	Text     string       `json:"text" db:"question_text"`
	Type     QuestionType `json:"type" db:"question_type"`
	Options  []string     `json:"options,omitempty" db:"options"`
	MergeTag string       `json:"merge_tag,omitempty" db:"merge_tag"`
}

// AnswerRecord is one submitted value for one question on one booking.
//
// Value holds the decoded stored answer: nil, string, bool, float64, []any or
// map[string]any. QuestionType is joined from the catalog when known.
type AnswerRecord struct {
	BookingID    string       `json:"booking_id" db:"booking_id"`
	QuestionKey  string       `json:"question_key,omitempty" db:"question_key"`
	QuestionText string       `json:"question_text" db:"question_text"`
	QuestionType QuestionType `json:"question_type,omitempty" db:"question_type"`
	Value        any          `json:"value" db:"answer"`
	SubmittedAt  time.Time    `json:"submitted_at" db:"submitted_at"`
}

// Ref returns the identifier used for the record in merge tags and
// diagnostics: the question key, or the question text for legacy rows.
func (a AnswerRecord) Ref() string {
	if a.QuestionKey != "" {
		return a.QuestionKey
	}
	return a.QuestionText
}
