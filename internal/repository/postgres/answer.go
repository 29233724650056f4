package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/stayadmin/internal/domain"
)

// AnswerRepo implements notification.AnswerRepository against PostgreSQL.
type AnswerRepo struct{ db *sql.DB }

// NewAnswerRepo creates a Postgres-backed answer repository.
func NewAnswerRepo(db *sql.DB) *AnswerRepo { return &AnswerRepo{db: db} }

// GetAnswers returns a booking's answers in submission order. Key, text and
// type come from the live question when it still exists, otherwise from the
// copy taken at submission.
func (r *AnswerRepo) GetAnswers(ctx context.Context, bookingID string) ([]domain.AnswerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ba.booking_id,
		       COALESCE(q.question_key, ba.question_key, ''),
		       COALESCE(q.question_text, ba.question_text, ''),
		       COALESCE(q.question_type, ''),
		       ba.answer,
		       ba.submitted_at
		FROM booking_answers ba
		LEFT JOIN questions q ON q.id = ba.question_id
		WHERE ba.booking_id = $1
		ORDER BY ba.submitted_at, ba.id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	defer rows.Close()

	var out []domain.AnswerRecord
	for rows.Next() {
		var (
			a   domain.AnswerRecord
			raw []byte
		)
		if err := rows.Scan(&a.BookingID, &a.QuestionKey, &a.QuestionText, &a.QuestionType, &raw, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Value); err != nil {
				// not JSON: keep the stored text as-is
				a.Value = string(raw)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	return out, nil
}
