package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/service/notification"
)

// QuestionRepo implements notification.QuestionCatalog against PostgreSQL.
type QuestionRepo struct{ db *sql.DB }

// NewQuestionRepo creates a Postgres-backed question catalog.
func NewQuestionRepo(db *sql.DB) *QuestionRepo { return &QuestionRepo{db: db} }

const questionColumns = `
		id, COALESCE(question_key, ''), question_text, question_type,
		COALESCE(options, '[]'), COALESCE(merge_tag, '')`

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var (
		q       domain.Question
		options []byte
	)
	if err := row.Scan(&q.ID, &q.Key, &q.Text, &q.Type, &options, &q.MergeTag); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
	}
	return &q, nil
}

func (r *QuestionRepo) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+questionColumns+`
		FROM questions
		ORDER BY position, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// GetQuestion prefers a key match over a text match.
func (r *QuestionRepo) GetQuestion(ctx context.Context, keyOrText string) (*domain.Question, error) {
	q, err := scanQuestion(r.db.QueryRowContext(ctx, `SELECT`+questionColumns+`
		FROM questions
		WHERE question_key = $1 OR question_text = $1
		ORDER BY CASE WHEN question_key = $1 THEN 0 ELSE 1 END, position
		LIMIT 1
	`, keyOrText))
	if err == sql.ErrNoRows {
		return nil, notification.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}
