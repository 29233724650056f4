package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/service/notification"
)

// TriggerRuleRepo implements notification.RuleRepository against PostgreSQL.
//
// Conditions live in two places: the legacy trigger_questions JSON column on
// email_triggers and the email_trigger_questions link table. Reads prefer
// the link rows and fall back to the blob; writes keep both in step.
type TriggerRuleRepo struct{ db *sql.DB }

// NewTriggerRuleRepo creates a Postgres-backed trigger rule repository.
func NewTriggerRuleRepo(db *sql.DB) *TriggerRuleRepo { return &TriggerRuleRepo{db: db} }

const ruleColumns = `
		id, name, enabled, trigger_type, COALESCE(recipient, ''), template_ref,
		COALESCE(trigger_questions, '[]'), COALESCE(status_conditions, '[]'),
		fire_count, last_fired_at, created_at, updated_at`

// legacyCondition is one entry of the trigger_questions blob. Older rows
// used question/answer instead of question_text/expected_answer.
type legacyCondition struct {
	QuestionKey    string `json:"question_key,omitempty"`
	QuestionText   string `json:"question_text,omitempty"`
	Question       string `json:"question,omitempty"`
	ExpectedAnswer string `json:"expected_answer,omitempty"`
	Answer         string `json:"answer,omitempty"`
}

func (c legacyCondition) canonical() domain.TriggerCondition {
	out := domain.TriggerCondition{
		QuestionKey:    strings.TrimSpace(c.QuestionKey),
		QuestionText:   strings.TrimSpace(c.QuestionText),
		ExpectedAnswer: strings.TrimSpace(c.ExpectedAnswer),
	}
	if out.QuestionText == "" {
		out.QuestionText = strings.TrimSpace(c.Question)
	}
	if out.ExpectedAnswer == "" {
		out.ExpectedAnswer = strings.TrimSpace(c.Answer)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.TriggerRule, error) {
	var (
		r         domain.TriggerRule
		blob      []byte
		statuses  []byte
		lastFired sql.NullTime
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.Enabled, &r.Type, &r.Recipient, &r.TemplateRef,
		&blob, &statuses, &r.FireCount, &lastFired, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastFired.Valid {
		t := lastFired.Time
		r.LastFiredAt = &t
	}

	var legacy []legacyCondition
	if err := json.Unmarshal(blob, &legacy); err != nil {
		return nil, fmt.Errorf("decode trigger_questions for rule %s: %w", r.ID, err)
	}
	for _, c := range legacy {
		r.Conditions = append(r.Conditions, c.canonical())
	}
	if err := json.Unmarshal(statuses, &r.StatusConditions); err != nil {
		return nil, fmt.Errorf("decode status_conditions for rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// attachLinkedConditions replaces blob conditions with link-table rows for
// every rule that has any.
func (r *TriggerRuleRepo) attachLinkedConditions(ctx context.Context, rules []domain.TriggerRule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]string, len(rules))
	for i := range rules {
		ids[i] = rules[i].ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tq.trigger_id,
		       COALESCE(tq.question_key, q.question_key, ''),
		       COALESCE(NULLIF(tq.question_text, ''), q.question_text, ''),
		       tq.expected_answer
		FROM email_trigger_questions tq
		LEFT JOIN questions q ON q.id = tq.question_id
		WHERE tq.trigger_id = ANY($1)
		ORDER BY tq.trigger_id, tq.position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list trigger questions: %w", err)
	}
	defer rows.Close()

	linked := make(map[string][]domain.TriggerCondition)
	for rows.Next() {
		var id string
		var c domain.TriggerCondition
		if err := rows.Scan(&id, &c.QuestionKey, &c.QuestionText, &c.ExpectedAnswer); err != nil {
			return fmt.Errorf("scan trigger question: %w", err)
		}
		linked[id] = append(linked[id], c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list trigger questions: %w", err)
	}

	for i := range rules {
		if conds, ok := linked[rules[i].ID]; ok {
			rules[i].Conditions = conds
		}
	}
	return nil
}

func (r *TriggerRuleRepo) queryRules(ctx context.Context, q string, args ...any) ([]domain.TriggerRule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	defer rows.Close()

	var out []domain.TriggerRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger rule: %w", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	if err := r.attachLinkedConditions(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TriggerRuleRepo) ListEnabledRules(ctx context.Context, t domain.TriggerType) ([]domain.TriggerRule, error) {
	return r.queryRules(ctx, `SELECT`+ruleColumns+`
		FROM email_triggers
		WHERE enabled AND trigger_type = $1
		ORDER BY created_at, id
	`, string(t))
}

func (r *TriggerRuleRepo) Get(ctx context.Context, id string) (*domain.TriggerRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, `SELECT`+ruleColumns+`
		FROM email_triggers
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, notification.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger rule: %w", err)
	}
	rules := []domain.TriggerRule{*rule}
	if err := r.attachLinkedConditions(ctx, rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

func (r *TriggerRuleRepo) List(ctx context.Context, f notification.RuleFilter) ([]domain.TriggerRule, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT` + ruleColumns + `
		FROM email_triggers
		WHERE 1=1`
	var args []any
	idx := 1
	if f.Type != "" {
		q += fmt.Sprintf(" AND trigger_type = $%d", idx)
		args = append(args, string(f.Type))
		idx++
	}
	if f.Enabled != nil {
		q += fmt.Sprintf(" AND enabled = $%d", idx)
		args = append(args, *f.Enabled)
		idx++
	}
	if f.Search != "" {
		q += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	return r.queryRules(ctx, q, args...)
}

// RecordFire bumps the counter in a single statement so concurrent fires
// never lose an increment.
func (r *TriggerRuleRepo) RecordFire(ctx context.Context, ruleID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_triggers
		SET fire_count = fire_count + 1, last_fired_at = $2
		WHERE id = $1
	`, ruleID, at)
	if err != nil {
		return fmt.Errorf("record trigger fire: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.ErrRuleNotFound
	}
	return nil
}

func (r *TriggerRuleRepo) Create(ctx context.Context, rule *domain.TriggerRule) error {
	blob, statuses, err := encodeConditions(rule)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO email_triggers
				(id, name, enabled, trigger_type, recipient, template_ref,
				 trigger_questions, status_conditions, fire_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
		`, rule.ID, rule.Name, rule.Enabled, string(rule.Type), rule.Recipient, rule.TemplateRef,
			blob, statuses, rule.CreatedAt, rule.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create trigger rule: %w", err)
		}
		return insertLinks(ctx, tx, rule)
	})
}

func (r *TriggerRuleRepo) Update(ctx context.Context, rule *domain.TriggerRule) error {
	blob, statuses, err := encodeConditions(rule)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE email_triggers
			SET name = $2, enabled = $3, trigger_type = $4, recipient = $5, template_ref = $6,
			    trigger_questions = $7, status_conditions = $8, updated_at = $9
			WHERE id = $1
		`, rule.ID, rule.Name, rule.Enabled, string(rule.Type), rule.Recipient, rule.TemplateRef,
			blob, statuses, rule.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update trigger rule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notification.ErrRuleNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM email_trigger_questions WHERE trigger_id = $1`, rule.ID); err != nil {
			return fmt.Errorf("clear trigger questions: %w", err)
		}
		return insertLinks(ctx, tx, rule)
	})
}

func (r *TriggerRuleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trigger rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.ErrRuleNotFound
	}
	return nil
}

func (r *TriggerRuleRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func encodeConditions(rule *domain.TriggerRule) (blob, statuses []byte, err error) {
	conds := rule.Conditions
	if conds == nil {
		conds = []domain.TriggerCondition{}
	}
	if blob, err = json.Marshal(conds); err != nil {
		return nil, nil, fmt.Errorf("encode trigger conditions: %w", err)
	}
	sc := rule.StatusConditions
	if sc == nil {
		sc = []domain.BookingStatus{}
	}
	if statuses, err = json.Marshal(sc); err != nil {
		return nil, nil, fmt.Errorf("encode status conditions: %w", err)
	}
	return blob, statuses, nil
}

func insertLinks(ctx context.Context, tx *sql.Tx, rule *domain.TriggerRule) error {
	for i, c := range rule.Conditions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO email_trigger_questions
				(trigger_id, position, question_id, question_key, question_text, expected_answer)
			VALUES ($1, $2,
			        (SELECT id FROM questions
			         WHERE ($3 <> '' AND question_key = $3) OR ($3 = '' AND question_text = $4)
			         LIMIT 1),
			        NULLIF($3, ''), $4, $5)
		`, rule.ID, i, c.QuestionKey, c.QuestionText, c.ExpectedAnswer)
		if err != nil {
			return fmt.Errorf("insert trigger question %d: %w", i, err)
		}
	}
	return nil
}
