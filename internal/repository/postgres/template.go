package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/notify"
)

// TemplateRepo implements notify.TemplateStore against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template store.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) GetTemplate(ctx context.Context, ref string) (*domain.NotificationTemplate, error) {
	t := &domain.NotificationTemplate{}
	err := r.db.QueryRowContext(ctx, `
		SELECT ref, subject, html_content, text_content,
		       COALESCE(from_name, ''), COALESCE(from_email, ''), COALESCE(reply_to, ''),
		       updated_at
		FROM notification_templates
		WHERE ref = $1
	`, ref).Scan(
		&t.Ref, &t.Subject, &t.HTMLContent, &t.TextContent,
		&t.FromName, &t.FromEmail, &t.ReplyTo,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, notify.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}
