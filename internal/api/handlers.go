package api

import (
	"context"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/service/notification"
	"github.com/ignite/stayadmin/internal/storage"
)

// TriggerService is the notification service surface the API drives.
type TriggerService interface {
	ProcessTriggers(ctx context.Context, bookingID string, t domain.TriggerType) ([]domain.FireResult, error)
	Evaluate(ctx context.Context, bookingID string, t domain.TriggerType) ([]notification.RuleEvaluation, error)
	FindMatching(ctx context.Context, bookingID string, t domain.TriggerType) ([]domain.TriggerRule, error)
	PreviewMergeTags(ctx context.Context, bookingID string) (map[string]any, error)

	GetRule(ctx context.Context, id string) (*domain.TriggerRule, error)
	ListRules(ctx context.Context, f notification.RuleFilter) ([]domain.TriggerRule, error)
	CreateRule(ctx context.Context, rule domain.TriggerRule) (*domain.TriggerRule, error)
	UpdateRule(ctx context.Context, id string, rule domain.TriggerRule) (*domain.TriggerRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// HistoryReader lists past trigger passes for a booking.
type HistoryReader interface {
	List(ctx context.Context, bookingID string, limit int) ([]storage.FireEvent, error)
}

// TemplateRenderer renders a stored template against a merge-tag bag.
type TemplateRenderer interface {
	Render(ctx context.Context, templateRef string, tags map[string]any) (*domain.EmailMessage, error)
}

// TemplateValidator checks template source for syntax errors.
type TemplateValidator interface {
	Validate(src string) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc       TriggerService
	history   HistoryReader
	renderer  TemplateRenderer
	validator TemplateValidator
	health    *HealthChecker
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc TriggerService) *Handlers {
	return &Handlers{svc: svc}
}

// SetFireHistory enables the fire-history endpoint.
func (h *Handlers) SetFireHistory(r HistoryReader) { h.history = r }

// SetTemplates enables template preview and validation endpoints.
func (h *Handlers) SetTemplates(r TemplateRenderer, v TemplateValidator) {
	h.renderer = r
	h.validator = v
}

// SetHealthChecker replaces the bare liveness answer on /health with
// dependency checks.
func (h *Handlers) SetHealthChecker(hc *HealthChecker) { h.health = hc }
