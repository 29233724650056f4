package notification

import (
	"context"
	"time"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/distlock"
)

// RuleRepository stores trigger rules and their fire counters.
type RuleRepository interface {
	// ListEnabledRules returns every enabled rule of type t with its
	// conditions already reconciled into one canonical list.
	ListEnabledRules(ctx context.Context, t domain.TriggerType) ([]domain.TriggerRule, error)

	// RecordFire atomically increments fire_count and sets last_fired_at.
	RecordFire(ctx context.Context, ruleID string, at time.Time) error

	// Get returns ErrRuleNotFound when id does not exist.
	Get(ctx context.Context, id string) (*domain.TriggerRule, error)
	List(ctx context.Context, f RuleFilter) ([]domain.TriggerRule, error)
	Create(ctx context.Context, r *domain.TriggerRule) error
	Update(ctx context.Context, r *domain.TriggerRule) error
	Delete(ctx context.Context, id string) error
}

// RuleFilter narrows a rule listing. Zero values mean "any".
type RuleFilter struct {
	Type    domain.TriggerType
	Enabled *bool
	Search  string
	Limit   int
	Offset  int
}

// AnswerRepository reads the answers submitted for a booking.
type AnswerRepository interface {
	GetAnswers(ctx context.Context, bookingID string) ([]domain.AnswerRecord, error)
}

// QuestionCatalog reads the form builder's questions.
type QuestionCatalog interface {
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	// GetQuestion looks a question up by key, then by exact text.
	// Returns ErrQuestionNotFound when neither matches.
	GetQuestion(ctx context.Context, keyOrText string) (*domain.Question, error)
}

// BookingRepository reads booking snapshots for merge-tag binding.
type BookingRepository interface {
	// GetSnapshot returns ErrBookingNotFound when the booking does not exist.
	GetSnapshot(ctx context.Context, bookingID string) (*domain.BookingSnapshot, error)
}

// Notifier delivers one notification. Implementations own template
// rendering and transport.
type Notifier interface {
	Send(ctx context.Context, to domain.Recipient, templateRef string, tags map[string]any) error
}

// Locker hands out the locks that serialize passes on one booking.
type Locker interface {
	Lock(key string, ttl time.Duration) distlock.DistLock
}

// FireHistory receives the results of every processed event. Writes are
// best effort.
type FireHistory interface {
	Record(ctx context.Context, bookingID string, t domain.TriggerType, results []domain.FireResult) error
}
