package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/logger"
	"github.com/ignite/stayadmin/internal/trigger"
)

// Service coordinates trigger evaluation and dispatch. It is safe for
// concurrent use if the injected stores and notifier are.
type Service struct {
	rules     RuleRepository
	answers   AnswerRepository
	questions QuestionCatalog
	bookings  BookingRepository
	notifier  Notifier

	binder          *trigger.Binder
	locker          Locker
	dedupeTTL       time.Duration
	history         FireHistory
	lockPoll        time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
	log             *logger.Logger
}

// Stores groups the read/write dependencies of the service.
type Stores struct {
	Rules     RuleRepository
	Answers   AnswerRepository
	Questions QuestionCatalog
	Bookings  BookingRepository
}

// NewService creates a notification service. The booking pass lock and
// fire history are off until set.
func NewService(stores Stores, notifier Notifier) *Service {
	return &Service{
		rules:           stores.Rules,
		answers:         stores.Answers,
		questions:       stores.Questions,
		bookings:        stores.Bookings,
		notifier:        notifier,
		binder:          trigger.NewBinder(trigger.DefaultBinderOptions()),
		lockPoll:        50 * time.Millisecond,
		dispatchTimeout: 30 * time.Second,
		now:             time.Now,
		log:             logger.With("component", "notification"),
	}
}

// SetBinderOptions replaces the merge-tag binder configuration.
func (s *Service) SetBinderOptions(opts trigger.BinderOptions) {
	s.binder = trigger.NewBinder(opts)
}

// SetDispatchTimeout bounds each Notifier.Send call. Zero disables it.
func (s *Service) SetDispatchTimeout(d time.Duration) { s.dispatchTimeout = d }

// SetDedupe serializes passes per booking and trigger type: a pass that
// finds the lock held waits for it, then evaluates against the answers as
// they are at that point. ttl bounds how long a crashed holder can block
// others; a live holder keeps extending it.
func (s *Service) SetDedupe(l Locker, ttl time.Duration) {
	s.locker = l
	s.dedupeTTL = ttl
}

// SetFireHistory attaches a sink that receives every pass's results.
func (s *Service) SetFireHistory(h FireHistory) { s.history = h }

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RuleEvaluation is the dry-run outcome for one rule.
type RuleEvaluation struct {
	Rule   domain.TriggerRule  `json:"rule"`
	Result trigger.MatchResult `json:"result"`
}

// pass is everything loaded for one booking event.
type pass struct {
	bookingID string
	rules     []domain.TriggerRule
	index     *trigger.Index
	snapshot  *domain.BookingSnapshot
}

func (p *pass) status() domain.BookingStatus {
	if p.snapshot == nil {
		return ""
	}
	return p.snapshot.Status
}

func (s *Service) load(ctx context.Context, bookingID string, t domain.TriggerType) (*pass, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", trigger.ErrUnknownType, t)
	}

	snap, err := s.bookings.GetSnapshot(ctx, bookingID)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "load booking snapshot", Err: err}
	}

	rules, err := s.rules.ListEnabledRules(ctx, t)
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "list enabled rules", Err: err}
	}

	answers, err := s.answers.GetAnswers(ctx, bookingID)
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "load booking answers", Err: err}
	}

	enabled := make([]domain.TriggerRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && r.Type == t {
			enabled = append(enabled, r)
		}
	}

	return &pass{
		bookingID: bookingID,
		rules:     enabled,
		index:     trigger.NewIndex(answers),
		snapshot:  snap,
	}, nil
}

// Evaluate matches every enabled rule of type t against the booking and
// reports why each rule would or would not fire. Nothing is dispatched.
func (s *Service) Evaluate(ctx context.Context, bookingID string, t domain.TriggerType) ([]RuleEvaluation, error) {
	p, err := s.load(ctx, bookingID, t)
	if err != nil {
		return nil, err
	}
	out := make([]RuleEvaluation, 0, len(p.rules))
	for i := range p.rules {
		out = append(out, RuleEvaluation{
			Rule:   p.rules[i],
			Result: trigger.Match(&p.rules[i], p.index, p.status()),
		})
	}
	return out, nil
}

// FindMatching returns the enabled rules of type t that fire for the booking.
func (s *Service) FindMatching(ctx context.Context, bookingID string, t domain.TriggerType) ([]domain.TriggerRule, error) {
	evals, err := s.Evaluate(ctx, bookingID, t)
	if err != nil {
		return nil, err
	}
	var out []domain.TriggerRule
	for _, ev := range evals {
		if ev.Result.Fire {
			out = append(out, ev.Rule)
		}
	}
	return out, nil
}

// PreviewMergeTags returns the merge-tag bag a notification for the
// booking would be rendered with.
func (s *Service) PreviewMergeTags(ctx context.Context, bookingID string) (map[string]any, error) {
	snap, err := s.bookings.GetSnapshot(ctx, bookingID)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "load booking snapshot", Err: err}
	}
	answers, err := s.answers.GetAnswers(ctx, bookingID)
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "load booking answers", Err: err}
	}
	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "list questions", Err: err}
	}
	return s.binder.Bind(snap, questions, trigger.NewIndex(answers), s.now())
}

// ProcessTriggers handles one booking event of type t. It returns one
// FireResult per rule that fired, in rule order. Per-rule failures are
// reported in the results; only load failures are returned as an error.
func (s *Service) ProcessTriggers(ctx context.Context, bookingID string, t domain.TriggerType) ([]domain.FireResult, error) {
	log := s.log.With("booking_id", bookingID, "trigger_type", t)

	if s.locker != nil && t.Valid() {
		release, err := s.acquirePassLock(ctx, log, fmt.Sprintf("%s:%s", bookingID, t))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	p, err := s.load(ctx, bookingID, t)
	if err != nil {
		return nil, err
	}

	type firing struct {
		rule  *domain.TriggerRule
		match trigger.MatchResult
	}
	var fired []firing
	for i := range p.rules {
		m := trigger.Match(&p.rules[i], p.index, p.status())
		if m.Fire {
			fired = append(fired, firing{rule: &p.rules[i], match: m})
		} else {
			log.Debug("rule did not fire", "rule_id", p.rules[i].ID, "reason", m.Reason)
		}
	}

	results := make([]domain.FireResult, 0, len(fired))
	if len(fired) == 0 {
		s.recordHistory(ctx, log, bookingID, t, results)
		return results, nil
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return nil, &trigger.InfrastructureError{Op: "list questions", Err: err}
	}
	tags, bindErr := s.binder.Bind(p.snapshot, questions, p.index, s.now())
	var be *trigger.BindError
	if errors.As(bindErr, &be) {
		be.BookingID = bookingID
	} else if bindErr != nil {
		bindErr = &trigger.BindError{BookingID: bookingID, Err: bindErr}
	}

	for _, f := range fired {
		results = append(results, s.fire(ctx, log, bookingID, f.rule, f.match, tags, bindErr))
	}

	s.recordHistory(ctx, log, bookingID, t, results)
	return results, nil
}

// extender is implemented by locks that expire and can be kept alive.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// acquirePassLock blocks until the pass lock for key is held or ctx ends.
// A lock backend error is logged and the pass runs unguarded.
func (s *Service) acquirePassLock(ctx context.Context, log *logger.Logger, key string) (func(), error) {
	lock := s.locker.Lock(key, s.dedupeTTL)
	for waited := false; ; waited = true {
		acquired, err := lock.Acquire(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, &trigger.InfrastructureError{Op: "wait for booking pass lock", Err: ctx.Err()}
		}
		if err != nil {
			log.Warn("booking pass lock unavailable, processing anyway", "error", err)
			return func() {}, nil
		}
		if acquired {
			if waited {
				log.Debug("booking pass lock acquired after wait")
			}
			break
		}
		if !waited {
			log.Info("waiting for in-flight pass on the same booking")
		}
		timer := time.NewTimer(s.lockPoll)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, &trigger.InfrastructureError{Op: "wait for booking pass lock", Err: ctx.Err()}
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	if ext, ok := lock.(extender); ok && s.dedupeTTL > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(s.dedupeTTL / 2)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if err := ext.Extend(context.WithoutCancel(ctx), s.dedupeTTL); err != nil {
						log.Warn("extend booking pass lock", "error", err)
					}
				}
			}
		}()
	}

	return func() {
		close(stop)
		wg.Wait()
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release booking pass lock", "error", err)
		}
	}, nil
}

func (s *Service) fire(ctx context.Context, log *logger.Logger, bookingID string, rule *domain.TriggerRule, m trigger.MatchResult, tags map[string]any, bindErr error) domain.FireResult {
	res := domain.FireResult{RuleID: rule.ID, RuleName: rule.Name, BookingID: bookingID}
	log = log.With("rule_id", rule.ID)

	to, err := trigger.ResolveRecipient(rule, m)
	if err != nil {
		log.Warn("trigger recipient unresolved", "error", err)
		res.Error = err.Error()
		return res
	}
	res.Recipient = to.Addresses

	if bindErr != nil {
		log.Error("merge tags unavailable", "error", bindErr)
		res.Error = bindErr.Error()
		return res
	}

	if err := s.dispatch(ctx, rule, to, ruleTags(tags, rule)); err != nil {
		log.Error("trigger dispatch failed", "template_ref", rule.TemplateRef, "error", err)
		res.Error = err.Error()
		return res
	}

	at := s.now().UTC()
	res.Success = true
	res.FiredAt = &at

	if err := s.rules.RecordFire(ctx, rule.ID, at); err != nil {
		log.Error("record trigger fire", "error", err)
	}
	log.Info("trigger fired", "recipient", strings.Join(to.Addresses, ", "))
	return res
}

// dispatch calls the notifier under the dispatch timeout. A panicking
// notifier is reported as a DispatchError.
func (s *Service) dispatch(ctx context.Context, rule *domain.TriggerRule, to domain.Recipient, tags map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &trigger.DispatchError{RuleID: rule.ID, TemplateRef: rule.TemplateRef, Err: fmt.Errorf("notifier panic: %v", r)}
		}
	}()

	if s.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dispatchTimeout)
		defer cancel()
	}

	if err := s.notifier.Send(ctx, to, rule.TemplateRef, tags); err != nil {
		return &trigger.DispatchError{RuleID: rule.ID, TemplateRef: rule.TemplateRef, Err: err}
	}
	return nil
}

// ruleTags adds the firing rule's identity to a copy of the shared bag.
func ruleTags(tags map[string]any, rule *domain.TriggerRule) map[string]any {
	out := make(map[string]any, len(tags)+3)
	for k, v := range tags {
		out[k] = v
	}
	out[trigger.SystemTagPrefix+"trigger_id"] = rule.ID
	out[trigger.SystemTagPrefix+"trigger_name"] = rule.Name
	out[trigger.SystemTagPrefix+"trigger_type"] = string(rule.Type)
	return out
}

func (s *Service) recordHistory(ctx context.Context, log *logger.Logger, bookingID string, t domain.TriggerType, results []domain.FireResult) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, bookingID, t, results); err != nil {
		log.Warn("record fire history", "error", err)
	}
}

// GetRule returns a single rule.
func (s *Service) GetRule(ctx context.Context, id string) (*domain.TriggerRule, error) {
	if err := checkRuleID(id); err != nil {
		return nil, err
	}
	return s.rules.Get(ctx, id)
}

// checkRuleID rejects ids that cannot name a stored rule. Rule ids are
// UUIDs, and the rules table refuses anything else as a malformed value.
func checkRuleID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	return nil
}

// ListRules returns rules matching the filter.
func (s *Service) ListRules(ctx context.Context, f RuleFilter) ([]domain.TriggerRule, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", trigger.ErrUnknownType, f.Type)
	}
	return s.rules.List(ctx, f)
}

// CreateRule validates and persists a new rule. Conditions are completed
// from the question catalog so both key and text are stored.
func (s *Service) CreateRule(ctx context.Context, rule domain.TriggerRule) (*domain.TriggerRule, error) {
	if err := s.prepare(ctx, &rule); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rule.ID = uuid.New().String()
	rule.FireCount = 0
	rule.LastFiredAt = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.rules.Create(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateRule replaces the editable fields of an existing rule. Counters and
// creation time are preserved.
func (s *Service) UpdateRule(ctx context.Context, id string, rule domain.TriggerRule) (*domain.TriggerRule, error) {
	if err := checkRuleID(id); err != nil {
		return nil, err
	}
	existing, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(ctx, &rule); err != nil {
		return nil, err
	}

	rule.ID = existing.ID
	rule.FireCount = existing.FireCount
	rule.LastFiredAt = existing.LastFiredAt
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now().UTC()

	if err := s.rules.Update(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := checkRuleID(id); err != nil {
		return err
	}
	return s.rules.Delete(ctx, id)
}

// prepare trims, validates and canonicalizes rule in place.
func (s *Service) prepare(ctx context.Context, rule *domain.TriggerRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.TemplateRef = strings.TrimSpace(rule.TemplateRef)
	rule.Recipient = strings.TrimSpace(rule.Recipient)
	if rule.Type.UsesFixedRecipients() {
		rule.Recipient = strings.Join(trigger.ParseRecipientList(rule.Recipient), ", ")
	}

	if err := trigger.ValidateRule(rule); err != nil {
		return err
	}

	var problems []trigger.FieldProblem
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		c.QuestionKey = strings.TrimSpace(c.QuestionKey)
		c.QuestionText = strings.TrimSpace(c.QuestionText)
		c.ExpectedAnswer = strings.TrimSpace(c.ExpectedAnswer)

		q, err := s.lookupQuestion(ctx, c)
		if errors.Is(err, ErrQuestionNotFound) {
			problems = append(problems, trigger.FieldProblem{
				Field:   fmt.Sprintf("conditions[%d]", i),
				Message: "question not found: " + c.Ref(),
			})
			continue
		}
		if err != nil {
			return &trigger.InfrastructureError{Op: "look up question", Err: err}
		}
		if c.QuestionKey == "" {
			c.QuestionKey = q.Key
		}
		if c.QuestionText == "" {
			c.QuestionText = q.Text
		}
	}
	if len(problems) > 0 {
		return &trigger.ConfigurationError{Problems: problems}
	}
	return nil
}

func (s *Service) lookupQuestion(ctx context.Context, c *domain.TriggerCondition) (*domain.Question, error) {
	if c.QuestionKey != "" {
		q, err := s.questions.GetQuestion(ctx, c.QuestionKey)
		if !errors.Is(err, ErrQuestionNotFound) || c.QuestionText == "" {
			return q, err
		}
	}
	return s.questions.GetQuestion(ctx, c.QuestionText)
}
