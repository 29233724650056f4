package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/notify"
	"github.com/ignite/stayadmin/internal/service/notification"
	"github.com/ignite/stayadmin/internal/storage"
	"github.com/ignite/stayadmin/internal/trigger"
)

// fakeService implements TriggerService with canned answers.
type fakeService struct {
	rules      map[string]domain.TriggerRule
	results    []domain.FireResult
	evals      []notification.RuleEvaluation
	tags       map[string]any
	err        error
	lastFilter notification.RuleFilter
	processed  []string
}

func newFakeService() *fakeService {
	return &fakeService{rules: map[string]domain.TriggerRule{}}
}

func (f *fakeService) ProcessTriggers(_ context.Context, bookingID string, t domain.TriggerType) ([]domain.FireResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.processed = append(f.processed, fmt.Sprintf("%s:%s", bookingID, t))
	return f.results, nil
}

func (f *fakeService) Evaluate(_ context.Context, _ string, t domain.TriggerType) ([]notification.RuleEvaluation, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", trigger.ErrUnknownType, t)
	}
	return f.evals, f.err
}

func (f *fakeService) FindMatching(_ context.Context, _ string, _ domain.TriggerType) ([]domain.TriggerRule, error) {
	var out []domain.TriggerRule
	for _, ev := range f.evals {
		if ev.Result.Fire {
			out = append(out, ev.Rule)
		}
	}
	return out, f.err
}

func (f *fakeService) PreviewMergeTags(_ context.Context, _ string) (map[string]any, error) {
	return f.tags, f.err
}

func (f *fakeService) GetRule(_ context.Context, id string) (*domain.TriggerRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, notification.ErrRuleNotFound
	}
	return &r, nil
}

func (f *fakeService) ListRules(_ context.Context, filter notification.RuleFilter) ([]domain.TriggerRule, error) {
	f.lastFilter = filter
	var out []domain.TriggerRule
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out, f.err
}

func (f *fakeService) CreateRule(_ context.Context, rule domain.TriggerRule) (*domain.TriggerRule, error) {
	if rule.Name == "" {
		return nil, &trigger.ConfigurationError{Problems: []trigger.FieldProblem{{Field: "name", Message: "is required"}}}
	}
	rule.ID = "rule-new"
	f.rules[rule.ID] = rule
	return &rule, nil
}

func (f *fakeService) UpdateRule(_ context.Context, id string, rule domain.TriggerRule) (*domain.TriggerRule, error) {
	if _, ok := f.rules[id]; !ok {
		return nil, fmt.Errorf("update: %w", notification.ErrRuleNotFound)
	}
	rule.ID = id
	f.rules[id] = rule
	return &rule, nil
}

func (f *fakeService) DeleteRule(_ context.Context, id string) error {
	if _, ok := f.rules[id]; !ok {
		return notification.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

type fakeHistory struct {
	events    []storage.FireEvent
	lastLimit int
}

func (f *fakeHistory) List(_ context.Context, _ string, limit int) ([]storage.FireEvent, error) {
	f.lastLimit = limit
	return f.events, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, ref string, tags map[string]any) (*domain.EmailMessage, error) {
	if ref != "welcome" {
		return nil, fmt.Errorf("load template %s: %w", ref, notify.ErrTemplateNotFound)
	}
	return &domain.EmailMessage{TemplateRef: ref, Subject: fmt.Sprintf("Hi %v", tags["guest_name"])}, nil
}

type fakeValidator struct{}

func (fakeValidator) Validate(src string) error {
	if src == "{% if %}" {
		return errors.New("syntax error")
	}
	return nil
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func setupRouter(svc *fakeService) (http.Handler, *Handlers) {
	h := NewHandlers(svc)
	return SetupRoutes(h, nil), h
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	rec := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestTriggerCRUD(t *testing.T) {
	svc := newFakeService()
	router, _ := setupRouter(svc)

	rec := do(t, router, http.MethodPost, "/api/triggers", domain.TriggerRule{
		Name: "Funder alert", Type: domain.TriggerExternal, TemplateRef: "funder-alert",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "rule-new", decode(t, rec)["id"])

	rec = do(t, router, http.MethodGet, "/api/triggers/rule-new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Funder alert", decode(t, rec)["name"])

	rec = do(t, router, http.MethodPut, "/api/triggers/rule-new", domain.TriggerRule{Name: "Renamed", Type: domain.TriggerExternal})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", svc.rules["rule-new"].Name)

	rec = do(t, router, http.MethodGet, "/api/triggers?type=External&enabled=true&search=fund&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
	assert.Equal(t, domain.TriggerExternal, svc.lastFilter.Type)
	require.NotNil(t, svc.lastFilter.Enabled)
	assert.True(t, *svc.lastFilter.Enabled)
	assert.Equal(t, "fund", svc.lastFilter.Search)
	assert.Equal(t, 10, svc.lastFilter.Limit)

	rec = do(t, router, http.MethodDelete, "/api/triggers/rule-new", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/triggers/rule-new", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, codeNotFound, body["code"])
	assert.Equal(t, notification.ErrRuleNotFound.Error(), body["error"])
}

func TestListTriggersEmptyIsArray(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	rec := do(t, router, http.MethodGet, "/api/triggers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["triggers"])
}

func TestListTriggersBadParams(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/triggers?enabled=maybe", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/triggers?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/triggers?offset=abc", nil).Code)
}

func TestCreateTriggerValidation(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	rec := do(t, router, http.MethodPost, "/api/triggers", domain.TriggerRule{Type: domain.TriggerInternal})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, codeInvalidRule, body["code"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "name", details[0].(map[string]any)["field"])
}

func TestCreateTriggerBadJSON(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	req := httptest.NewRequest(http.MethodPost, "/api/triggers", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMissingRule(t *testing.T) {
	router, _ := setupRouter(newFakeService())
	rec := do(t, router, http.MethodPut, "/api/triggers/nope", domain.TriggerRule{Name: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessTriggers(t *testing.T) {
	svc := newFakeService()
	svc.results = []domain.FireResult{
		{RuleID: "r1", BookingID: "b1", Success: true, Recipient: []string{"ops@example.com"}},
		{RuleID: "r2", BookingID: "b1", Success: false, Error: "send failed"},
	}
	router, _ := setupRouter(svc)

	rec := do(t, router, http.MethodPost, "/api/bookings/b1/triggers/INTERNAL/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["fired"])
	assert.EqualValues(t, 1, body["failed"])
	assert.Equal(t, "internal", body["trigger_type"])
	assert.Equal(t, []string{"b1:internal"}, svc.processed)
}

func TestProcessTriggersErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown type", fmt.Errorf("%w: %q", trigger.ErrUnknownType, "sms"), http.StatusBadRequest, codeUnknownType},
		{"booking missing", notification.ErrBookingNotFound, http.StatusNotFound, codeNotFound},
		{"store down", &trigger.InfrastructureError{Op: "list enabled rules", Err: errors.New("pq: connection refused")}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.err = tt.err
			router, _ := setupRouter(svc)

			rec := do(t, router, http.MethodPost, "/api/bookings/b1/triggers/internal/process", nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
			assert.NotContains(t, body["error"], "pq:")
		})
	}
}

func TestEvaluateAndMatching(t *testing.T) {
	svc := newFakeService()
	svc.evals = []notification.RuleEvaluation{
		{Rule: domain.TriggerRule{ID: "r1", Name: "Fires"}, Result: trigger.MatchResult{Fire: true, Reason: "all conditions matched"}},
		{Rule: domain.TriggerRule{ID: "r2", Name: "Quiet"}, Result: trigger.MatchResult{Fire: false, Reason: "no answer"}},
	}
	router, _ := setupRouter(svc)

	rec := do(t, router, http.MethodGet, "/api/bookings/b1/triggers/external/evaluate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evals := decode(t, rec)["evaluations"].([]any)
	require.Len(t, evals, 2)
	second := evals[1].(map[string]any)["result"].(map[string]any)
	assert.Equal(t, false, second["fire"])
	assert.Equal(t, "no answer", second["reason"])

	rec = do(t, router, http.MethodGet, "/api/bookings/b1/triggers/external/matching", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matching := decode(t, rec)["triggers"].([]any)
	require.Len(t, matching, 1)
	assert.Equal(t, "r1", matching[0].(map[string]any)["id"])

	rec = do(t, router, http.MethodGet, "/api/bookings/b1/triggers/carrier/evaluate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMergeTags(t *testing.T) {
	svc := newFakeService()
	svc.tags = map[string]any{"guest_name": "Ada Lovelace", "nights": 3}
	router, _ := setupRouter(svc)

	rec := do(t, router, http.MethodGet, "/api/bookings/b1/merge-tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tags := decode(t, rec)["merge_tags"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", tags["guest_name"])
	assert.EqualValues(t, 3, tags["nights"])

	svc.err = &trigger.BindError{BookingID: "b1", Err: trigger.ErrNoBooking}
	rec = do(t, router, http.MethodGet, "/api/bookings/b1/merge-tags", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, codeBindFailed, decode(t, rec)["code"])
}

func TestFireHistory(t *testing.T) {
	router, h := setupRouter(newFakeService())

	rec := do(t, router, http.MethodGet, "/api/bookings/b1/fire-history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	hist := &fakeHistory{events: []storage.FireEvent{{
		BookingID: "b1", TriggerType: domain.TriggerInternal, ProcessedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Results: []domain.FireResult{{RuleID: "r1", Success: true}},
	}}}
	h.SetFireHistory(hist)

	rec = do(t, router, http.MethodGet, "/api/bookings/b1/fire-history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["events"], 1)
	assert.Equal(t, 5, hist.lastLimit)

	do(t, router, http.MethodGet, "/api/bookings/b1/fire-history?limit=5000", nil)
	assert.Equal(t, defaultHistoryLimit, hist.lastLimit)
}

func TestTemplatePreviewAndValidate(t *testing.T) {
	svc := newFakeService()
	svc.tags = map[string]any{"guest_name": "Ada"}
	router, h := setupRouter(svc)

	rec := do(t, router, http.MethodGet, "/api/bookings/b1/templates/welcome/preview", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetTemplates(fakeRenderer{}, fakeValidator{})

	rec = do(t, router, http.MethodGet, "/api/bookings/b1/templates/welcome/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi Ada", decode(t, rec)["subject"])

	rec = do(t, router, http.MethodGet, "/api/bookings/b1/templates/missing/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, notify.ErrTemplateNotFound.Error(), decode(t, rec)["error"])

	rec = do(t, router, http.MethodPost, "/api/templates/validate", map[string]string{"source": "Hello {{ guest_name }}"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = do(t, router, http.MethodPost, "/api/templates/validate", map[string]string{"source": "{% if %}"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidSource, decode(t, rec)["code"])
}
