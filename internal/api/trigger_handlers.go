package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/httputil"
	"github.com/ignite/stayadmin/internal/service/notification"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// ---------------------------------------------------------------------------
// Trigger rule administration
// ---------------------------------------------------------------------------

// ListTriggers handles GET /api/triggers?type=&enabled=&search=&limit=&offset=
func (h *Handlers) ListTriggers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := notification.RuleFilter{
		Type:   domain.TriggerType(strings.ToLower(q.Get("type"))),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if v := q.Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "enabled must be true or false")
			return
		}
		f.Enabled = &b
	}
	var ok bool
	if f.Limit, ok = intParam(w, r, "limit", 0); !ok {
		return
	}
	if f.Offset, ok = intParam(w, r, "offset", 0); !ok {
		return
	}

	rules, err := h.svc.ListRules(r.Context(), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.TriggerRule{}
	}
	httputil.OK(w, map[string]any{"triggers": rules, "count": len(rules)})
}

// GetTrigger handles GET /api/triggers/{id}
func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// CreateTrigger handles POST /api/triggers
func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var rule domain.TriggerRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	created, err := h.svc.CreateRule(r.Context(), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, created)
}

// UpdateTrigger handles PUT /api/triggers/{id}
func (h *Handlers) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var rule domain.TriggerRule
	if !httputil.Decode(w, r, &rule) {
		return
	}
	updated, err := h.svc.UpdateRule(r.Context(), chi.URLParam(r, "id"), rule)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, updated)
}

// DeleteTrigger handles DELETE /api/triggers/{id}
func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ---------------------------------------------------------------------------
// Booking events
// ---------------------------------------------------------------------------

// ProcessTriggers handles POST /api/bookings/{bookingID}/triggers/{type}/process
func (h *Handlers) ProcessTriggers(w http.ResponseWriter, r *http.Request) {
	bookingID, t := bookingParams(r)
	results, err := h.svc.ProcessTriggers(r.Context(), bookingID, t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	httputil.OK(w, map[string]any{
		"booking_id":   bookingID,
		"trigger_type": t,
		"fired":        len(results),
		"failed":       failed,
		"results":      results,
	})
}

// EvaluateTriggers handles GET /api/bookings/{bookingID}/triggers/{type}/evaluate
func (h *Handlers) EvaluateTriggers(w http.ResponseWriter, r *http.Request) {
	bookingID, t := bookingParams(r)
	evals, err := h.svc.Evaluate(r.Context(), bookingID, t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"booking_id":   bookingID,
		"trigger_type": t,
		"evaluations":  evals,
	})
}

// MatchingTriggers handles GET /api/bookings/{bookingID}/triggers/{type}/matching
func (h *Handlers) MatchingTriggers(w http.ResponseWriter, r *http.Request) {
	bookingID, t := bookingParams(r)
	rules, err := h.svc.FindMatching(r.Context(), bookingID, t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.TriggerRule{}
	}
	httputil.OK(w, map[string]any{"booking_id": bookingID, "trigger_type": t, "triggers": rules})
}

// MergeTags handles GET /api/bookings/{bookingID}/merge-tags
func (h *Handlers) MergeTags(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	tags, err := h.svc.PreviewMergeTags(r.Context(), bookingID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"booking_id": bookingID, "merge_tags": tags})
}

// FireHistory handles GET /api/bookings/{bookingID}/fire-history?limit=
func (h *Handlers) FireHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "fire history is not enabled")
		return
	}
	limit, ok := intParam(w, r, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	bookingID := chi.URLParam(r, "bookingID")
	events, err := h.history.List(r.Context(), bookingID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"booking_id": bookingID, "events": events})
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// PreviewTemplate handles GET /api/bookings/{bookingID}/templates/{ref}/preview
// and renders the template with the booking's live merge tags.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "template rendering is not configured")
		return
	}
	tags, err := h.svc.PreviewMergeTags(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	msg, err := h.renderer.Render(r.Context(), chi.URLParam(r, "ref"), tags)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, msg)
}

type validateTemplateRequest struct {
	Source string `json:"source"`
}

// ValidateTemplate handles POST /api/templates/validate
func (h *Handlers) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	if h.validator == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "template rendering is not configured")
		return
	}
	var req validateTemplateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req.Source); err != nil {
		httputil.ErrorWithDetails(w, http.StatusBadRequest, codeInvalidSource, err.Error(), nil)
		return
	}
	httputil.OK(w, map[string]bool{"valid": true})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func bookingParams(r *http.Request) (string, domain.TriggerType) {
	return chi.URLParam(r, "bookingID"), domain.TriggerType(strings.ToLower(chi.URLParam(r, "type")))
}

// intParam reads a non-negative integer query parameter. On a malformed
// value it writes a 400 and returns false.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		httputil.BadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
