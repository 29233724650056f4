package api

import (
	"errors"
	"net/http"

	"github.com/ignite/stayadmin/internal/notify"
	"github.com/ignite/stayadmin/internal/pkg/httputil"
	"github.com/ignite/stayadmin/internal/pkg/logger"
	"github.com/ignite/stayadmin/internal/service/notification"
	"github.com/ignite/stayadmin/internal/trigger"
)

// Error codes carried in the "code" field of error envelopes.
const (
	codeInvalidRule   = "invalid_rule"
	codeUnknownType   = "unknown_trigger_type"
	codeNotFound      = "not_found"
	codeBindFailed    = "merge_tags_unavailable"
	codeInvalidSource = "invalid_template"
)

// respondServiceError maps service errors to HTTP responses. Infrastructure
// failures are logged in full and answered with a generic 500 so database
// details never reach API consumers.
func respondServiceError(w http.ResponseWriter, err error) {
	var cfgErr *trigger.ConfigurationError
	var bindErr *trigger.BindError

	switch {
	case errors.As(err, &cfgErr):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, codeInvalidRule, "invalid trigger rule", cfgErr.Problems)
	case errors.Is(err, trigger.ErrUnknownType):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, codeUnknownType, err.Error(), nil)
	case errors.Is(err, notification.ErrRuleNotFound),
		errors.Is(err, notification.ErrBookingNotFound),
		errors.Is(err, notification.ErrQuestionNotFound),
		errors.Is(err, notify.ErrTemplateNotFound):
		httputil.ErrorWithDetails(w, http.StatusNotFound, codeNotFound, publicNotFound(err), nil)
	case errors.As(err, &bindErr):
		logger.Warn("api: merge tags unavailable", "booking_id", bindErr.BookingID, "error", err)
		httputil.ErrorWithDetails(w, http.StatusUnprocessableEntity, codeBindFailed, "merge tags could not be assembled", nil)
	default:
		httputil.InternalError(w, err)
	}
}

// publicNotFound returns the sentinel's own message rather than the wrapped
// chain, which may contain identifiers from the storage layer.
func publicNotFound(err error) string {
	for _, s := range []error{
		notification.ErrRuleNotFound,
		notification.ErrBookingNotFound,
		notification.ErrQuestionNotFound,
		notify.ErrTemplateNotFound,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "not found"
}
