package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/logger"
)

// Sender delivers one rendered message. Implementations must be safe for
// concurrent use. A transport failure is returned as an error; the
// SendResult is only meaningful on success.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// LogSender writes messages to the structured log instead of delivering
// them. Used in development and for dry runs.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.With("component", "notify", "transport", domain.TransportLog)}
}

func (s *LogSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	s.log.Info("notification",
		"message_id", id,
		"template_ref", msg.TemplateRef,
		"recipient", strings.Join(msg.To, ", "),
		"subject", msg.Subject)
	return &domain.SendResult{
		Success:   true,
		MessageID: id,
		Transport: domain.TransportLog,
		SentAt:    time.Now().UTC(),
	}, nil
}
