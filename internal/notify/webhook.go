package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/httpretry"
)

// WebhookSender posts each rendered message as JSON to a URL, for teams
// that relay notifications through their own mail or chat tooling.
type WebhookSender struct {
	url    string
	secret string
	client httpretry.HTTPDoer
}

// NewWebhookSender posts to url through client. A non-empty secret is sent
// as a bearer token.
func NewWebhookSender(url, secret string, client httpretry.HTTPDoer) *WebhookSender {
	return &WebhookSender{url: url, secret: secret, client: client}
}

type webhookPayload struct {
	MessageID   string            `json:"message_id"`
	TemplateRef string            `json:"template_ref"`
	To          []string          `json:"to"`
	From        string            `json:"from"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html,omitempty"`
	Text        string            `json:"text,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
}

func (w *WebhookSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if w.url == "" {
		return nil, fmt.Errorf("webhook: %w", ErrNotConfigured)
	}
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}

	sentAt := time.Now().UTC()
	body, err := json.Marshal(webhookPayload{
		MessageID:   msg.ID,
		TemplateRef: msg.TemplateRef,
		To:          msg.To,
		From:        msg.FromEmail,
		ReplyTo:     msg.ReplyTo,
		Subject:     msg.Subject,
		HTML:        msg.HTMLContent,
		Text:        msg.TextContent,
		Tags:        msg.Tags,
		SentAt:      sentAt,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)
	if w.secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	res := &domain.SendResult{Success: true, MessageID: msg.ID, Transport: domain.TransportWebhook, SentAt: sentAt}
	var wr webhookResponse
	if json.Unmarshal(data, &wr) == nil && wr.MessageID != "" {
		res.MessageID = wr.MessageID
	}
	return res, nil
}
