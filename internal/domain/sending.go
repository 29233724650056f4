package domain

import "time"

// Transport identifies how rendered notifications leave the system.
type Transport string

const (
	TransportSES     Transport = "ses"
	TransportWebhook Transport = "webhook"
	TransportLog     Transport = "log"
)

// NotificationTemplate is the stored render template referenced by a
// trigger rule's TemplateRef. Subject and bodies are Liquid templates.
type NotificationTemplate struct {
	Ref         string    `json:"ref" db:"ref"`
	Subject     string    `json:"subject" db:"subject"`
	HTMLContent string    `json:"html_content" db:"html_content"`
	TextContent string    `json:"text_content" db:"text_content"`
	FromName    string    `json:"from_name" db:"from_name"`
	FromEmail   string    `json:"from_email" db:"from_email"`
	ReplyTo     string    `json:"reply_to" db:"reply_to"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// EmailMessage is the fully-rendered message ready for a transport.
// By the time a message reaches this struct all merge tags are bound.
type EmailMessage struct {
	ID          string            `json:"id"`
	TemplateRef string            `json:"template_ref"`
	To          []string          `json:"to"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// SendResult is returned by a transport after attempting delivery.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	Transport Transport `json:"transport"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}
