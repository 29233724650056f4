package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/logger"
)

// EmailNotifier renders a stored template and delivers it through a Sender.
type EmailNotifier struct {
	store     TemplateStore
	templates *TemplateService
	sender    Sender
	fromName  string
	fromEmail string
	log       *logger.Logger
}

// NewEmailNotifier creates a notifier. fromName and fromEmail are used when
// the template does not set its own sender.
func NewEmailNotifier(store TemplateStore, templates *TemplateService, sender Sender, fromName, fromEmail string) *EmailNotifier {
	return &EmailNotifier{
		store:     store,
		templates: templates,
		sender:    sender,
		fromName:  fromName,
		fromEmail: fromEmail,
		log:       logger.With("component", "notify"),
	}
}

// Send implements notification.Notifier.
func (n *EmailNotifier) Send(ctx context.Context, to domain.Recipient, templateRef string, tags map[string]any) error {
	if len(to.Addresses) == 0 {
		return ErrNoRecipients
	}

	msg, err := n.Render(ctx, templateRef, tags)
	if err != nil {
		return err
	}
	msg.To = to.Addresses

	res, err := n.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", templateRef, err)
	}
	n.log.Info("notification sent",
		"template_ref", templateRef,
		"message_id", res.MessageID,
		"transport", res.Transport)
	return nil
}

// Render builds the message for templateRef without recipients. It backs
// both Send and template previews.
func (n *EmailNotifier) Render(ctx context.Context, templateRef string, tags map[string]any) (*domain.EmailMessage, error) {
	tpl, err := n.store.GetTemplate(ctx, templateRef)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", templateRef, err)
	}

	version := strconv.FormatInt(tpl.UpdatedAt.UnixNano(), 10)
	render := func(part, src string) (string, error) {
		if src == "" {
			return "", nil
		}
		out, err := n.templates.Render(tpl.Ref+":"+version+":"+part, src, tags)
		if err != nil {
			return "", fmt.Errorf("template %s %s: %w", tpl.Ref, part, err)
		}
		return out, nil
	}

	msg := &domain.EmailMessage{
		ID:          uuid.New().String(),
		TemplateRef: tpl.Ref,
		FromName:    firstNonEmpty(tpl.FromName, n.fromName),
		FromEmail:   firstNonEmpty(tpl.FromEmail, n.fromEmail),
		ReplyTo:     tpl.ReplyTo,
		Tags:        messageTags(tags),
	}
	if msg.Subject, err = render("subject", tpl.Subject); err != nil {
		return nil, err
	}
	if msg.HTMLContent, err = render("html", tpl.HTMLContent); err != nil {
		return nil, err
	}
	if msg.TextContent, err = render("text", tpl.TextContent); err != nil {
		return nil, err
	}
	return msg, nil
}

// messageTags picks the identifiers transports attach to the message.
func messageTags(tags map[string]any) map[string]string {
	out := make(map[string]string)
	for _, k := range []string{"sys_booking_id", "sys_trigger_id", "sys_trigger_type"} {
		if v, ok := tags[k]; ok && v != nil {
			if s := fmt.Sprintf("%v", v); s != "" {
				out[k] = s
			}
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
