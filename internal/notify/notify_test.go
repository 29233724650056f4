package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/pkg/httpretry"
)

type memStore map[string]*domain.NotificationTemplate

func (m memStore) GetTemplate(_ context.Context, ref string) (*domain.NotificationTemplate, error) {
	t, ok := m[ref]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

type captureSender struct {
	msgs []*domain.EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.msgs = append(c.msgs, msg)
	return &domain.SendResult{Success: true, MessageID: "m-1", Transport: domain.TransportLog}, nil
}

var tags = map[string]any{
	"sys_booking_id":    "b-1",
	"sys_trigger_id":    "r1",
	"guest_name":        "Alex Morgan",
	"booking_reference": "BK-1001",
	"services":          []string{"Catering", "Music", "Transport"},
	"alternate_contact": "",
}

func ndisTemplate(updated time.Time) *domain.NotificationTemplate {
	return &domain.NotificationTemplate{
		Ref:         "ndis",
		Subject:     "New booking {{ booking_reference }}",
		HTMLContent: "<p>{{ guest_name | escape }} needs {{ services | sentence }}.</p>",
		TextContent: "Contact: {{ alternate_contact | default: \"none\" }}",
		UpdatedAt:   updated,
	}
}

func TestTemplateService_Filters(t *testing.T) {
	ts := NewTemplateService()

	out, err := ts.Render("", `{{ services | sentence }}|{{ missing | default: "n/a" }}|{{ "hello" | capitalize }}`, tags)
	require.NoError(t, err)
	assert.Equal(t, "Catering, Music and Transport|n/a|Hello", out)

	out, err = ts.Render("", `{{ "funder@example.com" | mask_email }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "fu***@example.com", out)
}

func TestTemplateService_ParseError(t *testing.T) {
	ts := NewTemplateService()
	_, err := ts.Render("bad", "{% if guest_name %}unterminated", tags)
	assert.Error(t, err)
	assert.Error(t, ts.Validate("{% no_such_tag %}"))
	assert.NoError(t, ts.Validate("{{ guest_name }}"))
}

func TestEmailNotifier_RendersAndSends(t *testing.T) {
	sender := &captureSender{}
	n := NewEmailNotifier(memStore{"ndis": ndisTemplate(time.Unix(100, 0))}, NewTemplateService(), sender,
		"Stay Bookings", "bookings@example.com")

	err := n.Send(context.Background(), domain.Recipient{Addresses: []string{"ops@example.com"}}, "ndis", tags)
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Equal(t, "Stay Bookings", msg.FromName)
	assert.Equal(t, "bookings@example.com", msg.FromEmail)
	assert.Equal(t, "New booking BK-1001", msg.Subject)
	assert.Equal(t, "<p>Alex Morgan needs Catering, Music and Transport.</p>", msg.HTMLContent)
	assert.Equal(t, "Contact: none", msg.TextContent)
	assert.Equal(t, map[string]string{"sys_booking_id": "b-1", "sys_trigger_id": "r1"}, msg.Tags)
}

func TestEmailNotifier_TemplateEditsInvalidateCache(t *testing.T) {
	store := memStore{"ndis": ndisTemplate(time.Unix(100, 0))}
	n := NewEmailNotifier(store, NewTemplateService(), &captureSender{}, "", "bookings@example.com")

	msg, err := n.Render(context.Background(), "ndis", tags)
	require.NoError(t, err)
	assert.Equal(t, "New booking BK-1001", msg.Subject)

	edited := ndisTemplate(time.Unix(200, 0))
	edited.Subject = "Updated: {{ guest_name }}"
	store["ndis"] = edited

	msg, err = n.Render(context.Background(), "ndis", tags)
	require.NoError(t, err)
	assert.Equal(t, "Updated: Alex Morgan", msg.Subject)
}

func TestEmailNotifier_Errors(t *testing.T) {
	sender := &captureSender{}
	n := NewEmailNotifier(memStore{}, NewTemplateService(), sender, "", "")

	err := n.Send(context.Background(), domain.Recipient{}, "ndis", tags)
	assert.ErrorIs(t, err, ErrNoRecipients)

	err = n.Send(context.Background(), domain.Recipient{Addresses: []string{"a@example.com"}}, "ghost", tags)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	n = NewEmailNotifier(memStore{"ndis": ndisTemplate(time.Unix(1, 0))}, NewTemplateService(),
		&captureSender{err: errors.New("throttled")}, "", "")
	err = n.Send(context.Background(), domain.Recipient{Addresses: []string{"a@example.com"}}, "ndis", tags)
	assert.ErrorContains(t, err, "throttled")
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESSender(t *testing.T) {
	client := &fakeSES{}
	s := NewSESSender(client, "bookings")

	res, err := s.Send(context.Background(), &domain.EmailMessage{
		To:          []string{"ops@example.com", "lead@example.com"},
		FromName:    "Stay Bookings",
		FromEmail:   "bookings@example.com",
		ReplyTo:     "reply@example.com",
		Subject:     "New booking",
		HTMLContent: "<p>hi</p>",
		Tags:        map[string]string{"sys_trigger_id": "r1", "sys_booking_id": "b 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-123", res.MessageID)
	assert.Equal(t, domain.TransportSES, res.Transport)

	in := client.in
	assert.Equal(t, "Stay Bookings <bookings@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"reply@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "bookings", aws.ToString(in.ConfigurationSetName))
	assert.Nil(t, in.Content.Simple.Body.Text)
	require.Len(t, in.EmailTags, 2)
	assert.Equal(t, "sys_booking_id", aws.ToString(in.EmailTags[0].Name))
	assert.Equal(t, "b_1", aws.ToString(in.EmailTags[0].Value))

	client.err = errors.New("MessageRejected")
	_, err = s.Send(context.Background(), &domain.EmailMessage{To: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "MessageRejected")

	_, err = NewSESSender(nil, "").Send(context.Background(), &domain.EmailMessage{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWebhookSender_RetriesAndDecodes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "msg-1", r.Header.Get("Idempotency-Key"))

		var p webhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, []string{"ops@example.com"}, p.To)
		assert.Equal(t, "ndis", p.TemplateRef)

		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"message_id":"relay-9"}`)
	}))
	defer srv.Close()

	client := httpretry.NewRetryClient(srv.Client(), 2)
	client.SetBackoff(time.Millisecond, 2*time.Millisecond)
	s := NewWebhookSender(srv.URL, "s3cret", client)

	res, err := s.Send(context.Background(), &domain.EmailMessage{
		ID: "msg-1", TemplateRef: "ndis", To: []string{"ops@example.com"}, Subject: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "relay-9", res.MessageID)
	assert.Equal(t, domain.TransportWebhook, res.Transport)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookSender_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown template", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "", srv.Client())
	_, err := s.Send(context.Background(), &domain.EmailMessage{ID: "m", To: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "status 422")

	_, err = NewWebhookSender("", "", srv.Client()).Send(context.Background(), &domain.EmailMessage{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLogSender(t *testing.T) {
	res, err := NewLogSender().Send(context.Background(), &domain.EmailMessage{To: []string{"a@example.com"}, Subject: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.MessageID)

	_, err = NewLogSender().Send(context.Background(), &domain.EmailMessage{})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

type fakeS3 struct {
	objects map[string]string
	key     string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.key = aws.ToString(in.Key)
	body, ok := f.objects[f.key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	modified := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body)), LastModified: &modified}, nil
}

func TestS3TemplateStore(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"templates/ndis.json": `{"subject":"New booking {{ booking_reference }}","html_content":"<p>hi</p>"}`,
	}}
	store := NewS3TemplateStore(client, "stay-templates", "/templates/")

	tpl, err := store.GetTemplate(context.Background(), "ndis")
	require.NoError(t, err)
	assert.Equal(t, "templates/ndis.json", client.key)
	assert.Equal(t, "ndis", tpl.Ref)
	assert.Equal(t, "New booking {{ booking_reference }}", tpl.Subject)
	assert.Equal(t, 2025, tpl.UpdatedAt.Year())

	_, err = store.GetTemplate(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = store.GetTemplate(context.Background(), "../secrets")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
