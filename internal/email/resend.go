package email

import (
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/persona-e2e/internal/obs"
)

// ResendMailer implements Mailer using the Resend API.
type ResendMailer struct {
	client      *resend.Client
	fromAddress string
}

// NewResendMailer creates a Resend-backed Mailer.
// fromAddress must be verified in Resend.
func NewResendMailer(apiKey, fromAddress string) *ResendMailer {
	return &ResendMailer{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Client exposes the underlying Resend client.
func (r *ResendMailer) Client() *resend.Client { return r.client }

// Send implements Mailer.
func (r *ResendMailer) Send(to, templateName string, data any) error {
	subject, text, html, err := Render(templateName, data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Text:    text,
	}

	sent, err := r.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	obs.Pkg("email").Info("email_sent", "to", to, "template", templateName, "resend_id", sent.Id)
	return nil
}
