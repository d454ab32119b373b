package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	FromName string

	send func(ctx context.Context, m *sgmail.SGMailV3) (int, error)
}

func NewSendGridMailer(apiKey, fromName string) *SendGridMailer {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridMailer{
		FromName: fromName,
		send: func(ctx context.Context, m *sgmail.SGMailV3) (int, error) {
			response, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, err
			}
			return response.StatusCode, nil
		},
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	status, err := m.send(ctx, m.build(msg))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid error: status %d", status)
	}
	return nil
}

func (m *SendGridMailer) build(msg Message) *sgmail.SGMailV3 {
	email := sgmail.NewV3Mail()
	email.SetFrom(sgmail.NewEmail(m.FromName, msg.From))
	email.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	email.AddPersonalizations(p)
	email.AddContent(sgmail.NewContent("text/html", msg.HTML))
	return email
}
