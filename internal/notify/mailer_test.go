package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/smtp"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Relay:   "mail.example.org",
		From:    "reports@example.org",
		To:      []string{"a@example.org", "b@example.org"},
		Subject: "Processor Status Warnings",
		HTML:    "<html><body><h3>Warnings</h3></body></html>",
	}
}

func TestCompose(t *testing.T) {
	raw, err := Compose(sampleMessage(), time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Processor Status Warnings", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "b@example.org", to[1].Address)

	date, err := r.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))

	part, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html><body><h3>Warnings</h3></body></html>", string(body))
}

func TestSMTPMailerSend(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
	)
	m := NewSMTPMailer(0, "", "")
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		assert.Contains(t, string(msg), "Subject: Processor Status Warnings")
		return nil
	}

	require.NoError(t, m.Send(context.Background(), sampleMessage()))
	assert.Equal(t, "mail.example.org:25", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, "reports@example.org", gotFrom)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, gotTo)
}

func TestSMTPMailerAuthAndErrors(t *testing.T) {
	m := NewSMTPMailer(587, "user", "secret")
	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		gotAuth = a
		assert.Equal(t, "mail.example.org:587", addr)
		return errors.New("554 rejected")
	}

	err := m.Send(context.Background(), sampleMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "554 rejected")
	assert.NotNil(t, gotAuth)

	msg := sampleMessage()
	msg.Relay = ""
	assert.Error(t, m.Send(context.Background(), msg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, sampleMessage()), context.Canceled)
}

func TestSendGridMailer(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		sendErr error
		wantErr string
	}{
		{name: "accepted", status: 202},
		{name: "rejected", status: 401, wantErr: "sendgrid error: status 401"},
		{name: "transport error", sendErr: errors.New("timeout"), wantErr: "failed to send email: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *sgmail.SGMailV3
			m := NewSendGridMailer("key", "reportd")
			m.send = func(_ context.Context, email *sgmail.SGMailV3) (int, error) {
				got = email
				return tt.status, tt.sendErr
			}

			err := m.Send(context.Background(), sampleMessage())
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Processor Status Warnings", got.Subject)
			assert.Equal(t, "reports@example.org", got.From.Address)
			assert.Equal(t, "reportd", got.From.Name)
			require.Len(t, got.Personalizations, 1)
			assert.Len(t, got.Personalizations[0].To, 2)
			require.Len(t, got.Content, 1)
			assert.Equal(t, "text/html", got.Content[0].Type)
		})
	}
}
