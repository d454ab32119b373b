package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

const DefaultSMTPPort = 25

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer relays through the server named in each message. Credentials
// are optional; with a username set it authenticates with PLAIN.
type SMTPMailer struct {
	Port     int
	Username string
	Password string

	send sendFunc
}

func NewSMTPMailer(port int, username, password string) *SMTPMailer {
	if port <= 0 {
		port = DefaultSMTPPort
	}
	return &SMTPMailer{
		Port:     port,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.Relay == "" {
		return errors.New("no e-mail server configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Compose(msg, time.Now())
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, msg.Relay)
	}

	addr := net.JoinHostPort(msg.Relay, strconv.Itoa(m.Port))
	if err := m.send(addr, auth, msg.From, msg.To, body); err != nil {
		return fmt.Errorf("smtp send via %s failed: %w", addr, err)
	}
	return nil
}

// Compose builds the RFC 5322 message for an HTML report.
func Compose(msg Message, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.HTML); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}
