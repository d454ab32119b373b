// Package notify delivers report results: printed to the console when a
// report has no recipients or in preview mode, e-mailed otherwise.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/metrics"
	"github.com/nadmax/reportd/internal/task"
)

// Settings are the mail options the definitions file may override at reload.
type Settings struct {
	Server         string
	From           string
	FontSizeHeader int
	FontSizeBody   int
}

type Message struct {
	// Relay is the SMTP server; API based mailers ignore it.
	Relay   string
	From    string
	To      []string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Option func(*Notifier)

// WithOutput sets where console and preview output goes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(n *Notifier) {
		n.out = w
	}
}

func WithPreview(preview bool) Option {
	return func(n *Notifier) {
		n.preview = preview
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		n.clock = now
	}
}

type Notifier struct {
	mailer   Mailer
	renderer *Renderer
	out      io.Writer
	preview  bool
	clock    func() time.Time

	mu       sync.RWMutex
	settings Settings
}

func New(mailer Mailer, settings Settings, opts ...Option) *Notifier {
	n := &Notifier{
		mailer:   mailer,
		renderer: NewRenderer(),
		out:      os.Stdout,
		clock:    time.Now,
		settings: settings,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) SetSettings(s Settings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settings = s
}

func (n *Notifier) Settings() Settings {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.settings
}

// Notify delivers one report. Only a failed send is returned as an error;
// the post-mail hook runs after a successful send and its errors are logged.
func (n *Notifier) Notify(ctx context.Context, report task.Report) error {
	results := report.Results
	if results == nil {
		results = task.NewResults("")
	}
	email := report.Email

	title, err := n.renderer.Title(email.Title)
	if err != nil {
		return err
	}
	table, err := n.renderer.Table(results)
	if err != nil {
		return err
	}

	info := Summary(results)

	if len(email.Recipients) == 0 {
		n.print(info, string(table))
		metrics.RecordEmail(metrics.EmailConsole)
		return nil
	}

	recipients := email.RecipientList(",")

	if results.RowCount() == 0 && !email.MailIfEmpty {
		n.print(fmt.Sprintf("%s; e-mail will not be sent (%s)", info, n.clock().Format("3:04:05 PM")))
		metrics.RecordEmail(metrics.EmailSuppressed)
		return nil
	}

	if n.preview {
		lines := []string{fmt.Sprintf("%s; e-mail would be sent to %s", info, recipients)}
		if results.RowCount() > 0 {
			lines = append(lines, string(title), string(table))
		}
		n.print(lines...)
		metrics.RecordEmail(metrics.EmailPreview)
		return nil
	}

	settings := n.Settings()
	body, err := n.renderer.Document(title, table, settings)
	if err != nil {
		return err
	}

	msg := Message{
		Relay:   settings.Server,
		From:    settings.From,
		To:      email.Recipients,
		Subject: email.Subject,
		HTML:    body,
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		slog.Error("Error e-mailing the results",
			tag.Report(results.ReportName), tag.Recipients(recipients), tag.Error(err))
		metrics.RecordEmail(metrics.EmailFailed)
		return fmt.Errorf("failed to e-mail report %s to %s: %w", results.ReportName, recipients, err)
	}

	slog.Info(fmt.Sprintf("%s; e-mail sent to %s", info, recipients), tag.Report(results.ReportName))
	metrics.RecordEmail(metrics.EmailSent)

	if report.Hook != nil {
		if err := report.Hook.Run(ctx, results); err != nil {
			slog.Warn("Post-mail hook failed",
				tag.Report(results.ReportName), slog.String("hook", report.Hook.Describe()), tag.Error(err))
		}
	}
	return nil
}

// Summary is the one-line description of a report's results, e.g.
// "Report 'Email Alerts' had 2 rows of data".
func Summary(results *task.Results) string {
	switch n := results.RowCount(); n {
	case 0:
		return fmt.Sprintf("Report '%s' had no data", results.ReportName)
	case 1:
		return fmt.Sprintf("Report '%s' had 1 row of data", results.ReportName)
	default:
		return fmt.Sprintf("Report '%s' had %d rows of data", results.ReportName, n)
	}
}

func (n *Notifier) print(lines ...string) {
	fmt.Fprintln(n.out)
	for _, line := range lines {
		fmt.Fprintln(n.out, line)
	}
}
