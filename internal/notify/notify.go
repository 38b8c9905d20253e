// Package notify renders registration mail and delivers it one recipient at a time,
// recording every outcome in the email log.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/pkg/mailer"
)

var (
	// ErrRSVPURLMissing means RSVP_URL is not configured.
	ErrRSVPURLMissing = errors.New("RSVP_URL is not configured")
	// ErrSMTPMissing means sending is enabled without SMTP_SERVER.
	ErrSMTPMissing = errors.New("SEND_EMAIL is enabled but SMTP_SERVER is not configured")
)

// fallbackLink stands in for {{rsvpUrl}} when RSVP_URL is unset.
const fallbackLink = "the conference registration site"

// Recorder persists delivery outcomes. *emaillogs.Repository satisfies it.
type Recorder interface {
	Record(ctx context.Context, el *models.EmailLog) error
}

// Config controls delivery.
type Config struct {
	Send        bool
	SMTPServer  string
	RSVPURL     string
	TemplateDir string
}

// Recipient is one addressee of a templated message.
type Recipient struct {
	RegistrationID int64
	Email          string
	Name           string
	PIN            string
}

// Failure is a per-recipient delivery error.
type Failure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Summary aggregates a bulk delivery.
type Summary struct {
	Attempted int       `json:"attempted"`
	Sent      int       `json:"sent"`
	Logged    int       `json:"logged"`
	Failures  []Failure `json:"failures"`
}

// Notifier renders templates and hands messages to a mailer.Sender.
type Notifier struct {
	cfg    Config
	sender mailer.Sender
	logs   Recorder
	logger *zap.Logger
}

// New creates a Notifier. When cfg.Send is false, sender should be a log-only sender and
// outcomes are recorded as "logged".
func New(cfg Config, sender mailer.Sender, logs Recorder, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, sender: sender, logs: logs, logger: logger}
}

// CheckConfig reports configuration that bulk RSVP mail needs before any work starts.
func (n *Notifier) CheckConfig() error {
	if n.cfg.RSVPURL == "" {
		return ErrRSVPURLMissing
	}
	return n.CheckRelay()
}

// CheckRelay reports ErrSMTPMissing when sending is enabled without a relay.
func (n *Notifier) CheckRelay() error {
	if n.cfg.Send && n.cfg.SMTPServer == "" {
		return ErrSMTPMissing
	}
	return nil
}

// Template loads a template by email type. Templates are read on every call so edits
// in the override directory apply without a restart.
func (n *Notifier) Template(emailType string) (*Template, error) {
	return LoadTemplate(n.cfg.TemplateDir, emailType)
}

// Deliver renders tpl for r and sends or logs it. It returns the recorded status and,
// for "failed", the send error. With sending enabled but no relay nothing is handed to
// the sender and the attempt is recorded as failed.
func (n *Notifier) Deliver(ctx context.Context, tpl *Template, r Recipient) (string, error) {
	link := n.cfg.RSVPURL
	if link == "" {
		link = fallbackLink
	}
	subject, body := tpl.Render(Vars{Name: r.Name, PIN: r.PIN, RSVPURL: link, Email: r.Email})
	status := models.EmailLogStatusLogged
	if n.cfg.Send {
		status = models.EmailLogStatusSent
	}
	sendErr := n.CheckRelay()
	if sendErr == nil {
		sendErr = n.sender.Send(ctx, mailer.Message{To: r.Email, Subject: subject, Body: body})
	}
	if sendErr != nil {
		status = models.EmailLogStatusFailed
		n.logger.Warn("email delivery failed",
			zap.String("type", tpl.Name),
			zap.String("to", r.Email),
			zap.Error(sendErr),
		)
	}
	n.record(ctx, tpl, r, subject, status, sendErr)
	return status, sendErr
}

// DeliverAll delivers tpl to each recipient in order. Failures are collected, never returned.
func (n *Notifier) DeliverAll(ctx context.Context, tpl *Template, recipients []Recipient) Summary {
	sum := Summary{Failures: []Failure{}}
	for _, r := range recipients {
		sum.Attempted++
		status, err := n.Deliver(ctx, tpl, r)
		switch status {
		case models.EmailLogStatusSent:
			sum.Sent++
		case models.EmailLogStatusLogged:
			sum.Logged++
		default:
			sum.Failures = append(sum.Failures, Failure{Email: r.Email, Error: err.Error()})
		}
	}
	return sum
}

func (n *Notifier) record(ctx context.Context, tpl *Template, r Recipient, subject, status string, sendErr error) {
	if n.logs == nil {
		return
	}
	el := &models.EmailLog{
		EmailType:      tpl.Name,
		RecipientEmail: r.Email,
		Subject:        subject,
		Status:         status,
	}
	if r.RegistrationID > 0 {
		id := r.RegistrationID
		el.RegistrationID = &id
	}
	if sendErr != nil {
		el.ErrorMessage = sendErr.Error()
	}
	// Recorded even when the request context is already cancelled.
	if err := n.logs.Record(context.WithoutCancel(ctx), el); err != nil {
		n.logger.Error("record email log failed", zap.String("to", r.Email), zap.Error(err))
	}
}
