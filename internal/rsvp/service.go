package rsvp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/internal/notify"
	"github.com/confreg/backend/internal/registrations"
)

var (
	// ErrNoRows means the file held no data rows.
	ErrNoRows = errors.New("CSV contains no data rows")
	// ErrNotConfigured wraps missing mail configuration.
	ErrNotConfigured = errors.New("RSVP email is not configured")
)

// Registrar creates and queries invited registrations. *registrations.Service satisfies it.
type Registrar interface {
	ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)
	CreateInvited(ctx context.Context, invites []registrations.Invite) ([]notify.Recipient, error)
	PendingRecipients(ctx context.Context) ([]notify.Recipient, error)
}

// Result is the outcome of an upload or reminder run.
type Result struct {
	Processed int            `json:"processed"`
	Email     notify.Summary `json:"email"`
}

// Service runs the bulk invite pipeline.
type Service struct {
	reg      Registrar
	notifier *notify.Notifier
	logger   *zap.Logger
}

// NewService creates an RSVP service.
func NewService(reg Registrar, notifier *notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reg: reg, notifier: notifier, logger: logger}
}

// prepare checks mail configuration and loads the template before any other work.
func (s *Service) prepare(emailType string) (*notify.Template, error) {
	if err := s.notifier.CheckConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return s.notifier.Template(emailType)
}

// Upload parses data, rejects the whole file if any row has a problem, otherwise creates
// every invite in one transaction and then mails each invitee. Mail failures are reported
// in the result and never undo the registrations.
func (s *Service) Upload(ctx context.Context, data []byte) (*Result, error) {
	tpl, err := s.prepare(models.EmailTypeRSVPInvite)
	if err != nil {
		return nil, err
	}
	records, err := ParseCSV(data)
	if err != nil {
		return nil, err
	}
	rows := BuildRows(records)
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	var clean []string
	for _, r := range rows {
		if len(r.Problems) == 0 {
			clean = append(clean, r.Email)
		}
	}
	existing, err := s.reg.ExistingEmails(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("check existing registrations: %w", err)
	}
	for i := range rows {
		if len(rows[i].Problems) == 0 && existing[rows[i].Email] {
			rows[i].Problems = append(rows[i].Problems, "already registered")
		}
	}
	if iss := issues(rows); len(iss) > 0 {
		return nil, &IssuesError{Issues: iss}
	}

	invites := make([]registrations.Invite, len(rows))
	for i, r := range rows {
		invites[i] = registrations.Invite{
			Email:       r.Email,
			Name:        r.Name,
			IsOrganizer: r.Role.Organizer,
			IsPresenter: r.Role.Presenter,
		}
	}
	recipients, err := s.reg.CreateInvited(ctx, invites)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rsvp invites created", zap.Int("count", len(recipients)))

	sum := s.notifier.DeliverAll(ctx, tpl, recipients)
	s.logSummary("rsvp invites mailed", sum)
	return &Result{Processed: len(recipients), Email: sum}, nil
}

// Remind re-sends the invitation to every registration still pending RSVP.
func (s *Service) Remind(ctx context.Context) (*Result, error) {
	tpl, err := s.prepare(models.EmailTypeRSVPReminder)
	if err != nil {
		return nil, err
	}
	recipients, err := s.reg.PendingRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending invites: %w", err)
	}
	sum := s.notifier.DeliverAll(ctx, tpl, recipients)
	s.logSummary("rsvp reminders mailed", sum)
	return &Result{Processed: len(recipients), Email: sum}, nil
}

func (s *Service) logSummary(msg string, sum notify.Summary) {
	s.logger.Info(msg,
		zap.Int("attempted", sum.Attempted),
		zap.Int("sent", sum.Sent),
		zap.Int("logged", sum.Logged),
		zap.Int("failed", len(sum.Failures)),
	)
}
