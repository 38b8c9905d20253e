package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/internal/notify"
	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/internal/validate"
	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/utils"
)

// Placeholder answers stored for invitees until they complete the form themselves.
const pendingAnswer = "RSVP pending"

// Created is the result of a successful create.
type Created struct {
	ID       int64  `json:"id"`
	LoginPin string `json:"loginPin"`
}

// Invite is one accepted RSVP row.
type Invite struct {
	Email       string
	Name        string
	IsOrganizer bool
	IsPresenter bool
}

// Service implements the registration lifecycle: create, login, read, update and lost PIN.
type Service struct {
	repo     *Repository
	notifier *notify.Notifier
	logger   *zap.Logger
	newPIN   func() (string, error)
}

// NewService creates a registration service. notifier may be nil when lost-PIN mail is not needed.
func NewService(repo *Repository, notifier *notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, newPIN: utils.GeneratePIN}
}

// Create validates fields and inserts a confirmed registration with a fresh PIN.
func (s *Service) Create(ctx context.Context, in Input, requester session.Principal) (*Created, error) {
	if priv := in.privileged(nil); len(priv) > 0 && !requester.IsOrganizer {
		return nil, &ForbiddenError{Fields: priv}
	}
	fe := &FieldError{
		Missing: validate.MissingRequired(in.Text, requiredFields),
		Invalid: in.invalidFormats(),
	}
	if len(fe.Missing) > 0 || len(fe.Invalid) > 0 {
		return nil, fe
	}
	if in.Flags == nil {
		in.Flags = map[string]bool{}
	}
	if _, ok := in.Flags["isAttendee"]; !ok {
		in.Flags["isAttendee"] = true
	}
	pin, err := s.newPIN()
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}
	values := append(in.assignments(), assignment{Column: "rsvp_status", Value: string(models.RSVPConfirmed)})
	id, err := s.repo.Create(ctx, NewRow{Values: values, PIN: pin})
	if err != nil {
		return nil, err
	}
	return &Created{ID: id, LoginPin: pin}, nil
}

// Login returns the registration matching email and pin exactly, with its PIN.
// Unknown email and wrong PIN both yield ErrNotFound.
func (s *Service) Login(ctx context.Context, email, pin string) (*models.Registration, error) {
	email = validate.NormalizeEmail(email)
	pin = strings.TrimSpace(pin)
	if email == "" || pin == "" {
		return nil, &FieldError{Missing: missingCreds(email, pin)}
	}
	return s.repo.FindByCredentials(ctx, email, pin)
}

func missingCreds(email, pin string) []string {
	var m []string
	if email == "" {
		m = append(m, "email")
	}
	if pin == "" {
		m = append(m, "pin")
	}
	return m
}

// Get returns registration id if requester is its owner or an organizer.
// The authorization check runs before the lookup, so outsiders cannot probe for ids.
func (s *Service) Get(ctx context.Context, id int64, requester session.Principal) (*models.Registration, error) {
	if !requester.CanAccess(id) {
		return nil, &ForbiddenError{ID: id}
	}
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. Required fields that are sent may not be blank.
// It returns the rows affected and the registration as stored afterwards.
func (s *Service) Update(ctx context.Context, id int64, in Input, requester session.Principal) (int64, *models.Registration, error) {
	if !requester.CanAccess(id) {
		return 0, nil, &ForbiddenError{ID: id}
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if priv := in.privileged(privilegedFlags(current)); len(priv) > 0 && !requester.IsOrganizer {
		return 0, nil, &ForbiddenError{ID: id, Fields: priv}
	}
	fe := &FieldError{
		Missing: validate.BlankedRequired(in.Text, requiredFields),
		Invalid: in.invalidFormats(),
	}
	if len(fe.Missing) > 0 || len(fe.Invalid) > 0 {
		return 0, nil, fe
	}
	confirm := strings.TrimSpace(in.Text["lastName"]) != ""
	n, err := s.repo.Update(ctx, id, in.assignments(), confirm)
	if err != nil {
		return 0, nil, err
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return n, updated, nil
}

func privilegedFlags(r *models.Registration) map[string]bool {
	return map[string]bool{
		"isOrganizer": r.IsOrganizer,
		"isMonitor":   r.IsMonitor,
		"isSponsor":   r.IsSponsor,
	}
}

// LostPin mails the PIN for email. Unknown addresses and missing credentials yield
// ErrContactOrganizer; any other failure is logged and returned wrapped in ErrSendPin.
func (s *Service) LostPin(ctx context.Context, email string) error {
	email = validate.NormalizeEmail(email)
	reg, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return ErrContactOrganizer
	}
	if err != nil {
		s.logger.Error("lost pin: find registration failed", append(database.LogFields(err), zap.String("email", email))...)
		return fmt.Errorf("%w: %v", ErrSendPin, err)
	}
	pin, err := s.repo.GetPin(ctx, reg.ID)
	if errors.Is(err, ErrNotFound) {
		return ErrContactOrganizer
	}
	if err != nil {
		s.logger.Error("lost pin: credential lookup failed", append(database.LogFields(err), zap.Int64("registration_id", reg.ID))...)
		return fmt.Errorf("%w: %v", ErrSendPin, err)
	}
	if s.notifier == nil {
		return fmt.Errorf("%w: mail not configured", ErrSendPin)
	}
	tpl, err := s.notifier.Template(models.EmailTypeLostPin)
	if err != nil {
		s.logger.Error("lost pin: template failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSendPin, err)
	}
	name := strings.TrimSpace(reg.FirstName + " " + reg.LastName)
	if name == "" {
		name = reg.InvitedName
	}
	if _, err := s.notifier.Deliver(ctx, tpl, notify.Recipient{RegistrationID: reg.ID, Email: reg.Email, Name: name, PIN: pin}); err != nil {
		return fmt.Errorf("%w: %v", ErrSendPin, err)
	}
	return nil
}

// List returns registrations, optionally filtered by role. Organizer-only at the route.
func (s *Service) List(ctx context.Context, role string) ([]*models.Registration, error) {
	return s.repo.List(ctx, role)
}

// Roles reports the valid List filters.
func Roles() []string {
	return []string{"attendee", "organizer", "presenter", "monitor", "sponsor"}
}

// ExistingEmails returns which of the normalised emails are already registered.
func (s *Service) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	return s.repo.ExistingEmails(ctx, emails)
}

// CreateInvited inserts every invite as an invited registration in one transaction and
// returns the recipients to notify, in input order.
func (s *Service) CreateInvited(ctx context.Context, invites []Invite) ([]notify.Recipient, error) {
	rows := make([]NewRow, len(invites))
	for i, inv := range invites {
		pin, err := s.newPIN()
		if err != nil {
			return nil, fmt.Errorf("generate pin: %w", err)
		}
		first, _ := SplitName(inv.Name)
		rows[i] = NewRow{PIN: pin, Values: []assignment{
			{Column: "email", Value: inv.Email},
			{Column: "first_name", Value: first},
			{Column: "last_name", Value: ""},
			{Column: "question1", Value: pendingAnswer},
			{Column: "question2", Value: pendingAnswer},
			{Column: "is_attendee", Value: true},
			{Column: "is_organizer", Value: inv.IsOrganizer},
			{Column: "is_presenter", Value: inv.IsPresenter},
			{Column: "invited_name", Value: inv.Name},
			{Column: "rsvp_status", Value: string(models.RSVPInvited)},
		}}
	}
	ids, err := s.repo.CreateBatch(ctx, rows)
	if err != nil {
		return nil, err
	}
	out := make([]notify.Recipient, len(ids))
	for i, id := range ids {
		out[i] = notify.Recipient{RegistrationID: id, Email: invites[i].Email, Name: invites[i].Name, PIN: rows[i].PIN}
	}
	return out, nil
}

// PendingRecipients returns invitees that still have not completed their registration.
func (s *Service) PendingRecipients(ctx context.Context) ([]notify.Recipient, error) {
	pending, err := s.repo.PendingInvites(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]notify.Recipient, len(pending))
	for i, p := range pending {
		out[i] = notify.Recipient{RegistrationID: p.RegistrationID, Email: p.Email, Name: p.DisplayName(), PIN: p.LoginPin}
	}
	return out, nil
}

// SplitName splits at the first run of whitespace. A single token is the last name.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return "", name
	}
	return name[:i], strings.TrimLeftFunc(name[i:], unicode.IsSpace)
}
