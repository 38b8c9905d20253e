package registrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/pkg/database"
)

var registrationColumns = []string{
	"id", "email", "first_name", "last_name", "organization", "job_title", "phone",
	"lunch_choice", "dietary_notes",
	"is_attendee", "is_organizer", "is_presenter", "is_monitor", "is_sponsor",
	"has_proxy", "proxy_name", "proxy_phone", "proxy_email",
	"attend_in_person", "attend_virtual", "is_cancelled", "cancellation_reason",
	"question1", "question2",
	"presenter_bio", "presenter_photo_path",
	"session1_title", "session1_description", "session2_title", "session2_description",
	"invited_name", "rsvp_status", "created_at", "updated_at",
}

// roleColumns maps the list filter onto indexed flag columns.
var roleColumns = map[string]string{
	"attendee":  "is_attendee",
	"organizer": "is_organizer",
	"presenter": "is_presenter",
	"monitor":   "is_monitor",
	"sponsor":   "is_sponsor",
}

func selectList(alias string) string {
	if alias == "" {
		return strings.Join(registrationColumns, ", ")
	}
	cols := make([]string, len(registrationColumns))
	for i, c := range registrationColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(s rowScanner, extra ...any) (*models.Registration, error) {
	var r models.Registration
	var status string
	var created, updated database.Timestamp
	dest := []any{
		&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.Organization, &r.JobTitle, &r.Phone,
		&r.LunchChoice, &r.DietaryNotes,
		&r.IsAttendee, &r.IsOrganizer, &r.IsPresenter, &r.IsMonitor, &r.IsSponsor,
		&r.HasProxy, &r.ProxyName, &r.ProxyPhone, &r.ProxyEmail,
		&r.AttendInPerson, &r.AttendVirtual, &r.IsCancelled, &r.CancellationReason,
		&r.Question1, &r.Question2,
		&r.PresenterBio, &r.PresenterPhotoPath,
		&r.Session1Title, &r.Session1Description, &r.Session2Title, &r.Session2Description,
		&r.InvitedName, &status, &created, &updated,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.RSVPStatus = models.RSVPStatus(status)
	r.CreatedAt = created.Time
	r.UpdatedAt = updated.Time
	return &r, nil
}

// NewRow is one registration plus the PIN for its credential.
type NewRow struct {
	Values []assignment
	PIN    string
}

// Repository handles registrations and credentials persistence.
type Repository struct {
	db *database.DB
}

// NewRepository creates a registrations repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a registration and its credential in one transaction and returns the new id.
func (r *Repository) Create(ctx context.Context, row NewRow) (int64, error) {
	ids, err := r.CreateBatch(ctx, []NewRow{row})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateBatch inserts every row and its credential in a single transaction. Nothing is
// committed unless every insert succeeds.
func (r *Repository) CreateBatch(ctx context.Context, rows []NewRow) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			id, err := r.insertWithCredential(ctx, tx, row)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repository) insertWithCredential(ctx context.Context, tx *sql.Tx, row NewRow) (int64, error) {
	cols := make([]string, len(row.Values))
	marks := make([]string, len(row.Values))
	args := make([]any, len(row.Values))
	for i, a := range row.Values {
		cols[i] = a.Column
		marks[i] = "?"
		args[i] = a.Value
	}
	q := fmt.Sprintf("INSERT INTO registrations (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))
	id, err := r.db.InsertID(ctx, tx, q, args...)
	switch {
	case r.db.Dialect.IsUniqueViolation(err):
		return 0, ErrDuplicate
	case errors.Is(err, database.ErrNoInsertID):
		return 0, ErrInsertFailed
	case err != nil:
		return 0, fmt.Errorf("insert registration: %w", err)
	}
	const cq = `INSERT INTO credentials (registration_id, login_pin) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, r.db.Rebind(cq), id, row.PIN); err != nil {
		return 0, fmt.Errorf("insert credential: %w", err)
	}
	return id, nil
}

// GetByID returns a registration or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Registration, error) {
	q := `SELECT ` + selectList("") + ` FROM registrations WHERE id = ?`
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, r.db.Rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// FindByEmail returns the registration for a normalised email or ErrNotFound.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Registration, error) {
	q := `SELECT ` + selectList("") + ` FROM registrations WHERE email = ?`
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, r.db.Rebind(q), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// FindByCredentials returns the registration whose email and PIN both match exactly,
// with LoginPin populated. Any mismatch is ErrNotFound.
func (r *Repository) FindByCredentials(ctx context.Context, email, pin string) (*models.Registration, error) {
	q := `SELECT ` + selectList("r") + `, c.login_pin
		FROM registrations r
		JOIN credentials c ON c.registration_id = r.id
		WHERE r.email = ? AND c.login_pin = ?`
	var loginPin string
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, r.db.Rebind(q), email, pin), &loginPin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	reg.LoginPin = loginPin
	return reg, nil
}

// GetPin returns the credential PIN for a registration or ErrNotFound.
func (r *Repository) GetPin(ctx context.Context, registrationID int64) (string, error) {
	const q = `SELECT login_pin FROM credentials WHERE registration_id = ?`
	var pin string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(q), registrationID).Scan(&pin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return pin, err
}

// Update applies values to registration id and refreshes updated_at. When confirm is true an
// invited registration becomes confirmed. It returns the number of rows affected.
func (r *Repository) Update(ctx context.Context, id int64, values []assignment, confirm bool) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	sets := make([]string, 0, len(values)+2)
	args := make([]any, 0, len(values)+1)
	for _, a := range values {
		sets = append(sets, a.Column+" = ?")
		args = append(args, a.Value)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	if confirm {
		sets = append(sets, fmt.Sprintf("rsvp_status = CASE WHEN rsvp_status = '%s' THEN '%s' ELSE rsvp_status END",
			models.RSVPInvited, models.RSVPConfirmed))
	}
	args = append(args, id)
	q := "UPDATE registrations SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if r.db.Dialect.IsUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("update registration: %w", err)
	}
	return res.RowsAffected()
}

// List returns registrations ordered by id, optionally only those with a role flag set.
func (r *Repository) List(ctx context.Context, role string) ([]*models.Registration, error) {
	q := `SELECT ` + selectList("") + ` FROM registrations`
	if role != "" {
		col, ok := roleColumns[role]
		if !ok {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		q += ` WHERE ` + col + ` = ?`
		return r.query(ctx, q+` ORDER BY id`, true)
	}
	return r.query(ctx, q+` ORDER BY id`)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]*models.Registration, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// IsOrganizer reports whether registration id exists and has the organizer flag.
func (r *Repository) IsOrganizer(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT is_organizer FROM registrations WHERE id = ?`
	var org bool
	err := r.db.QueryRowContext(ctx, r.db.Rebind(q), id).Scan(&org)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return org, err
}

const emailChunk = 500

// ExistingEmails returns the subset of emails that are already registered.
func (r *Repository) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for start := 0; start < len(emails); start += emailChunk {
		end := min(start+emailChunk, len(emails))
		chunk := emails[start:end]
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for i, e := range chunk {
			args[i] = e
		}
		rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT email FROM registrations WHERE email IN (`+marks+`)`), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var e string
			if err := rows.Scan(&e); err != nil {
				rows.Close()
				return nil, err
			}
			found[e] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// PendingInvites returns invited registrations that have not supplied a last name yet,
// joined to their credential, ordered by id.
func (r *Repository) PendingInvites(ctx context.Context) ([]models.PendingInvite, error) {
	const q = `SELECT r.id, r.email, r.first_name, r.invited_name, c.login_pin
		FROM registrations r
		JOIN credentials c ON c.registration_id = r.id
		WHERE r.rsvp_status = ? AND COALESCE(r.last_name, '') = ''
		ORDER BY r.id`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), string(models.RSVPInvited))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PendingInvite
	for rows.Next() {
		var p models.PendingInvite
		if err := rows.Scan(&p.RegistrationID, &p.Email, &p.FirstName, &p.InvitedName, &p.LoginPin); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SetPhotoPath records the stored presenter photo key.
func (r *Repository) SetPhotoPath(ctx context.Context, id int64, path string) error {
	const q = `UPDATE registrations SET presenter_photo_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), path, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Promote grants the organizer flag to the registration with email.
func (r *Repository) Promote(ctx context.Context, email string) error {
	const q = `UPDATE registrations SET is_organizer = ?, updated_at = CURRENT_TIMESTAMP WHERE email = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), true, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
