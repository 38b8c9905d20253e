package emaillogs

import (
	"context"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	db *database.DB
}

// NewRepository creates an email logs repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts one delivery outcome.
func (r *Repository) Record(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (registration_id, email_type, recipient_email, subject, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`
	id, err := r.db.InsertID(ctx, r.db, q, el.RegistrationID, el.EmailType, el.RecipientEmail, el.Subject, el.Status, el.ErrorMessage)
	if err != nil {
		return err
	}
	el.ID = id
	return nil
}

// List returns the most recent email logs, newest first, optionally filtered by type.
func (r *Repository) List(ctx context.Context, emailType string, limit int) ([]*models.EmailLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := `SELECT id, registration_id, email_type, recipient_email, subject, status, error_message, created_at
		FROM email_logs`
	args := []any{}
	if emailType != "" {
		q += ` WHERE email_type = ?`
		args = append(args, emailType)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var createdAt database.Timestamp
		if err := rows.Scan(&el.ID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status, &el.ErrorMessage, &createdAt); err != nil {
			return nil, err
		}
		el.CreatedAt = createdAt.Time
		list = append(list, &el)
	}
	return list, rows.Err()
}
