package models

import "time"

// EmailType identifies why a message was sent.
const (
	EmailTypeRSVPInvite   = "rsvp_invite"
	EmailTypeRSVPReminder = "rsvp_reminder"
	EmailTypeLostPin      = "lost_pin"
)

// EmailLogStatus records the delivery outcome.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusLogged = "logged"
	EmailLogStatusFailed = "failed"
)

// EmailLog records one delivery attempt.
type EmailLog struct {
	ID             int64     `json:"id"`
	RegistrationID *int64    `json:"registrationId,omitempty"`
	EmailType      string    `json:"emailType"`
	RecipientEmail string    `json:"recipientEmail"`
	Subject        string    `json:"subject,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
