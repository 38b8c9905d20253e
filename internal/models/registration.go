package models

import "time"

// RSVPStatus tracks where a registration is in the invite lifecycle.
type RSVPStatus string

const (
	RSVPInvited   RSVPStatus = "invited"
	RSVPConfirmed RSVPStatus = "confirmed"
	RSVPCancelled RSVPStatus = "cancelled"
)

// Registration is one attendee, organizer or presenter.
type Registration struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`

	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Organization string `json:"organization"`
	JobTitle     string `json:"jobTitle"`
	Phone        string `json:"phone"`
	LunchChoice  string `json:"lunchChoice"`
	DietaryNotes string `json:"dietaryNotes"`

	IsAttendee  bool `json:"isAttendee"`
	IsOrganizer bool `json:"isOrganizer"`
	IsPresenter bool `json:"isPresenter"`
	IsMonitor   bool `json:"isMonitor"`
	IsSponsor   bool `json:"isSponsor"`

	HasProxy   bool   `json:"hasProxy"`
	ProxyName  string `json:"proxyName"`
	ProxyPhone string `json:"proxyPhone"`
	ProxyEmail string `json:"proxyEmail"`

	AttendInPerson     bool   `json:"attendInPerson"`
	AttendVirtual      bool   `json:"attendVirtual"`
	IsCancelled        bool   `json:"isCancelled"`
	CancellationReason string `json:"cancellationReason"`

	Question1 string `json:"question1"`
	Question2 string `json:"question2"`

	PresenterBio        string `json:"presenterBio"`
	PresenterPhotoPath  string `json:"presenterPhotoPath"`
	Session1Title       string `json:"session1Title"`
	Session1Description string `json:"session1Description"`
	Session2Title       string `json:"session2Title"`
	Session2Description string `json:"session2Description"`

	InvitedName string     `json:"invitedName,omitempty"`
	RSVPStatus  RSVPStatus `json:"rsvpStatus"`

	// LoginPin is only populated by the login and creation flows.
	LoginPin string `json:"loginPin,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Credential holds the login PIN for a registration (one-to-one).
type Credential struct {
	ID             int64     `json:"id"`
	RegistrationID int64     `json:"registrationId"`
	LoginPin       string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PendingInvite is an invited registration joined to its credential, used for reminders.
type PendingInvite struct {
	RegistrationID int64
	Email          string
	FirstName      string
	InvitedName    string
	LoginPin       string
}

// DisplayName is the name used to greet the invitee.
func (p PendingInvite) DisplayName() string {
	if p.InvitedName != "" {
		return p.InvitedName
	}
	return p.FirstName
}
