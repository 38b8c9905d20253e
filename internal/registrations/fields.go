package registrations

import (
	"sort"

	"github.com/confreg/backend/internal/validate"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindFlag
)

// field maps one writable JSON attribute onto its column.
type field struct {
	JSON          string
	Column        string
	Kind          fieldKind
	Required      bool
	Email         bool
	Phone         bool
	OrganizerOnly bool
}

var writableFields = []field{
	{JSON: "email", Column: "email", Required: true, Email: true},
	{JSON: "firstName", Column: "first_name"},
	{JSON: "lastName", Column: "last_name", Required: true},
	{JSON: "organization", Column: "organization"},
	{JSON: "jobTitle", Column: "job_title"},
	{JSON: "phone", Column: "phone", Phone: true},
	{JSON: "lunchChoice", Column: "lunch_choice"},
	{JSON: "dietaryNotes", Column: "dietary_notes"},
	{JSON: "isAttendee", Column: "is_attendee", Kind: kindFlag},
	{JSON: "isOrganizer", Column: "is_organizer", Kind: kindFlag, OrganizerOnly: true},
	{JSON: "isPresenter", Column: "is_presenter", Kind: kindFlag},
	{JSON: "isMonitor", Column: "is_monitor", Kind: kindFlag, OrganizerOnly: true},
	{JSON: "isSponsor", Column: "is_sponsor", Kind: kindFlag, OrganizerOnly: true},
	{JSON: "hasProxy", Column: "has_proxy", Kind: kindFlag},
	{JSON: "proxyName", Column: "proxy_name"},
	{JSON: "proxyPhone", Column: "proxy_phone", Phone: true},
	{JSON: "proxyEmail", Column: "proxy_email", Required: true, Email: true},
	{JSON: "attendInPerson", Column: "attend_in_person", Kind: kindFlag},
	{JSON: "attendVirtual", Column: "attend_virtual", Kind: kindFlag},
	{JSON: "isCancelled", Column: "is_cancelled", Kind: kindFlag},
	{JSON: "cancellationReason", Column: "cancellation_reason"},
	{JSON: "question1", Column: "question1", Required: true},
	{JSON: "question2", Column: "question2", Required: true},
	{JSON: "presenterBio", Column: "presenter_bio"},
	{JSON: "session1Title", Column: "session1_title"},
	{JSON: "session1Description", Column: "session1_description"},
	{JSON: "session2Title", Column: "session2_title"},
	{JSON: "session2Description", Column: "session2_description"},
}

var (
	fieldsByJSON   = map[string]field{}
	requiredFields []string
)

func init() {
	for _, f := range writableFields {
		fieldsByJSON[f.JSON] = f
		if f.Required {
			requiredFields = append(requiredFields, f.JSON)
		}
	}
}

// assignment is one column value destined for an INSERT or UPDATE.
type assignment struct {
	Column string
	Value  any
}

// Input is a decoded, type-checked registration payload. Only keys the caller sent are present.
type Input struct {
	Text  map[string]string
	Flags map[string]bool
}

// ParseInput type-checks a JSON object against the writable field table.
// Server-managed attributes (id, timestamps, loginPin, rsvpStatus, invitedName, presenterPhotoPath)
// and unknown keys are ignored. Values of the wrong type are reported as invalid.
func ParseInput(raw map[string]any) (Input, error) {
	in := Input{Text: map[string]string{}, Flags: map[string]bool{}}
	var invalid []string
	for key, v := range raw {
		f, ok := fieldsByJSON[key]
		if !ok {
			continue
		}
		switch f.Kind {
		case kindFlag:
			b, ok := validate.Bool(v)
			if !ok {
				invalid = append(invalid, key)
				continue
			}
			in.Flags[key] = b
		default:
			s, ok := validate.String(v)
			if !ok {
				invalid = append(invalid, key)
				continue
			}
			if f.Email {
				s = validate.NormalizeEmail(s)
			}
			in.Text[key] = s
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return in, &FieldError{Invalid: invalid}
	}
	return in, nil
}

// invalidFormats returns present fields whose email or phone format is wrong, in table order.
// Blank values are left to the required-field check.
func (in Input) invalidFormats() []string {
	var invalid []string
	for _, f := range writableFields {
		v, ok := in.Text[f.JSON]
		if !ok || v == "" {
			continue
		}
		if (f.Email && !validate.IsEmail(v)) || (f.Phone && !validate.IsPhone(v)) {
			invalid = append(invalid, f.JSON)
		}
	}
	return invalid
}

// privileged returns the organizer-only fields that in would change relative to current.
// A nil current means a new registration, where only true values count as a change.
func (in Input) privileged(current map[string]bool) []string {
	var out []string
	for _, f := range writableFields {
		if !f.OrganizerOnly {
			continue
		}
		v, ok := in.Flags[f.JSON]
		if !ok || v == current[f.JSON] {
			continue
		}
		out = append(out, f.JSON)
	}
	return out
}

// assignments lists the column values for the fields present, in table order.
func (in Input) assignments() []assignment {
	var out []assignment
	for _, f := range writableFields {
		if f.Kind == kindFlag {
			if v, ok := in.Flags[f.JSON]; ok {
				out = append(out, assignment{Column: f.Column, Value: v})
			}
			continue
		}
		if v, ok := in.Text[f.JSON]; ok {
			out = append(out, assignment{Column: f.Column, Value: v})
		}
	}
	return out
}
