package access

import "github.com/wellness/booking/internal/domain/booking"

// DraftMode selects which booking form variant a session gets.
type DraftMode string

const (
	ModeGuest         DraftMode = "guest"
	ModeAuthenticated DraftMode = "authenticated"
	ModeAdminEdit     DraftMode = "admin-edit"
)

// Draft field names shared by the wizard and its validation errors.
const (
	FieldService     = "service_id"
	FieldSpecialist  = "specialist_id"
	FieldStartAt     = "start_at"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldClientNotes = "client_notes"
	FieldUser        = "user_id"
	FieldStatus      = "status"
	FieldAdminNotes  = "admin_notes"
)

// FieldRule describes one form field for a mode.
type FieldRule struct {
	Visible  bool `json:"visible"`
	Editable bool `json:"editable"`
	Required bool `json:"required"`
}

// ModeFor picks the form variant for a session. Admins get the editing
// variant, other signed-in users the pre-filled one.
func ModeFor(s booking.Session) DraftMode {
	switch {
	case s.Role == booking.RoleAdmin:
		return ModeAdminEdit
	case s.Authenticated():
		return ModeAuthenticated
	}
	return ModeGuest
}

// DraftFields returns the form rules for mode. Unknown modes fall back to
// the guest rules.
func DraftFields(mode DraftMode) map[string]FieldRule {
	editable := FieldRule{Visible: true, Editable: true}
	required := FieldRule{Visible: true, Editable: true, Required: true}
	// Pre-filled from the session; a session without profile claims leaves
	// them blank and the booking is linked through user_id instead.
	readOnly := FieldRule{Visible: true}
	hidden := FieldRule{}

	rules := map[string]FieldRule{
		FieldService:     required,
		FieldSpecialist:  editable,
		FieldStartAt:     required,
		FieldClientNotes: editable,
		FieldFirstName:   required,
		FieldLastName:    editable,
		FieldEmail:       required,
		FieldPhone:       editable,
		FieldUser:        hidden,
		FieldStatus:      hidden,
		FieldAdminNotes:  hidden,
	}

	switch mode {
	case ModeAuthenticated:
		rules[FieldFirstName] = readOnly
		rules[FieldLastName] = FieldRule{Visible: true}
		rules[FieldEmail] = readOnly
		rules[FieldPhone] = FieldRule{Visible: true}
	case ModeAdminEdit:
		rules[FieldUser] = editable
		rules[FieldStatus] = editable
		rules[FieldAdminNotes] = editable
	}
	return rules
}
