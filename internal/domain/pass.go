package domain

import "time"

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusCheckedIn   Status = "CHECKED_IN"
	StatusCheckedOut  Status = "CHECKED_OUT"
	StatusExpired     Status = "EXPIRED"
	StatusCancelled   Status = "CANCELLED"
	StatusBlacklisted Status = "BLACKLISTED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected, StatusCheckedIn,
		StatusCheckedOut, StatusExpired, StatusCancelled, StatusBlacklisted:
		return Status(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further lifecycle action applies.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCheckedOut, StatusExpired, StatusCancelled, StatusBlacklisted:
		return true
	default:
		return false
	}
}

type PassType string

const (
	PassOneTime   PassType = "ONE_TIME"
	PassRecurring PassType = "RECURRING"
	PassPermanent PassType = "PERMANENT"
)

func ParsePassType(s string) (PassType, bool) {
	switch PassType(s) {
	case PassOneTime, PassRecurring, PassPermanent:
		return PassType(s), true
	default:
		return "", false
	}
}

// Wire layouts used by the upstream pass API for calendar fields.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	TimeLayoutSecs = "15:04:05"
)

type VisitorPass struct {
	ID     string `json:"id"`
	PassID string `json:"pass_id,omitempty"`

	VisitorName     string `json:"visitor_name"`
	MobileNumber    string `json:"mobile_number"`
	EmailID         string `json:"email_id"`
	Gender          string `json:"gender,omitempty"`
	Category        string `json:"category"`
	PurposeOfVisit  string `json:"purpose_of_visit"`
	WhomToMeet      string `json:"whom_to_meet"`
	ComingFrom      string `json:"coming_from,omitempty"`
	BelongingsTools string `json:"belongings_tools,omitempty"`
	SecurityNotes   string `json:"security_notes,omitempty"`
	VehicleType     string `json:"vehicle_type,omitempty"`
	VehicleNumber   string `json:"vehicle_number,omitempty"`

	VisitingDate  string   `json:"visiting_date"`
	VisitingTime  string   `json:"visiting_time,omitempty"`
	AllowingHours int      `json:"allowing_hours,omitempty"`
	ValidUntil    string   `json:"valid_until,omitempty"`
	RecurringDays []string `json:"recurring_days,omitempty"`

	Status   Status   `json:"status"`
	PassType PassType `json:"pass_type"`
	IsInside bool     `json:"is_inside"`

	EntryTime    *time.Time `json:"entry_time,omitempty"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	ApprovedTime *time.Time `json:"approved_time,omitempty"`
	RejectedTime *time.Time `json:"rejected_time,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IsRecurring decides which of the two in-memory collections owns the pass.
func (p *VisitorPass) IsRecurring() bool {
	return p.PassType == PassRecurring
}

// Deadline is the instant the appointment lapses. A missing or malformed
// visiting time pushes the deadline to the end of the visiting day.
func (p *VisitorPass) Deadline() time.Time {
	return CombineDateTime(p.VisitingDate, p.VisitingTime)
}

// CombineDateTime merges a wire date and time into one instant in local time.
// Zero time is returned when the date itself does not parse.
func CombineDateTime(date, tod string) time.Time {
	d, err := time.ParseInLocation(DateLayout, date, time.Local)
	if err != nil {
		return time.Time{}
	}
	t, err := time.ParseInLocation(TimeLayoutSecs, tod, time.Local)
	if err != nil {
		t, err = time.ParseInLocation(TimeLayout, tod, time.Local)
	}
	if err != nil {
		// end of day
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.Local)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}

// Category is static reference data used for labeling and filtering only.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}
