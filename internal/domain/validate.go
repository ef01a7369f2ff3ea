package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldErrors is a field-keyed validation error map. A non-empty map never
// reaches the network layer.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, msg := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	// Indian mobile numbers: ten digits, first digit 6-9.
	mobileRe = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	emailRe  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Registration is the pass-creation payload submitted by front-desk staff.
type Registration struct {
	VisitorName     string   `json:"visitor_name"`
	MobileNumber    string   `json:"mobile_number"`
	EmailID         string   `json:"email_id"`
	Gender          string   `json:"gender,omitempty"`
	Category        string   `json:"category"`
	PurposeOfVisit  string   `json:"purpose_of_visit"`
	WhomToMeet      string   `json:"whom_to_meet"`
	ComingFrom      string   `json:"coming_from,omitempty"`
	BelongingsTools string   `json:"belongings_tools,omitempty"`
	SecurityNotes   string   `json:"security_notes,omitempty"`
	VehicleType     string   `json:"vehicle_type,omitempty"`
	VehicleNumber   string   `json:"vehicle_number,omitempty"`
	VisitingDate    string   `json:"visiting_date"`
	VisitingTime    string   `json:"visiting_time,omitempty"`
	AllowingHours   int      `json:"allowing_hours,omitempty"`
	PassType        PassType `json:"pass_type"`
	ValidUntil      string   `json:"valid_until,omitempty"`
	RecurringDays   []string `json:"recurring_days,omitempty"`
}

// ValidateRegistration checks the registration form against business rules.
// Returns nil when the form is acceptable.
func ValidateRegistration(reg *Registration, now time.Time) FieldErrors {
	fe := FieldErrors{}

	if strings.TrimSpace(reg.VisitorName) == "" {
		fe["visitor_name"] = "visitor name is required"
	}
	if reg.MobileNumber == "" {
		fe["mobile_number"] = "mobile number is required"
	} else if !mobileRe.MatchString(reg.MobileNumber) {
		fe["mobile_number"] = "must be a 10-digit mobile number starting with 6-9"
	}
	if reg.EmailID == "" {
		fe["email_id"] = "email is required"
	} else if !emailRe.MatchString(reg.EmailID) {
		fe["email_id"] = "must be a valid email address"
	}
	if strings.TrimSpace(reg.Category) == "" {
		fe["category"] = "category is required"
	}
	if strings.TrimSpace(reg.PurposeOfVisit) == "" {
		fe["purpose_of_visit"] = "purpose of visit is required"
	}
	if strings.TrimSpace(reg.WhomToMeet) == "" {
		fe["whom_to_meet"] = "whom to meet is required"
	}

	if _, ok := ParsePassType(string(reg.PassType)); !ok {
		fe["pass_type"] = "must be one of ONE_TIME, RECURRING, PERMANENT"
	}

	if reg.VisitingDate == "" {
		fe["visiting_date"] = "visiting date is required"
	} else if d, err := time.ParseInLocation(DateLayout, reg.VisitingDate, time.Local); err != nil {
		fe["visiting_date"] = "must be formatted as " + DateLayout
	} else {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		if d.Before(today) {
			fe["visiting_date"] = "visiting date must not be in the past"
		}
	}

	if reg.PassType == PassRecurring {
		if len(reg.RecurringDays) == 0 {
			fe["recurring_days"] = "recurring days are required for a recurring pass"
		}
		if reg.ValidUntil == "" {
			fe["valid_until"] = "valid until is required for a recurring pass"
		} else if _, err := time.ParseInLocation(DateLayout, reg.ValidUntil, time.Local); err != nil {
			fe["valid_until"] = "must be formatted as " + DateLayout
		}
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateReschedule checks a proposed new appointment against "now", never
// against the original slot. The combined instant must be strictly future.
func ValidateReschedule(date, tod string, now time.Time) FieldErrors {
	fe := FieldErrors{}

	if date == "" {
		fe["new_date"] = "new date is required"
	} else if _, err := time.ParseInLocation(DateLayout, date, time.Local); err != nil {
		fe["new_date"] = "must be formatted as " + DateLayout
	}
	if tod == "" {
		fe["new_time"] = "new time is required"
	} else if !validTimeOfDay(tod) {
		fe["new_time"] = "must be formatted as " + TimeLayout
	}
	if len(fe) > 0 {
		return fe
	}

	if !CombineDateTime(date, tod).After(now) {
		fe["new_date"] = "rescheduled slot must be in the future"
		return fe
	}
	return nil
}

func validTimeOfDay(tod string) bool {
	if _, err := time.ParseInLocation(TimeLayoutSecs, tod, time.Local); err == nil {
		return true
	}
	_, err := time.ParseInLocation(TimeLayout, tod, time.Local)
	return err == nil
}
