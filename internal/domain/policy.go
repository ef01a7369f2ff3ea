package domain

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionCheckIn    Action = "checkin"
	ActionCheckOut   Action = "checkout"
	ActionReschedule Action = "reschedule"
)

// Transition pairs a permitted action with the status it produces.
type Transition struct {
	Action Action `json:"action"`
	Next   Status `json:"next_status"`
}

// PermittedActions computes the ordered action set for a pass at the given
// instant. Terminal statuses return an empty (non-nil) slice so callers can
// range over the result without a nil check.
func PermittedActions(p *VisitorPass, now time.Time) []Transition {
	switch p.Status {
	case StatusPending:
		if p.Deadline().Before(now) {
			// A lapsed appointment cannot be approved into a past slot.
			return []Transition{{Action: ActionReschedule, Next: StatusPending}}
		}
		return []Transition{
			{Action: ActionApprove, Next: StatusApproved},
			{Action: ActionReject, Next: StatusRejected},
		}
	case StatusApproved:
		if p.IsInside {
			return []Transition{{Action: ActionCheckOut, Next: StatusCheckedOut}}
		}
		return []Transition{{Action: ActionCheckIn, Next: StatusCheckedIn}}
	case StatusCheckedIn:
		return []Transition{{Action: ActionCheckOut, Next: StatusCheckedOut}}
	default:
		return []Transition{}
	}
}

// ActionPermitted reports whether the action is currently in the permitted set.
func ActionPermitted(p *VisitorPass, a Action, now time.Time) bool {
	for _, t := range PermittedActions(p, now) {
		if t.Action == a {
			return true
		}
	}
	return false
}

// ApplyAction mutates the pass with the optimistic result of an action.
// Status and is_inside move together; timestamps record the instant applied.
func ApplyAction(p *VisitorPass, a Action, now time.Time) error {
	switch a {
	case ActionApprove:
		p.Status = StatusApproved
		ts := now
		p.ApprovedTime = &ts
	case ActionReject:
		p.Status = StatusRejected
		p.IsInside = false
		ts := now
		p.RejectedTime = &ts
	case ActionCheckIn:
		p.Status = StatusCheckedIn
		p.IsInside = true
		ts := now
		p.EntryTime = &ts
	case ActionCheckOut:
		p.Status = StatusCheckedOut
		p.IsInside = false
		ts := now
		p.ExitTime = &ts
	default:
		return fmt.Errorf("action %q has no direct transition", a)
	}
	p.UpdatedAt = now
	return nil
}

// ApplyReschedule moves the appointment and forces the pass back to PENDING
// so it re-enters policy evaluation. Inputs must already be validated.
func ApplyReschedule(p *VisitorPass, date, tod string, now time.Time) {
	p.VisitingDate = date
	p.VisitingTime = tod
	p.Status = StatusPending
	p.IsInside = false
	p.UpdatedAt = now
}
