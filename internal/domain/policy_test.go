package domain

import (
	"testing"
	"time"
)

func datePlusDays(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(DateLayout)
}

func actionsOf(transitions []Transition) []Action {
	out := make([]Action, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, t.Action)
	}
	return out
}

func sameActions(got, want []Action) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPermittedActionsPendingFuture(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{
		ID:           "p1",
		Status:       StatusPending,
		PassType:     PassOneTime,
		VisitingDate: datePlusDays(now, 1),
		VisitingTime: "10:00",
	}

	got := actionsOf(PermittedActions(p, now))
	want := []Action{ActionApprove, ActionReject}
	if !sameActions(got, want) {
		t.Fatalf("permitted actions = %v, want %v", got, want)
	}
}

func TestPermittedActionsPendingLapsed(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{
		ID:           "p1",
		Status:       StatusPending,
		PassType:     PassOneTime,
		VisitingDate: datePlusDays(now, -1),
		VisitingTime: "10:00",
	}

	got := actionsOf(PermittedActions(p, now))
	want := []Action{ActionReschedule}
	if !sameActions(got, want) {
		t.Fatalf("lapsed pending pass: permitted actions = %v, want %v", got, want)
	}
}

func TestPermittedActionsPendingMissingTimeUsesEndOfDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	p := &VisitorPass{
		ID:           "p1",
		Status:       StatusPending,
		VisitingDate: "2026-03-10", // today, no time: deadline 23:59:59
	}

	got := actionsOf(PermittedActions(p, now))
	want := []Action{ActionApprove, ActionReject}
	if !sameActions(got, want) {
		t.Fatalf("same-day pass without time: permitted actions = %v, want %v", got, want)
	}
}

func TestPermittedActionsApproved(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{ID: "p1", Status: StatusApproved}

	got := actionsOf(PermittedActions(p, now))
	if !sameActions(got, []Action{ActionCheckIn}) {
		t.Fatalf("approved outside: permitted actions = %v, want [checkin]", got)
	}

	p.IsInside = true
	got = actionsOf(PermittedActions(p, now))
	if !sameActions(got, []Action{ActionCheckOut}) {
		t.Fatalf("approved inside: permitted actions = %v, want [checkout]", got)
	}
}

func TestPermittedActionsCheckedIn(t *testing.T) {
	p := &VisitorPass{ID: "p1", Status: StatusCheckedIn, IsInside: true}
	got := actionsOf(PermittedActions(p, time.Now()))
	if !sameActions(got, []Action{ActionCheckOut}) {
		t.Fatalf("checked-in pass: permitted actions = %v, want [checkout]", got)
	}
}

// Policy totality: every status yields a defined, non-nil action set and
// terminal statuses yield an empty one.
func TestPermittedActionsTotality(t *testing.T) {
	now := time.Now()
	statuses := []Status{
		StatusPending, StatusApproved, StatusRejected, StatusCheckedIn,
		StatusCheckedOut, StatusExpired, StatusCancelled, StatusBlacklisted,
	}
	for _, st := range statuses {
		p := &VisitorPass{ID: "p", Status: st, VisitingDate: datePlusDays(now, 1)}
		got := PermittedActions(p, now)
		if got == nil {
			t.Fatalf("status %s: permitted actions is nil", st)
		}
		if st.Terminal() && len(got) != 0 {
			t.Fatalf("terminal status %s: permitted actions = %v, want empty", st, got)
		}
	}
}

func TestApplyActionCheckInOut(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{ID: "p1", Status: StatusApproved}

	if err := ApplyAction(p, ActionCheckIn, now); err != nil {
		t.Fatalf("ApplyAction(checkin): %v", err)
	}
	if p.Status != StatusCheckedIn || !p.IsInside || p.EntryTime == nil {
		t.Fatalf("after checkin: status=%s inside=%v entry=%v", p.Status, p.IsInside, p.EntryTime)
	}

	if err := ApplyAction(p, ActionCheckOut, now); err != nil {
		t.Fatalf("ApplyAction(checkout): %v", err)
	}
	if p.Status != StatusCheckedOut || p.IsInside || p.ExitTime == nil {
		t.Fatalf("after checkout: status=%s inside=%v exit=%v", p.Status, p.IsInside, p.ExitTime)
	}
}

func TestApplyActionApproveKeepsVisitorOutside(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{ID: "p1", Status: StatusPending}

	if err := ApplyAction(p, ActionApprove, now); err != nil {
		t.Fatalf("ApplyAction(approve): %v", err)
	}
	if p.Status != StatusApproved || p.IsInside || p.ApprovedTime == nil {
		t.Fatalf("after approve: status=%s inside=%v approved=%v", p.Status, p.IsInside, p.ApprovedTime)
	}
}

func TestApplyReschedulePostcondition(t *testing.T) {
	now := time.Now()
	p := &VisitorPass{
		ID:           "p1",
		Status:       StatusRejected,
		VisitingDate: datePlusDays(now, -3),
		VisitingTime: "09:00",
	}

	newDate := datePlusDays(now, 2)
	ApplyReschedule(p, newDate, "14:30", now)

	if p.Status != StatusPending {
		t.Fatalf("after reschedule: status = %s, want PENDING", p.Status)
	}
	if p.VisitingDate != newDate || p.VisitingTime != "14:30" {
		t.Fatalf("after reschedule: slot = %s %s, want %s 14:30", p.VisitingDate, p.VisitingTime, newDate)
	}
	if !p.Deadline().After(now) {
		t.Fatalf("rescheduled deadline %v is not in the future", p.Deadline())
	}
}
