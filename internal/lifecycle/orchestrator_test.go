package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/internal/gateway"
	"github.com/securelane/gatepass/internal/notify"
	"github.com/securelane/gatepass/internal/store"
)

type mockGateway struct {
	mu         sync.Mutex
	passes     []domain.VisitorPass
	recurring  []domain.VisitorPass
	categories []domain.Category

	actionErr error
	counts    map[string]int
	calls     map[string]int
	lastQuery gateway.ListQuery

	// When set, action calls block here until the channel is closed.
	gate    chan struct{}
	started chan struct{}
}

func newMockGateway() *mockGateway {
	return &mockGateway{calls: make(map[string]int)}
}

func (m *mockGateway) record(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *mockGateway) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockGateway) ListPasses(_ context.Context, q gateway.ListQuery) ([]domain.VisitorPass, error) {
	m.record("ListPasses")
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.VisitorPass(nil), m.passes...), nil
}

func (m *mockGateway) ListRecurringPasses(_ context.Context, q gateway.ListQuery) ([]domain.VisitorPass, error) {
	m.record("ListRecurringPasses")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return append([]domain.VisitorPass(nil), m.recurring...), nil
}

func (m *mockGateway) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.record("ListCategories")
	return append([]domain.Category(nil), m.categories...), nil
}

func (m *mockGateway) CreatePass(_ context.Context, reg *domain.Registration) (*domain.VisitorPass, error) {
	m.record("CreatePass")
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	p := domain.VisitorPass{
		ID: "created-1", VisitorName: reg.VisitorName, Status: domain.StatusPending,
		PassType: reg.PassType, VisitingDate: reg.VisitingDate,
	}
	m.mu.Lock()
	m.passes = append([]domain.VisitorPass{p}, m.passes...)
	m.mu.Unlock()
	return &p, nil
}

func (m *mockGateway) CreateRecurringPass(_ context.Context, reg *domain.Registration) (*domain.VisitorPass, error) {
	m.record("CreateRecurringPass")
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	p := domain.VisitorPass{
		ID: "created-r1", VisitorName: reg.VisitorName, Status: domain.StatusPending,
		PassType: domain.PassRecurring, VisitingDate: reg.VisitingDate,
	}
	m.mu.Lock()
	m.recurring = append([]domain.VisitorPass{p}, m.recurring...)
	m.mu.Unlock()
	return &p, nil
}

// act simulates the upstream applying the transition to its own state.
func (m *mockGateway) act(name, id string, apply func(*domain.VisitorPass)) error {
	m.record(name)
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	if m.actionErr != nil {
		return m.actionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, coll := range [][]domain.VisitorPass{m.passes, m.recurring} {
		for i := range coll {
			if coll[i].ID == id {
				apply(&coll[i])
			}
		}
	}
	return nil
}

func (m *mockGateway) Approve(_ context.Context, id string) error {
	return m.act("Approve", id, func(p *domain.VisitorPass) { p.Status = domain.StatusApproved })
}

func (m *mockGateway) Reject(_ context.Context, id string) error {
	return m.act("Reject", id, func(p *domain.VisitorPass) { p.Status = domain.StatusRejected })
}

func (m *mockGateway) CheckIn(_ context.Context, id string) error {
	return m.act("CheckIn", id, func(p *domain.VisitorPass) {
		p.Status = domain.StatusCheckedIn
		p.IsInside = true
	})
}

func (m *mockGateway) CheckOut(_ context.Context, id string) error {
	return m.act("CheckOut", id, func(p *domain.VisitorPass) {
		p.Status = domain.StatusCheckedOut
		p.IsInside = false
	})
}

func (m *mockGateway) Reschedule(_ context.Context, id, newDate, newTime string) error {
	return m.act("Reschedule", id, func(p *domain.VisitorPass) {
		p.Status = domain.StatusPending
		p.VisitingDate = newDate
		p.VisitingTime = newTime
	})
}

func (m *mockGateway) CountByFilter(_ context.Context, q gateway.ListQuery) (int, error) {
	m.record("CountByFilter")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[q.PassType], nil
}

type recordingSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *recordingSink) Notify(_ context.Context, msg notify.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *recordingSink) last() (notify.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return notify.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func futureDate() string {
	return time.Now().AddDate(0, 0, 7).Format(domain.DateLayout)
}

func samplePasses() []domain.VisitorPass {
	return []domain.VisitorPass{
		{ID: "p1", VisitorName: "Asha Verma", Status: domain.StatusPending,
			PassType: domain.PassOneTime, VisitingDate: futureDate(), VisitingTime: "10:00"},
		{ID: "p2", VisitorName: "Ravi Kumar", Status: domain.StatusApproved,
			PassType: domain.PassPermanent, VisitingDate: futureDate()},
	}
}

func newTestOrchestrator(t *testing.T, gw *mockGateway, refreshDelay time.Duration) (*Orchestrator, *store.Store, *recordingSink) {
	t.Helper()
	st := store.New()
	sink := &recordingSink{}
	o := New(st, gw, sink, nil, nil, refreshDelay)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o, st, sink
}

func TestStartLoadsWorkingSet(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	gw.recurring = []domain.VisitorPass{
		{ID: "r1", VisitorName: "Meera Joshi", Status: domain.StatusApproved,
			PassType: domain.PassRecurring, VisitingDate: futureDate()},
	}
	gw.categories = []domain.Category{{ID: "1", Name: "Vendor", Value: "vendor"}}

	o, st, _ := newTestOrchestrator(t, gw, 0)

	if got := len(o.Categories()); got != 1 {
		t.Errorf("categories = %d, want 1", got)
	}
	if got := len(st.Passes()); got != 2 {
		t.Errorf("default collection = %d passes, want 2", got)
	}
	if got := len(st.Recurring()); got != 1 {
		t.Errorf("recurring collection = %d passes, want 1", got)
	}
	if got := len(o.VisiblePasses()); got != 2 {
		t.Errorf("visible = %d, want 2 (default view)", got)
	}
}

func TestStartDropsMisfiledPasses(t *testing.T) {
	gw := newMockGateway()
	gw.passes = append(samplePasses(), domain.VisitorPass{
		ID: "r-misfiled", PassType: domain.PassRecurring, Status: domain.StatusPending,
	})

	_, st, _ := newTestOrchestrator(t, gw, 0)

	for _, p := range st.Passes() {
		if p.IsRecurring() {
			t.Fatalf("recurring pass %s leaked into the default collection", p.ID)
		}
	}
}

func TestApproveReconcilesWithServerState(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, st, sink := newTestOrchestrator(t, gw, 0)

	if err := o.Approve(context.Background(), "p1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	p, ok := st.Get("p1")
	if !ok {
		t.Fatal("pass p1 vanished")
	}
	if p.Status != domain.StatusApproved {
		t.Errorf("status = %s, want APPROVED", p.Status)
	}
	if gw.callCount("ListPasses") != 2 { // initial load + post-action refetch
		t.Errorf("ListPasses called %d times, want 2", gw.callCount("ListPasses"))
	}

	msg, ok := sink.last()
	if !ok || msg.Level != notify.LevelSuccess {
		t.Fatalf("last notification = %+v", msg)
	}
	if !strings.Contains(msg.Text, "Asha Verma") {
		t.Errorf("notification text %q does not name the visitor", msg.Text)
	}
	if _, success := st.Messages(); success == "" {
		t.Error("store last-success message not set")
	}
}

func TestCheckInThenCheckOut(t *testing.T) {
	gw := newMockGateway()
	gw.passes = []domain.VisitorPass{
		{ID: "p1", VisitorName: "Asha Verma", Status: domain.StatusApproved,
			PassType: domain.PassOneTime, VisitingDate: futureDate(), VisitingTime: "10:00"},
	}
	o, st, _ := newTestOrchestrator(t, gw, 0)

	if err := o.CheckIn(context.Background(), "p1"); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	p, _ := st.Get("p1")
	if p.Status != domain.StatusCheckedIn || !p.IsInside {
		t.Fatalf("after check-in: status=%s inside=%v", p.Status, p.IsInside)
	}

	if err := o.CheckOut(context.Background(), "p1"); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	p, _ = st.Get("p1")
	if p.Status != domain.StatusCheckedOut || p.IsInside {
		t.Fatalf("after check-out: status=%s inside=%v", p.Status, p.IsInside)
	}
}

func TestActionFailureRollsBackAndNamesAction(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, st, sink := newTestOrchestrator(t, gw, 0)
	gw.actionErr = &gateway.APIError{StatusCode: 502, Message: "gate offline"}

	listsBefore := gw.callCount("ListPasses")
	err := o.Approve(context.Background(), "p1")
	if err == nil {
		t.Fatal("Approve succeeded despite gateway failure")
	}

	// The optimistic mutation must be discarded by the rollback refetch.
	p, _ := st.Get("p1")
	if p.Status != domain.StatusPending {
		t.Errorf("status after rollback = %s, want PENDING", p.Status)
	}
	if gw.callCount("ListPasses") != listsBefore+1 {
		t.Errorf("rollback refetch missing: ListPasses %d -> %d", listsBefore, gw.callCount("ListPasses"))
	}

	msg, ok := sink.last()
	if !ok || msg.Level != notify.LevelError {
		t.Fatalf("last notification = %+v", msg)
	}
	if !strings.Contains(msg.Text, "approve") || !strings.Contains(msg.Text, "gate offline") {
		t.Errorf("error text %q must name the action and the server message", msg.Text)
	}
	if lastErr, _ := st.Messages(); lastErr == "" {
		t.Error("store last-error message not set")
	}
}

func TestActionFailureSchedulesDelayedRefresh(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 10*time.Millisecond)
	gw.actionErr = errors.New("connection reset")

	if err := o.Approve(context.Background(), "p1"); err == nil {
		t.Fatal("Approve succeeded despite transport failure")
	}
	after := gw.callCount("ListPasses")

	deadline := time.Now().Add(2 * time.Second)
	for gw.callCount("ListPasses") <= after {
		if time.Now().After(deadline) {
			t.Fatal("delayed forced refresh never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopCancelsDelayedRefresh(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 50*time.Millisecond)
	gw.actionErr = errors.New("connection reset")

	if err := o.Approve(context.Background(), "p1"); err == nil {
		t.Fatal("Approve succeeded despite transport failure")
	}
	o.Stop()
	after := gw.callCount("ListPasses")

	time.Sleep(150 * time.Millisecond)
	if got := gw.callCount("ListPasses"); got != after {
		t.Fatalf("refresh fired after Stop: ListPasses %d -> %d", after, got)
	}
}

func TestConcurrentDuplicateActionRejected(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	gw.gate = make(chan struct{})
	gw.started = make(chan struct{}, 1)
	o, _, _ := newTestOrchestrator(t, gw, 0)

	done := make(chan error, 1)
	go func() { done <- o.Approve(context.Background(), "p1") }()
	<-gw.started // first approve is now inside the gateway call

	err := o.Approve(context.Background(), "p1")
	if err == nil || !strings.Contains(err.Error(), "in flight") {
		t.Fatalf("duplicate approve err = %v, want in-flight rejection", err)
	}

	close(gw.gate)
	if err := <-done; err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if gw.callCount("Approve") != 1 {
		t.Fatalf("Approve reached the gateway %d times, want 1", gw.callCount("Approve"))
	}
}

func TestSubmitRegistrationValidationShortCircuits(t *testing.T) {
	gw := newMockGateway()
	o, _, _ := newTestOrchestrator(t, gw, 0)

	reg := &domain.Registration{
		VisitorName:    "Meera Joshi",
		MobileNumber:   "9876543210",
		EmailID:        "meera@example.com",
		Category:       "vendor",
		PurposeOfVisit: "Maintenance",
		WhomToMeet:     "Facilities",
		VisitingDate:   futureDate(),
		PassType:       domain.PassRecurring,
		ValidUntil:     futureDate(),
		// RecurringDays deliberately missing.
	}

	_, err := o.SubmitRegistration(context.Background(), reg)
	var fe domain.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
	if _, ok := fe["recurring_days"]; !ok {
		t.Fatalf("field errors = %v, want recurring_days entry", fe)
	}
	if gw.callCount("CreatePass")+gw.callCount("CreateRecurringPass") != 0 {
		t.Fatal("validation failure reached the gateway")
	}
}

func TestSubmitRegistrationDispatchesByPassType(t *testing.T) {
	gw := newMockGateway()
	o, st, _ := newTestOrchestrator(t, gw, 0)

	reg := &domain.Registration{
		VisitorName:    "Meera Joshi",
		MobileNumber:   "9876543210",
		EmailID:        "meera@example.com",
		Category:       "vendor",
		PurposeOfVisit: "Maintenance",
		WhomToMeet:     "Facilities",
		VisitingDate:   futureDate(),
		PassType:       domain.PassRecurring,
		ValidUntil:     futureDate(),
		RecurringDays:  []string{"MON", "WED"},
	}

	created, err := o.SubmitRegistration(context.Background(), reg)
	if err != nil {
		t.Fatalf("SubmitRegistration: %v", err)
	}
	if gw.callCount("CreateRecurringPass") != 1 || gw.callCount("CreatePass") != 0 {
		t.Fatalf("recurring registration hit the wrong endpoint: create=%d recurring=%d",
			gw.callCount("CreatePass"), gw.callCount("CreateRecurringPass"))
	}
	if _, ok := st.Get(created.ID); !ok {
		t.Fatal("created pass not in the working set")
	}
	for _, p := range st.Passes() {
		if p.ID == created.ID {
			t.Fatal("recurring pass landed in the default collection")
		}
	}
}

func TestRescheduleForcesPendingAndNewSlot(t *testing.T) {
	gw := newMockGateway()
	gw.passes = []domain.VisitorPass{
		{ID: "p1", VisitorName: "Asha Verma", Status: domain.StatusRejected,
			PassType: domain.PassOneTime, VisitingDate: "2026-01-05", VisitingTime: "09:00"},
	}
	o, st, _ := newTestOrchestrator(t, gw, 0)

	newDate := futureDate()
	if err := o.Reschedule(context.Background(), "p1", newDate, "11:30"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	p, _ := st.Get("p1")
	if p.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", p.Status)
	}
	if p.VisitingDate != newDate || p.VisitingTime != "11:30" {
		t.Errorf("slot = %s %s, want %s 11:30", p.VisitingDate, p.VisitingTime, newDate)
	}
}

func TestRescheduleRejectsPastSlot(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 0)

	yesterday := time.Now().AddDate(0, 0, -1).Format(domain.DateLayout)
	err := o.Reschedule(context.Background(), "p1", yesterday, "10:00")
	var fe domain.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
	if gw.callCount("Reschedule") != 0 {
		t.Fatal("invalid reschedule reached the gateway")
	}
}

func TestVisibleHonorsFilters(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 0)

	o.SetFilters(context.Background(), filter.Filters{Status: string(domain.StatusPending)})
	visible := o.VisiblePasses()
	if len(visible) != 1 || visible[0].ID != "p1" {
		t.Fatalf("visible = %+v, want only p1", visible)
	}
}

func TestRecurringViewRefetchesOnFilterChange(t *testing.T) {
	gw := newMockGateway()
	gw.recurring = []domain.VisitorPass{
		{ID: "r1", VisitorName: "Meera Joshi", Status: domain.StatusApproved,
			PassType: domain.PassRecurring, VisitingDate: futureDate()},
	}
	o, _, _ := newTestOrchestrator(t, gw, 0)
	o.SetView(context.Background(), ViewRecurring)

	before := gw.callCount("ListRecurringPasses")
	o.SetFilters(context.Background(), filter.Filters{Search: "meera"})

	if gw.callCount("ListRecurringPasses") != before+1 {
		t.Fatal("filter change in the recurring view did not refetch")
	}
	gw.mu.Lock()
	q := gw.lastQuery
	gw.mu.Unlock()
	if q.Search != "meera" {
		t.Fatalf("refetch query search = %q, want meera", q.Search)
	}
}

func TestEnteringRecurringViewRefetchesWithFilters(t *testing.T) {
	gw := newMockGateway()
	gw.recurring = []domain.VisitorPass{
		{ID: "r1", VisitorName: "Meera Joshi", Status: domain.StatusApproved,
			PassType: domain.PassRecurring, VisitingDate: futureDate()},
	}
	o, _, _ := newTestOrchestrator(t, gw, 0)

	// Filter set while still in the default view: no server round trip yet.
	before := gw.callCount("ListRecurringPasses")
	o.SetFilters(context.Background(), filter.Filters{Search: "meera"})
	if gw.callCount("ListRecurringPasses") != before {
		t.Fatal("filter change in the default view refetched the recurring collection")
	}

	o.SetView(context.Background(), ViewRecurring)
	if gw.callCount("ListRecurringPasses") != before+1 {
		t.Fatal("entering the recurring view did not refetch")
	}
	gw.mu.Lock()
	q := gw.lastQuery
	gw.mu.Unlock()
	if q.Search != "meera" {
		t.Fatalf("refetch query search = %q, want meera", q.Search)
	}
}

func TestRecurringCountsComeFromGateway(t *testing.T) {
	gw := newMockGateway()
	gw.counts = map[string]int{"": 12, string(domain.PassRecurring): 12}
	o, _, _ := newTestOrchestrator(t, gw, 0)
	o.SetView(context.Background(), ViewRecurring)

	c, err := o.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Total != 12 || c.Recurring != 12 {
		t.Fatalf("counts = %+v", c)
	}
	if c.Approved != 0 || c.Pending != 0 || c.Rejected != 0 {
		t.Fatalf("status counts must stay zero in the recurring view: %+v", c)
	}
	// One totals query plus one per pass type.
	if gw.callCount("CountByFilter") != 4 {
		t.Fatalf("CountByFilter called %d times, want 4", gw.callCount("CountByFilter"))
	}
}

func TestDefaultViewCountsAreMaterialized(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 0)

	c, err := o.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Total != 2 || c.Pending != 1 || c.Approved != 1 {
		t.Fatalf("counts = %+v", c)
	}
	if gw.callCount("CountByFilter") != 0 {
		t.Fatal("default view must not query the gateway for counts")
	}
}

func TestPermittedActionsForStoredPass(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, _, _ := newTestOrchestrator(t, gw, 0)

	trs, err := o.PermittedActions("p1")
	if err != nil {
		t.Fatalf("PermittedActions: %v", err)
	}
	want := map[domain.Action]bool{domain.ActionApprove: true, domain.ActionReject: true}
	if len(trs) != len(want) {
		t.Fatalf("transitions = %+v", trs)
	}
	for _, tr := range trs {
		if !want[tr.Action] {
			t.Fatalf("unexpected action %s for a pending future pass", tr.Action)
		}
	}

	if _, err := o.PermittedActions("nope"); err == nil {
		t.Fatal("unknown pass id must error")
	}
}

func TestRepeatedRefreshConverges(t *testing.T) {
	gw := newMockGateway()
	gw.passes = samplePasses()
	o, st, _ := newTestOrchestrator(t, gw, 0)

	first := fmt.Sprintf("%+v", st.Passes())
	for i := 0; i < 3; i++ {
		if err := o.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if got := fmt.Sprintf("%+v", st.Passes()); got != first {
		t.Fatalf("refresh is not idempotent:\nfirst: %s\nafter: %s", first, got)
	}
}
