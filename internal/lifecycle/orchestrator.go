// Package lifecycle coordinates visitor-pass intents: it is the only mutator
// of the pass store and the sole caller of the pass gateway. Every write
// applies an optimistic local mutation first, then reconciles against the
// gateway's authoritative state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/internal/gateway"
	"github.com/securelane/gatepass/internal/notify"
	"github.com/securelane/gatepass/internal/store"
	"github.com/securelane/gatepass/pkg/events"
	"github.com/securelane/gatepass/pkg/logger"
)

// Gateway is the remote system of record for passes.
type Gateway interface {
	ListPasses(ctx context.Context, q gateway.ListQuery) ([]domain.VisitorPass, error)
	ListRecurringPasses(ctx context.Context, q gateway.ListQuery) ([]domain.VisitorPass, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreatePass(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error)
	CreateRecurringPass(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	CheckIn(ctx context.Context, id string) error
	CheckOut(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id, newDate, newTime string) error
	CountByFilter(ctx context.Context, q gateway.ListQuery) (int, error)
}

// View selects the active working set.
type View string

const (
	ViewDefault   View = "default"   // one-time and permanent passes, fully materialized
	ViewRecurring View = "recurring" // recurring passes, counts come from the gateway
)

type Orchestrator struct {
	store  *store.Store
	gw     Gateway
	sink   notify.Sink
	bus    events.Publisher
	counts *CountCache

	refreshDelay time.Duration

	mu         sync.Mutex
	filters    filter.Filters
	view       View
	categories []domain.Category
	timers     map[*time.Timer]struct{}
	stopped    bool
}

func New(st *store.Store, gw Gateway, sink notify.Sink, bus events.Publisher, counts *CountCache, refreshDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		store:        st,
		gw:           gw,
		sink:         sink,
		bus:          bus,
		counts:       counts,
		refreshDelay: refreshDelay,
		filters:      filter.Filters{}.Normalized(),
		view:         ViewDefault,
		timers:       make(map[*time.Timer]struct{}),
	}
}

// Start performs the initial load of both collections and the category
// reference data.
func (o *Orchestrator) Start(ctx context.Context) error {
	cats, err := o.gw.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	o.mu.Lock()
	o.categories = cats
	o.mu.Unlock()

	if err := o.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

// Stop cancels every pending delayed refresh; the orchestrator accepts no
// further timer work afterwards.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	for t := range o.timers {
		t.Stop()
		delete(o.timers, t)
	}
}

// Refresh refetches both collections from the gateway.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	err := errors.Join(o.refetch(ctx, false), o.refetch(ctx, true))
	o.recomputeVisible()
	return err
}

func (o *Orchestrator) SetFilters(ctx context.Context, f filter.Filters) {
	o.mu.Lock()
	o.filters = f.Normalized()
	view := o.view
	o.mu.Unlock()

	// The recurring working set is server-filtered, not fully materialized.
	if view == ViewRecurring {
		if err := o.refetch(ctx, true); err != nil {
			logger.WarnContext(ctx, "Recurring refetch after filter change failed", "error", err)
		}
	}
	o.recomputeVisible()
}

func (o *Orchestrator) Filters() filter.Filters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filters
}

func (o *Orchestrator) SetView(ctx context.Context, v View) {
	o.mu.Lock()
	o.view = v
	o.mu.Unlock()

	// The recurring collection is server-filtered, so entering that view must
	// refetch it under the active filter state.
	if v == ViewRecurring {
		if err := o.refetch(ctx, true); err != nil {
			logger.WarnContext(ctx, "Recurring refetch after view change failed", "error", err)
		}
	}
	o.recomputeVisible()
}

func (o *Orchestrator) CurrentView() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

func (o *Orchestrator) Categories() []domain.Category {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Category(nil), o.categories...)
}

func (o *Orchestrator) VisiblePasses() []domain.VisitorPass {
	return o.store.Visible()
}

// PermittedActions exposes the lifecycle policy result for one pass.
func (o *Orchestrator) PermittedActions(id string) ([]domain.Transition, error) {
	p, ok := o.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("pass %s not found", id)
	}
	return domain.PermittedActions(&p, time.Now()), nil
}

// SubmitRegistration validates the form and, when clean, dispatches to the
// create endpoint matching the pass type. Validation failures return a
// domain.FieldErrors and never touch the network.
func (o *Orchestrator) SubmitRegistration(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error) {
	if fe := domain.ValidateRegistration(reg, time.Now()); fe != nil {
		return nil, fe
	}

	var created *domain.VisitorPass
	var err error
	if reg.PassType == domain.PassRecurring {
		created, err = o.gw.CreateRecurringPass(ctx, reg)
	} else {
		created, err = o.gw.CreatePass(ctx, reg)
	}
	if err != nil {
		o.notifyError(ctx, "register", err)
		return nil, err
	}

	o.store.Prepend(*created)
	o.recomputeVisible()
	o.notifySuccess(ctx, "register", fmt.Sprintf("Pass registered for %s", created.VisitorName))
	o.publish(ctx, events.PassCreated, events.PassCreatedEvent{
		PassID:       created.ID,
		VisitorName:  created.VisitorName,
		VisitorEmail: created.EmailID,
		PassType:     string(created.PassType),
		VisitingDate: created.VisitingDate,
		VisitingTime: created.VisitingTime,
		WhomToMeet:   created.WhomToMeet,
		CreatedAt:    time.Now(),
	})

	if err := o.refetch(ctx, created.IsRecurring()); err != nil {
		logger.WarnContext(ctx, "Post-create refresh failed", "error", err, "pass_id", created.ID)
		o.scheduleRefresh()
	}
	o.recomputeVisible()
	return created, nil
}

func (o *Orchestrator) Approve(ctx context.Context, id string) error {
	return o.dispatch(ctx, id, domain.ActionApprove, o.gw.Approve)
}

func (o *Orchestrator) Reject(ctx context.Context, id string) error {
	return o.dispatch(ctx, id, domain.ActionReject, o.gw.Reject)
}

func (o *Orchestrator) CheckIn(ctx context.Context, id string) error {
	return o.dispatch(ctx, id, domain.ActionCheckIn, o.gw.CheckIn)
}

func (o *Orchestrator) CheckOut(ctx context.Context, id string) error {
	return o.dispatch(ctx, id, domain.ActionCheckOut, o.gw.CheckOut)
}

// Reschedule validates the new slot against "now", applies it optimistically
// with a forced PENDING status, then reconciles like any other write.
func (o *Orchestrator) Reschedule(ctx context.Context, id, newDate, newTime string) error {
	if fe := domain.ValidateReschedule(newDate, newTime, time.Now()); fe != nil {
		return fe
	}

	pass, ok := o.store.Get(id)
	if !ok {
		return fmt.Errorf("pass %s not found", id)
	}
	if !o.store.BeginAction(id, domain.ActionReschedule) {
		return fmt.Errorf("reschedule already in flight for pass %s", id)
	}
	defer o.store.EndAction(id, domain.ActionReschedule)

	now := time.Now()
	o.store.Update(id, func(p *domain.VisitorPass) {
		domain.ApplyReschedule(p, newDate, newTime, now)
	})
	o.recomputeVisible()

	if err := o.gw.Reschedule(ctx, id, newDate, newTime); err != nil {
		o.settleFailure(ctx, domain.ActionReschedule, pass.IsRecurring(), err)
		return err
	}

	o.notifySuccess(ctx, string(domain.ActionReschedule),
		fmt.Sprintf("Visit for %s rescheduled to %s %s", pass.VisitorName, newDate, newTime))
	o.publish(ctx, events.PassRescheduled, events.PassRescheduledEvent{
		PassID:        id,
		VisitorName:   pass.VisitorName,
		VisitorEmail:  pass.EmailID,
		NewDate:       newDate,
		NewTime:       newTime,
		RescheduledAt: now,
	})
	o.settleSuccess(ctx, domain.ActionReschedule, pass.IsRecurring())
	return nil
}

// dispatch runs one policy-guarded status action end to end: in-flight dedup,
// optimistic mutation of whichever collection holds the pass, the gateway
// call, and reconciliation.
func (o *Orchestrator) dispatch(ctx context.Context, id string, act domain.Action, call func(context.Context, string) error) error {
	pass, ok := o.store.Get(id)
	if !ok {
		return fmt.Errorf("pass %s not found", id)
	}

	now := time.Now()
	if !domain.ActionPermitted(&pass, act, now) {
		// The UI should never offer this; attempt anyway and let the
		// gateway arbitrate.
		logger.WarnContext(ctx, "Action not permitted by lifecycle policy",
			"pass_id", id, "action", act, "status", pass.Status)
	}

	if !o.store.BeginAction(id, act) {
		return fmt.Errorf("%s already in flight for pass %s", act, id)
	}
	defer o.store.EndAction(id, act)

	o.store.Update(id, func(p *domain.VisitorPass) {
		if err := domain.ApplyAction(p, act, now); err != nil {
			logger.WarnContext(ctx, "Optimistic transition skipped", "error", err)
		}
	})
	o.recomputeVisible()

	if err := call(ctx, id); err != nil {
		o.settleFailure(ctx, act, pass.IsRecurring(), err)
		return err
	}

	o.notifySuccess(ctx, string(act), actionSuccessText(act, pass.VisitorName))
	o.publishAction(ctx, act, id, &pass, now)
	o.settleSuccess(ctx, act, pass.IsRecurring())
	return nil
}

// settleSuccess refreshes the affected collection after a confirmed write.
// A failed refresh is a warning, not an action failure, but earns a delayed
// forced refresh as a safety net.
func (o *Orchestrator) settleSuccess(ctx context.Context, act domain.Action, recurring bool) {
	if err := o.refetch(ctx, recurring); err != nil {
		logger.WarnContext(ctx, "Post-action refresh failed; local state may be stale",
			"action", act, "error", err)
		o.scheduleRefresh()
	}
	o.recomputeVisible()
}

// settleFailure discards the optimistic mutation by refetching, surfaces the
// error, and still schedules a delayed refresh: a transport failure can mask
// a mutation that actually landed server-side.
func (o *Orchestrator) settleFailure(ctx context.Context, act domain.Action, recurring bool, cause error) {
	o.notifyError(ctx, string(act), cause)
	if err := o.refetch(ctx, recurring); err != nil {
		logger.ErrorContext(ctx, "Rollback refetch failed", "action", act, "error", err)
	}
	o.scheduleRefresh()
	o.recomputeVisible()
}

// refetch replaces one collection wholesale from the gateway. The default
// collection is fetched unfiltered; the recurring one carries the active
// filter state because it is server-filtered.
func (o *Orchestrator) refetch(ctx context.Context, recurring bool) error {
	if recurring {
		passes, err := o.gw.ListRecurringPasses(ctx, gateway.QueryFromFilters(o.Filters()))
		if err != nil {
			return fmt.Errorf("failed to refetch recurring passes: %w", err)
		}
		o.store.ReplaceRecurring(passes)
		return nil
	}

	passes, err := o.gw.ListPasses(ctx, gateway.ListQuery{})
	if err != nil {
		return fmt.Errorf("failed to refetch passes: %w", err)
	}
	o.store.ReplacePasses(passes)
	return nil
}

// scheduleRefresh arms a one-shot forced refresh of both collections. Timers
// are owned by the orchestrator and die with Stop.
func (o *Orchestrator) scheduleRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped || o.refreshDelay <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(o.refreshDelay, func() {
		o.mu.Lock()
		delete(o.timers, t)
		stopped := o.stopped
		o.mu.Unlock()
		if stopped {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := o.Refresh(ctx); err != nil {
			logger.Error("Delayed forced refresh failed", "error", err)
		}
	})
	o.timers[t] = struct{}{}
}

func (o *Orchestrator) recomputeVisible() {
	o.mu.Lock()
	f := o.filters
	view := o.view
	o.mu.Unlock()

	if view == ViewRecurring {
		// Server already applied the constraints; the filter pass here only
		// narrows records fetched before the latest filter change.
		o.store.SetVisible(filter.Apply(o.store.Recurring(), f))
		return
	}
	o.store.SetVisible(filter.Apply(o.store.Passes(), f))
}

func (o *Orchestrator) notifySuccess(ctx context.Context, action, text string) {
	o.store.SetSuccess(text)
	if o.sink != nil {
		o.sink.Notify(ctx, notify.Message{Level: notify.LevelSuccess, Action: action, Text: text})
	}
}

func (o *Orchestrator) notifyError(ctx context.Context, action string, cause error) {
	text := fmt.Sprintf("%s failed: %s", action, errorText(cause))
	o.store.SetError(text)
	if o.sink != nil {
		o.sink.Notify(ctx, notify.Message{Level: notify.LevelError, Action: action, Text: text})
	}
	logger.ErrorContext(ctx, "Pass action failed", "action", action, "error", cause)
}

// errorText prefers a server-provided message over the transport wrapping.
func errorText(err error) string {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func actionSuccessText(act domain.Action, visitor string) string {
	switch act {
	case domain.ActionApprove:
		return fmt.Sprintf("Pass for %s approved", visitor)
	case domain.ActionReject:
		return fmt.Sprintf("Pass for %s rejected", visitor)
	case domain.ActionCheckIn:
		return fmt.Sprintf("%s checked in", visitor)
	case domain.ActionCheckOut:
		return fmt.Sprintf("%s checked out", visitor)
	default:
		return fmt.Sprintf("%s updated", visitor)
	}
}

func (o *Orchestrator) publishAction(ctx context.Context, act domain.Action, id string, pass *domain.VisitorPass, at time.Time) {
	switch act {
	case domain.ActionApprove, domain.ActionReject:
		status := domain.StatusApproved
		subject := events.PassApproved
		if act == domain.ActionReject {
			status = domain.StatusRejected
			subject = events.PassRejected
		}
		o.publish(ctx, subject, events.PassDecisionEvent{
			PassID:       id,
			VisitorName:  pass.VisitorName,
			VisitorEmail: pass.EmailID,
			VisitingDate: pass.VisitingDate,
			VisitingTime: pass.VisitingTime,
			Status:       string(status),
			DecidedAt:    at,
		})
	case domain.ActionCheckIn, domain.ActionCheckOut:
		subject := events.PassCheckedIn
		inside := true
		if act == domain.ActionCheckOut {
			subject = events.PassCheckedOut
			inside = false
		}
		o.publish(ctx, subject, events.PassMovementEvent{
			PassID:      id,
			VisitorName: pass.VisitorName,
			Inside:      inside,
			At:          at,
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, subject string, payload any) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pass event", "subject", subject, "error", err)
	}
}
