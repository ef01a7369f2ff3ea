package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/internal/gateway"
	"github.com/securelane/gatepass/internal/http/response"
	"github.com/securelane/gatepass/internal/lifecycle"
	"github.com/securelane/gatepass/internal/utils"
	"github.com/securelane/gatepass/pkg/logger"
)

// ListPasses returns the visible subset for the active view and filters.
func (h *Handlers) ListPasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":    h.engine.CurrentView(),
		"filters": h.engine.Filters(),
		"passes":  h.engine.VisiblePasses(),
	})
}

// GetCounts returns the aggregate figures for the active view.
func (h *Handlers) GetCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.Counts(r.Context())
	if err != nil {
		response.BadGateway(w, "Failed to compute counts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// GetActions returns the permitted-action set for one pass.
func (h *Handlers) GetActions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actions, err := h.engine.PermittedActions(id)
	if err != nil {
		response.NotFound(w, "Pass not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// GetCategories returns the static category reference data.
func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Categories())
}

// Register creates a pass. An Idempotency-Key header makes double submission
// return the originally registered pass.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	reg.VisitorName = utils.NormalizeString(reg.VisitorName)
	reg.EmailID = utils.NormalizeEmail(reg.EmailID)
	reg.MobileNumber = utils.NormalizeMobile(reg.MobileNumber)

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if existingID, err := h.idempotency.CheckOrCreate(r.Context(), idemKey, ""); err != nil {
			logger.ErrorContext(r.Context(), "Idempotency check failed", "error", err)
		} else if existingID != "" {
			// Replay the original pass even if it has left the working set;
			// falling through here would register the visitor twice.
			replay := map[string]interface{}{
				"id":     existingID,
				"replay": true,
			}
			if actions, err := h.engine.PermittedActions(existingID); err == nil {
				replay["actions"] = actions
			}
			writeJSON(w, http.StatusOK, replay)
			return
		}
	}

	created, err := h.engine.SubmitRegistration(r.Context(), &reg)
	if err != nil {
		var fe domain.FieldErrors
		if errors.As(err, &fe) {
			response.WriteFieldErrors(w, "Registration validation failed", fe)
			return
		}
		writeGatewayError(w, err, "Failed to register pass")
		return
	}

	if idemKey != "" && h.idempotency != nil {
		if _, err := h.idempotency.CheckOrCreate(r.Context(), idemKey, created.ID); err != nil {
			logger.ErrorContext(r.Context(), "Failed to store idempotency record", "error", err, "pass_id", created.ID)
		}
	}

	writeJSON(w, http.StatusCreated, created)
}

// Approve, Reject, CheckIn, CheckOut run the corresponding lifecycle intent.
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.engine.Approve)
}

func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.engine.Reject)
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.engine.CheckIn)
}

func (h *Handlers) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.engine.CheckOut)
}

type rescheduleReq struct {
	NewDate string `json:"new_date"`
	NewTime string `json:"new_time"`
}

// Reschedule moves a lapsed or pending appointment to a future slot.
func (h *Handlers) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req rescheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if err := h.engine.Reschedule(r.Context(), id, req.NewDate, req.NewTime); err != nil {
		var fe domain.FieldErrors
		if errors.As(err, &fe) {
			response.WriteFieldErrors(w, "Reschedule validation failed", fe)
			return
		}
		writeGatewayError(w, err, "Failed to reschedule pass")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// SetFilters replaces the active filter state and recomputes the visible set.
func (h *Handlers) SetFilters(w http.ResponseWriter, r *http.Request) {
	var f filter.Filters
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	h.engine.SetFilters(r.Context(), f)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters": h.engine.Filters(),
		"passes":  h.engine.VisiblePasses(),
	})
}

type viewReq struct {
	View string `json:"view"`
}

// SetView switches between the default and recurring working sets.
func (h *Handlers) SetView(w http.ResponseWriter, r *http.Request) {
	var req viewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	switch lifecycle.View(req.View) {
	case lifecycle.ViewDefault, lifecycle.ViewRecurring:
	default:
		response.BadRequest(w, "View must be default or recurring")
		return
	}

	h.engine.SetView(r.Context(), lifecycle.View(req.View))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":   req.View,
		"passes": h.engine.VisiblePasses(),
	})
}

// Refresh forces a full refetch of both collections.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		writeGatewayError(w, err, "Refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ListNotifications returns the current message feed.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifications.Messages())
}

// DismissNotification removes one message from the feed.
func (h *Handlers) DismissNotification(w http.ResponseWriter, r *http.Request) {
	h.notifications.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) runAction(w http.ResponseWriter, r *http.Request, intent func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if err := intent(r.Context(), id); err != nil {
		writeGatewayError(w, err, "Action failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeGatewayError maps upstream failures onto console responses, carrying
// the server's own message when it provided one.
func writeGatewayError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fallback
		}
		if len(apiErr.Fields) > 0 {
			response.WriteFieldErrors(w, msg, apiErr.Fields)
			return
		}
		response.BadGateway(w, msg)
		return
	}
	response.BadGateway(w, fallback)
}
