package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/internal/lifecycle"
	"github.com/securelane/gatepass/internal/notify"
	"github.com/securelane/gatepass/internal/repo/postgres"
	"github.com/securelane/gatepass/pkg/auth"
	"github.com/securelane/gatepass/pkg/config"
	"github.com/securelane/gatepass/pkg/logger"
)

// Engine is the lifecycle surface the console handlers drive. It matches the
// orchestrator and is narrowed to an interface so handler tests can stub it.
type Engine interface {
	VisiblePasses() []domain.VisitorPass
	Counts(ctx context.Context) (filter.Counts, error)
	PermittedActions(id string) ([]domain.Transition, error)
	Categories() []domain.Category
	Filters() filter.Filters
	CurrentView() lifecycle.View
	SetFilters(ctx context.Context, f filter.Filters)
	SetView(ctx context.Context, v lifecycle.View)
	Refresh(ctx context.Context) error
	SubmitRegistration(ctx context.Context, reg *domain.Registration) (*domain.VisitorPass, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	CheckIn(ctx context.Context, id string) error
	CheckOut(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id, newDate, newTime string) error
}

// Notifications is the message feed handlers expose to the UI.
type Notifications interface {
	Messages() []notify.Message
	Dismiss(id string)
}

type Handlers struct {
	engine        Engine
	notifications Notifications
	idempotency   postgres.IdempotencyRepository
	cfg           *config.Config
}

func New(engine Engine, notifications Notifications, idempotency postgres.IdempotencyRepository, cfg *config.Config) *Handlers {
	return &Handlers{
		engine:        engine,
		notifications: notifications,
		idempotency:   idempotency,
		cfg:           cfg,
	}
}

type ctxKey string

const claimsKey ctxKey = "claims"

// RequireJWT gates console endpoints by role. Admin satisfies every role.
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.cfg.Auth.JWTSecret)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			if requiredRole != "" && claims.Role != requiredRole && claims.Role != auth.RoleAdmin {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), logger.ActorKey, claims.Sub)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
