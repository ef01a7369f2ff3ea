package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/securelane/gatepass/internal/gateway"
	handlerpkg "github.com/securelane/gatepass/internal/http/handlers"
	imw "github.com/securelane/gatepass/internal/http/middleware"
	"github.com/securelane/gatepass/internal/lifecycle"
	"github.com/securelane/gatepass/internal/notify"
	"github.com/securelane/gatepass/internal/repo/postgres"
	"github.com/securelane/gatepass/internal/store"
	"github.com/securelane/gatepass/pkg/auth"
	"github.com/securelane/gatepass/pkg/config"
	"github.com/securelane/gatepass/pkg/database"
	"github.com/securelane/gatepass/pkg/events"
	"github.com/securelane/gatepass/pkg/logger"
	mw "github.com/securelane/gatepass/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	} else {
		logger.Warn("Invalid Redis URL; count caching disabled", "error", err)
	}

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout)

	center := notify.NewCenter(50, cfg.Reconcile.SuccessClearAfter)
	defer center.Stop()

	countCache := lifecycle.NewCountCache(rdb, cfg.Reconcile.CountCacheTTL)
	engine := lifecycle.New(store.New(), gw, center, eventBus, countCache, cfg.Reconcile.RefreshDelay)
	defer engine.Stop()

	if err := engine.Start(ctx); err != nil {
		logger.Error("Initial pass load failed", "error", err)
		os.Exit(1)
	}

	idempotencyRepo := postgres.NewIdempotencyRepository(pool)
	h := handlerpkg.New(engine, center, idempotencyRepo, cfg)

	registrationLimiter := imw.NewRateLimiter(pool, imw.RateLimitConfig{
		Requests: 20,
		Window:   time.Minute,
		KeyFunc:  imw.RegistrationRateLimitKeyFunc,
	})

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("console"))
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/passes", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleFrontDesk))
			r.Get("/", h.ListPasses)
			r.Get("/counts", h.GetCounts)
			r.Get("/{id}/actions", h.GetActions)
			r.With(registrationLimiter.Middleware()).Post("/", h.Register)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/checkin", h.CheckIn)
			r.Post("/{id}/checkout", h.CheckOut)
			r.Post("/{id}/reschedule", h.Reschedule)
		})

		r.With(h.RequireJWT(auth.RoleFrontDesk)).Get("/categories", h.GetCategories)
		r.With(h.RequireJWT(auth.RoleFrontDesk)).Post("/filters", h.SetFilters)
		r.With(h.RequireJWT(auth.RoleFrontDesk)).Post("/view", h.SetView)
		r.With(h.RequireJWT(auth.RoleFrontDesk)).Post("/refresh", h.Refresh)

		r.Route("/notifications", func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleFrontDesk))
			r.Get("/", h.ListNotifications)
			r.Delete("/{id}", h.DismissNotification)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down console service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Console service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting console service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Console service error", "error", err)
		os.Exit(1)
	}
}
