// cmd/server is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/auth"
	"github.com/cafezao-da-computacao/cafezao/internal/config"
	"github.com/cafezao-da-computacao/cafezao/internal/database"
	"github.com/cafezao-da-computacao/cafezao/internal/dispense"
	"github.com/cafezao-da-computacao/cafezao/internal/dispenser"
	"github.com/cafezao-da-computacao/cafezao/internal/handler"
	"github.com/cafezao-da-computacao/cafezao/internal/logger"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/repository"
	"github.com/cafezao-da-computacao/cafezao/internal/service"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()
	log.Info("starting cafezao server", zap.String("env", cfg.Env))

	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("connected to postgres")

	// Repositories.
	userRepo := repository.NewUserRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	coffeeRepo := repository.NewCoffeeRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	// Core components.
	hub := watch.NewHub(log)
	machine := dispenser.New(cfg.DispenserBaseURL, cfg.DispenserTimeout)
	flows := dispense.NewManager(machine, coffeeRepo, log, cfg.CodeTTL)
	authn := auth.New(userRepo, sessionRepo, cfg.BcryptCost, cfg.SessionTTL)

	// Services.
	coffeeSvc := service.NewCoffeeService(userRepo, coffeeRepo, settingsRepo, flows, hub, log)
	paymentSvc := service.NewPaymentService(paymentRepo, userRepo, settingsRepo, hub, log)
	notificationSvc := service.NewNotificationService(notificationRepo, hub, log)
	adminSvc := service.NewAdminService(userRepo, paymentRepo, coffeeRepo, settingsRepo, hub, log)

	sweeper, err := adminSvc.StartSweeper(cfg.SweepSchedule)
	if err != nil {
		log.Fatal("sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Handlers.
	validate := validator.New()
	h := handler.New(authn, coffeeSvc, paymentSvc, notificationSvc, validate, log)
	adminH := handler.NewAdminHandler(adminSvc, notificationSvc, h, log)
	wsH := handler.NewWSHandler(hub, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/health", handler.HealthCheck)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authn.Middleware).Post("/logout", h.Logout)
	})

	// Member surface.
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/me", h.Me)
		r.Get("/coffees", h.History)
		r.Get("/notifications", h.Notifications)
		r.Get("/ws", wsH.Stream)

		r.Route("/dispense", func(r chi.Router) {
			r.Post("/", h.RequestDispense)
			r.Get("/", h.DispenseStatus)
			r.Post("/confirm", h.ConfirmDispense)
			r.Post("/cancel", h.CancelDispense)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/instructions", h.PaymentInstructions)
			r.Post("/", h.SubmitPayment)
		})
	})

	// Admin surface.
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Use(auth.RequireRole(model.RoleAdmin))

		r.Get("/admin/dashboard", adminH.Dashboard)
		r.Get("/admin/payments", adminH.ListPayments)
		r.Post("/admin/payments/{id}/approve", adminH.ApprovePayment)
		r.Post("/admin/payments/{id}/reject", adminH.RejectPayment)
		r.Post("/admin/users/{id}/subscription/toggle", adminH.ToggleSubscription)
		r.Post("/admin/notifications", adminH.Notify)
	})

	// Super-admin surface.
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Use(auth.RequireRole(model.RoleSuperAdmin))

		r.Get("/admin/settings", adminH.GetSettings)
		r.Put("/admin/settings", adminH.UpdateSettings)
	})

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /ws streams outlive any fixed deadline.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
