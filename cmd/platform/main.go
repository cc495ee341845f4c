package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/fulfillment"
	"github.com/rxcare/platform/internal/inventory"
	"github.com/rxcare/platform/internal/notification"
	"github.com/rxcare/platform/internal/prescription"
	"github.com/rxcare/platform/internal/refill"
	"github.com/rxcare/platform/internal/reminder"
	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/config"
	"github.com/rxcare/platform/internal/shared/database"
	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
	"github.com/rxcare/platform/internal/tracking"
	"github.com/rxcare/platform/internal/user"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Logger *zap.Logger
}

// stores groups one repository per module, backed either by postgres or,
// in limited mode, by memory.
type stores struct {
	prescriptions prescription.Repository
	refills       refill.Repository
	inventories   inventory.Repository
	fills         fulfillment.Repository
	ledger        tracking.Repository
	reminders     reminder.Repository
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app := &App{Config: cfg, Logger: logger}

	// Database is optional: without it every store runs in memory.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn("database not available, running in limited mode", zap.Error(err))
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			logger.Warn("migration failed", zap.Error(err))
		}
	}

	st := newStores(app)

	// Identity lives outside this service; the in-process directory
	// covers notifications and development logins.
	users := user.NewMemoryDirectory()

	feed := tracking.NewFeed()
	tracker := tracking.NewService(st.ledger, feed, prescriptionProbe{st.prescriptions}, logger)
	notifier := notification.FromConfig(cfg.Notify, logger)

	scheduler := reminder.NewScheduler(st.reminders, users, st.refills, st.fills, notifier, cfg.Reminder.SendHour, logger)
	prescriptionService := prescription.NewService(st.prescriptions, tracker, logger)
	refillService := refill.NewService(
		st.refills, st.prescriptions, st.inventories, st.fills,
		tracker, notifier, users, scheduler, logger,
	)

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	scheduler.Start(schedulerCtx)

	prescriptionHandler := prescription.NewHandler(prescriptionService, logger)
	refillHandler := refill.NewHandler(refillService, logger)
	inventoryHandler := inventory.NewHandler(st.inventories, logger)
	fulfillmentHandler := fulfillment.NewHandler(st.fills, logger)
	trackingHandler := tracking.NewHandler(tracker, logger)
	reminderHandler := reminder.NewHandler(scheduler, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// Live tracking feed: websocket clients cannot send an Authorization
	// header, so the live route stays outside the auth gate.
	r.Mount("/api/v1/track", trackingHandler.LiveRoutes())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		r.Mount("/prescriptions", prescriptionHandler.Routes())
		r.Mount("/refills", refillHandler.Routes())
		r.Mount("/inventory", inventoryHandler.Routes())
		r.Mount("/fulfillments", fulfillmentHandler.Routes())
		r.Mount("/tracking", trackingHandler.Routes())
		r.Mount("/reminders", reminderHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		stopScheduler()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("rxcare platform listening",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("limited_mode", app.DB == nil),
		zap.Int("reminder_send_hour", cfg.Reminder.SendHour))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newStores(app *App) stores {
	if app.DB == nil {
		return stores{
			prescriptions: prescription.NewMemoryRepository(),
			refills:       refill.NewMemoryRepository(),
			inventories:   inventory.NewMemoryRepository(),
			fills:         fulfillment.NewMemoryRepository(),
			ledger:        tracking.NewMemoryRepository(),
			reminders:     reminder.NewMemoryRepository(),
		}
	}
	return stores{
		prescriptions: prescription.NewPostgresRepository(app.DB.Pool),
		refills:       refill.NewPostgresRepository(app.DB.Pool),
		inventories:   inventory.NewPostgresRepository(app.DB.Pool),
		fills:         fulfillment.NewPostgresRepository(app.DB.Pool),
		ledger:        tracking.NewPostgresRepository(app.DB.Pool),
		reminders:     reminder.NewPostgresRepository(app.DB.Pool),
	}
}

// prescriptionProbe adapts the prescription store to the tracking
// ledger's existence check.
type prescriptionProbe struct {
	repo prescription.Repository
}

func (p prescriptionProbe) Status(ctx context.Context, id types.ID) (string, error) {
	rx, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return string(rx.Status), nil
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "RxCare Refill Coordination Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
