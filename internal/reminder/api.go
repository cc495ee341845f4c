package reminder

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/errors"
)

// Handler provides HTTP handlers for the reminder module
type Handler struct {
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewHandler creates a new reminder handler
func NewHandler(scheduler *Scheduler, logger *zap.Logger) *Handler {
	return &Handler{scheduler: scheduler, logger: logger}
}

// Routes registers the reminder routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RolePatient))
		r.Get("/", h.List)
		r.Patch("/settings", h.UpdateSettings)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RoleAdmin))
		r.Post("/run", h.Run)
		r.Get("/stats", h.GetStats)
	})

	return r
}

// List returns the calling patient's reminders
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	reminders, err := h.scheduler.ListForPatient(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": reminders, "total": len(reminders)})
}

type settingsRequest struct {
	Enabled *bool `json:"enabled"`
}

// UpdateSettings opts the calling patient's reminders in or out
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Enabled == nil {
		writeError(w, errors.BadRequest("enabled is required"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	if err := h.scheduler.SetEnabled(r.Context(), p.ID, *req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// Run triggers the daily sweep immediately
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	sent, err := h.scheduler.RunNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// GetStats reports the reminder backlog
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
