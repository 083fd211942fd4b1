// Package api exposes HTTP handlers for the reward core.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"example.com/hatchery/internal/auth"
	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/persistence"
)

const maxBodyBytes = 1 << 16

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)

	mux.HandleFunc("POST /v1/workouts/session/start", h.requireScope(auth.ScopeWorkoutsWrite, h.startSession))
	mux.HandleFunc("POST /v1/workouts/session/steps", h.requireScope(auth.ScopeWorkoutsWrite, h.recordSteps))
	mux.HandleFunc("POST /v1/workouts/session/pause", h.requireScope(auth.ScopeWorkoutsWrite, h.pauseSession))
	mux.HandleFunc("POST /v1/workouts/session/finish", h.requireScope(auth.ScopeWorkoutsWrite, h.finishSession))
	mux.HandleFunc("GET /v1/workouts/session", h.requireScope(auth.ScopeProfileRead, h.getSession))
	mux.HandleFunc("POST /v1/workouts", h.requireScope(auth.ScopeWorkoutsWrite, h.logWorkout))
	mux.HandleFunc("GET /v1/workouts", h.requireScope(auth.ScopeProfileRead, h.listWorkouts))
	mux.HandleFunc("GET /v1/workouts/stats", h.requireScope(auth.ScopeProfileRead, h.workoutStats))

	mux.HandleFunc("GET /v1/inventory", h.requireScope(auth.ScopeProfileRead, h.getInventory))
	mux.HandleFunc("GET /v1/collection", h.requireScope(auth.ScopeProfileRead, h.getCollection))

	mux.HandleFunc("POST /v1/creatures/acquire", h.requireScope(auth.ScopeCreaturesWrite, h.acquire))
	mux.HandleFunc("GET /v1/creatures", h.requireScope(auth.ScopeProfileRead, h.listCreatures))
	mux.HandleFunc("GET /v1/creatures/{id}", h.requireScope(auth.ScopeProfileRead, h.getCreature))
	mux.HandleFunc("POST /v1/creatures/{id}/evolve", h.requireScope(auth.ScopeCreaturesWrite, h.evolve))
	mux.HandleFunc("GET /v1/creatures/{id}/evolution", h.requireScope(auth.ScopeProfileRead, h.previewEvolution))

	mux.HandleFunc("GET /v1/settings", h.requireScope(auth.ScopeProfileRead, h.getSettings))
	mux.HandleFunc("PUT /v1/settings", h.requireScope(auth.ScopeSettingsWrite, h.updateSettings))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !claims.HasScope(scope) {
			writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
			return
		}
		next(w, r)
	}
}

// decodeBody parses an optional JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var creditErr *domain.CreditError
	switch {
	case errors.Is(err, domain.ErrInconsistentState):
		h.logger.Error("inconsistent state reported", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "inconsistent_state", err.Error())
	case errors.As(err, &creditErr):
		h.logger.Error("workout saved without reward", "workout_id", creditErr.WorkoutID, "error", err)
		writeError(w, http.StatusInternalServerError, "credit_failed", err.Error())
	case errors.Is(err, domain.ErrInsufficientResources), errors.Is(err, domain.ErrInsufficientCandies):
		writeError(w, http.StatusConflict, "insufficient_resources", err.Error())
	case errors.Is(err, domain.ErrNoEligibleSpecies):
		writeError(w, http.StatusConflict, "no_eligible_species", err.Error())
	case errors.Is(err, domain.ErrCannotEvolve):
		writeError(w, http.StatusUnprocessableEntity, "cannot_evolve", err.Error())
	case errors.Is(err, domain.ErrCreatureNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrSessionActive),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrSessionNotRunning):
		writeError(w, http.StatusConflict, "session_conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDistance),
		errors.Is(err, domain.ErrInvalidSteps),
		errors.Is(err, domain.ErrInvalidWorkout),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, persistence.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrDataIntegrity):
		h.logger.Error("data integrity violation", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "data_integrity", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error("store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		h.logger.Error("unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
