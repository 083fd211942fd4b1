package api

import (
	"errors"
	"net/http"
	"time"

	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/persistence"
)

// StepsRequest is the payload for POST /v1/workouts/session/steps.
type StepsRequest struct {
	TotalStepsSinceBoot *int `json:"total_steps_since_boot"`
}

// FinishRequest is the optional payload for POST /v1/workouts/session/finish.
type FinishRequest struct {
	ManualDistanceKm *float64 `json:"manual_distance_km,omitempty"`
}

// LogWorkoutRequest is the payload for POST /v1/workouts.
type LogWorkoutRequest struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DistanceKm *float64  `json:"distance_km"`
	Source     string    `json:"source"`
}

// Validate ensures request correctness.
func (r LogWorkoutRequest) Validate() error {
	if r.StartTime.IsZero() {
		return errors.New("start_time is required")
	}
	if r.DistanceKm == nil {
		return errors.New("distance_km is required")
	}
	return nil
}

// WorkoutResponse wraps a persisted workout.
type WorkoutResponse struct {
	Workout domain.WorkoutRecord `json:"workout"`
	Replay  bool                 `json:"idempotent_replay"`
}

// ListWorkoutsResponse packages list results.
type ListWorkoutsResponse struct {
	Items      []domain.WorkoutRecord `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.StartWorkout(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) recordSteps(w http.ResponseWriter, r *http.Request) {
	var req StepsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.TotalStepsSinceBoot == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "total_steps_since_boot is required")
		return
	}
	snap, err := h.service.RecordStepDelta(r.Context(), *req.TotalStepsSinceBoot)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) pauseSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.PauseWorkout(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Session(r.Context()))
}

func (h *Handler) finishSession(w http.ResponseWriter, r *http.Request) {
	var req FinishRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	record, replay, err := h.service.FinishWorkout(r.Context(), req.ManualDistanceKm, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, WorkoutResponse{Workout: *record, Replay: replay})
}

func (h *Handler) logWorkout(w http.ResponseWriter, r *http.Request) {
	var req LogWorkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	record, replay, err := h.service.LogManualWorkout(r.Context(), domain.ManualWorkoutInput{
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		DistanceKm:     *req.DistanceKm,
		Source:         domain.WorkoutSource(req.Source),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, WorkoutResponse{Workout: *record, Replay: replay})
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.Workouts(r.Context(), cursor, parseLimit(r, 20))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListWorkoutsResponse{Items: records, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) workoutStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.WorkoutStats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
