package api

import (
	"net/http"
	"strconv"
	"time"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
)

// CreatureView is an owned creature joined with its catalog entry.
type CreatureView struct {
	InstanceID      string          `json:"instance_id"`
	Species         catalog.Species `json:"species"`
	OriginSpeciesID int             `json:"origin_species_id"`
	AcquiredAt      time.Time       `json:"acquired_at"`
	EvolvedAt       *time.Time      `json:"evolved_at,omitempty"`
	CanEvolve       bool            `json:"can_evolve"`
}

// EvolutionResponse reports a completed evolution.
type EvolutionResponse struct {
	InstanceID string          `json:"instance_id"`
	From       catalog.Species `json:"from"`
	To         catalog.Species `json:"to"`
}

// CollectionResponse lists collection entries alongside overall progress.
type CollectionResponse struct {
	Items    []CollectionItem          `json:"items"`
	Progress domain.CollectionProgress `json:"progress"`
}

// CollectionItem is a collection entry joined with its catalog entry.
type CollectionItem struct {
	Species    catalog.Species `json:"species"`
	Unlocked   bool            `json:"unlocked"`
	UnlockedAt *time.Time      `json:"unlocked_at,omitempty"`
}

func (h *Handler) creatureView(c domain.OwnedCreature) CreatureView {
	species, _ := h.service.Coordinator().Catalog().Get(c.SpeciesID)
	return CreatureView{
		InstanceID:      c.InstanceID,
		Species:         species,
		OriginSpeciesID: c.OriginSpeciesID,
		AcquiredAt:      c.AcquiredAt,
		EvolvedAt:       c.EvolvedAt,
		CanEvolve:       species.CanEvolve(),
	}
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInventory(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) acquire(w http.ResponseWriter, r *http.Request) {
	creature, err := h.service.AcquireFromEgg(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.creatureView(*creature))
}

func (h *Handler) listCreatures(w http.ResponseWriter, r *http.Request) {
	creatures, err := h.service.GetOwnedCreatures(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	items := make([]CreatureView, 0, len(creatures))
	for _, c := range creatures {
		items = append(items, h.creatureView(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) getCreature(w http.ResponseWriter, r *http.Request) {
	creature, err := h.service.GetCreature(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.creatureView(*creature))
}

func (h *Handler) evolve(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.Evolve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cat := h.service.Coordinator().Catalog()
	from, _ := cat.Get(outcome.FromSpeciesID)
	to, _ := cat.Get(outcome.ToSpeciesID)
	writeJSON(w, http.StatusOK, EvolutionResponse{InstanceID: outcome.InstanceID, From: from, To: to})
}

func (h *Handler) previewEvolution(w http.ResponseWriter, r *http.Request) {
	preview, err := h.service.PreviewEvolution(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	unlockedOnly := false
	if raw := r.URL.Query().Get("unlocked"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "unlocked must be a boolean")
			return
		}
		unlockedOnly = parsed
	}

	entries, err := h.service.GetCollectionEntries(r.Context(), unlockedOnly)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	progress, err := h.service.CollectionProgress(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cat := h.service.Coordinator().Catalog()
	items := make([]CollectionItem, 0, len(entries))
	for _, e := range entries {
		species, _ := cat.Get(e.SpeciesID)
		items = append(items, CollectionItem{Species: species, Unlocked: e.Unlocked, UnlockedAt: e.UnlockedAt})
	}
	writeJSON(w, http.StatusOK, CollectionResponse{Items: items, Progress: progress})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.UserSettings
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	saved, err := h.service.UpdateSettings(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
