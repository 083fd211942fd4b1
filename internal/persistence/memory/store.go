// Package memory provides an in-process store for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/persistence"
)

// Store implements domain.Store on maps guarded by a single RWMutex.
type Store struct {
	mu          sync.RWMutex
	inventory   domain.Inventory
	species     map[int]catalog.Species
	collection  map[int]domain.CollectionEntry
	creatures   map[string]domain.OwnedCreature
	workouts    []domain.WorkoutRecord
	idempotency map[string]string
	settings    domain.UserSettings
}

// New returns an empty store with default settings.
func New() *Store {
	return &Store{
		species:     make(map[int]catalog.Species),
		collection:  make(map[int]domain.CollectionEntry),
		creatures:   make(map[string]domain.OwnedCreature),
		idempotency: make(map[string]string),
		settings:    domain.DefaultSettings(),
	}
}

var _ domain.Store = (*Store)(nil)

// Inventory implements domain.InventoryStore.
func (s *Store) Inventory(context.Context) (domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventory, nil
}

// AddCurrency implements domain.InventoryStore.
func (s *Store) AddCurrency(_ context.Context, eggs, candies int) (domain.Inventory, error) {
	if eggs < 0 || candies < 0 {
		return domain.Inventory{}, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory.Eggs += eggs
	s.inventory.RareCandies += candies
	return s.inventory, nil
}

// TryConsume implements domain.InventoryStore.
func (s *Store) TryConsume(_ context.Context, eggs, candies int) (bool, error) {
	if eggs < 0 || candies < 0 {
		return false, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inventory.Eggs < eggs || s.inventory.RareCandies < candies {
		return false, nil
	}
	s.inventory.Eggs -= eggs
	s.inventory.RareCandies -= candies
	return true, nil
}

// Unlock implements domain.CollectionStore.
func (s *Store) Unlock(_ context.Context, speciesID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.collection[speciesID]
	if entry.Unlocked {
		return nil
	}
	at = at.UTC()
	s.collection[speciesID] = domain.CollectionEntry{SpeciesID: speciesID, Unlocked: true, UnlockedAt: &at}
	return nil
}

// CollectionEntries implements domain.CollectionStore.
func (s *Store) CollectionEntries(context.Context) ([]domain.CollectionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CollectionEntry, 0, len(s.collection))
	for _, e := range s.collection {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpeciesID < out[j].SpeciesID })
	return out, nil
}

// CreateCreature implements domain.OwnershipStore.
func (s *Store) CreateCreature(_ context.Context, creature domain.OwnedCreature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creatures[creature.InstanceID]; exists {
		return fmt.Errorf("creature %s already exists", creature.InstanceID)
	}
	s.creatures[creature.InstanceID] = creature
	return nil
}

// GetCreature implements domain.OwnershipStore.
func (s *Store) GetCreature(_ context.Context, instanceID string) (*domain.OwnedCreature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creatures[instanceID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListCreatures implements domain.OwnershipStore, oldest acquisition first.
func (s *Store) ListCreatures(context.Context) ([]domain.OwnedCreature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OwnedCreature, 0, len(s.creatures))
	for _, c := range s.creatures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].InstanceID < out[j].InstanceID
		}
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out, nil
}

// SetCreatureSpecies implements domain.OwnershipStore.
func (s *Store) SetCreatureSpecies(_ context.Context, instanceID string, speciesID int, evolvedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creatures[instanceID]
	if !ok {
		return fmt.Errorf("creature %s not found", instanceID)
	}
	c.SpeciesID = speciesID
	c.EvolvedAt = evolvedAt
	s.creatures[instanceID] = c
	return nil
}

// AppendWorkout implements domain.WorkoutStore.
func (s *Store) AppendWorkout(_ context.Context, record domain.WorkoutRecord, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idempotencyKey != "" {
		if _, used := s.idempotency[idempotencyKey]; used {
			return domain.ErrIdempotentReplay
		}
		s.idempotency[idempotencyKey] = record.ID
	}
	s.workouts = append(s.workouts, record)
	return nil
}

// FindWorkoutByIdempotency implements domain.WorkoutStore.
func (s *Store) FindWorkoutByIdempotency(_ context.Context, key string) (*domain.WorkoutRecord, error) {
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idempotency[key]
	if !ok {
		return nil, nil
	}
	for _, w := range s.workouts {
		if w.ID == id {
			rec := w
			return &rec, nil
		}
	}
	return nil, nil
}

// ListWorkouts implements domain.WorkoutStore.
func (s *Store) ListWorkouts(_ context.Context, cursor *domain.Cursor, limit int) ([]domain.WorkoutRecord, *domain.Cursor, error) {
	s.mu.RLock()
	sorted := make([]domain.WorkoutRecord, len(s.workouts))
	copy(sorted, s.workouts)
	s.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	results := make([]domain.WorkoutRecord, 0, limit)
	for _, w := range sorted {
		if !persistence.Before(w.StartTime, w.ID, cursor) {
			continue
		}
		results = append(results, w)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// WorkoutStats implements domain.WorkoutStore.
func (s *Store) WorkoutStats(context.Context) (domain.WorkoutStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.WorkoutStats
	for _, w := range s.workouts {
		stats.Count++
		stats.TotalDistanceKm += w.DistanceKm
		stats.TotalSteps += w.Steps
		stats.EggsEarned += w.EggsEarned
		stats.CandiesEarned += w.CandiesEarned
	}
	return stats, nil
}

// Settings implements domain.SettingsStore.
func (s *Store) Settings(context.Context) (domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// SaveSettings implements domain.SettingsStore.
func (s *Store) SaveSettings(_ context.Context, settings domain.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// SeedCatalog implements domain.CatalogStore.
func (s *Store) SeedCatalog(_ context.Context, species []catalog.Species) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.creatures) > 0 || len(s.collection) > 0 {
		return false, nil
	}
	for _, sp := range species {
		s.species[sp.ID] = sp
		s.collection[sp.ID] = domain.CollectionEntry{SpeciesID: sp.ID}
	}
	return true, nil
}

// Species implements domain.CatalogStore.
func (s *Store) Species(context.Context) ([]catalog.Species, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Species, 0, len(s.species))
	for _, sp := range s.species {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return nil
}
