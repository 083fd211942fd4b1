package domain

import (
	"math"
	"time"
)

// Inventory is the user's currency balance. Both fields are never negative.
type Inventory struct {
	Eggs        int `json:"eggs"`
	RareCandies int `json:"rare_candies"`
}

// Reward is the currency earned by a single workout.
type Reward struct {
	Eggs    int `json:"eggs"`
	Candies int `json:"candies"`
}

// IsZero reports whether the reward grants nothing.
func (r Reward) IsZero() bool {
	return r.Eggs == 0 && r.Candies == 0
}

// OwnedCreature is a creature instance. InstanceID never changes; SpeciesID
// moves along the evolution chain.
type OwnedCreature struct {
	InstanceID      string     `json:"instance_id"`
	SpeciesID       int        `json:"species_id"`
	OriginSpeciesID int        `json:"origin_species_id"`
	AcquiredAt      time.Time  `json:"acquired_at"`
	EvolvedAt       *time.Time `json:"evolved_at,omitempty"`
}

// CollectionEntry records whether a species was ever obtained or reached.
type CollectionEntry struct {
	SpeciesID  int        `json:"species_id"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// CollectionProgress summarises the collection log.
type CollectionProgress struct {
	Unlocked int `json:"unlocked"`
	Total    int `json:"total"`
}

// EvolutionOutcome describes a completed evolution.
type EvolutionOutcome struct {
	InstanceID    string `json:"instance_id"`
	FromSpeciesID int    `json:"from_species_id"`
	ToSpeciesID   int    `json:"to_species_id"`
}

// WorkoutSource identifies where a workout's distance came from.
type WorkoutSource string

const (
	WorkoutSourceSensor   WorkoutSource = "sensor"
	WorkoutSourceManual   WorkoutSource = "manual"
	WorkoutSourceImported WorkoutSource = "imported"
)

// Valid reports whether the source is known.
func (s WorkoutSource) Valid() bool {
	switch s {
	case WorkoutSourceSensor, WorkoutSourceManual, WorkoutSourceImported:
		return true
	}
	return false
}

// WorkoutRecord is an immutable entry in the workout history.
type WorkoutRecord struct {
	ID            string        `json:"id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	DistanceKm    float64       `json:"distance_km"`
	Steps         int           `json:"steps"`
	Source        WorkoutSource `json:"source"`
	EggsEarned    int           `json:"eggs_earned"`
	CandiesEarned int           `json:"candies_earned"`
}

// Reward returns the currency granted by the record.
func (w WorkoutRecord) Reward() Reward {
	return Reward{Eggs: w.EggsEarned, Candies: w.CandiesEarned}
}

// WorkoutStats aggregates the workout history.
type WorkoutStats struct {
	Count           int     `json:"count"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	TotalSteps      int     `json:"total_steps"`
	EggsEarned      int     `json:"eggs_earned"`
	CandiesEarned   int     `json:"candies_earned"`
}

// Cursor models the workout history pagination token.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// DistanceUnit is a display preference.
type DistanceUnit string

const (
	DistanceUnitKilometers DistanceUnit = "km"
	DistanceUnitMiles      DistanceUnit = "mi"
)

// UserSettings is presentation state; the reward logic never reads it.
type UserSettings struct {
	Language     string       `json:"language"`
	DistanceUnit DistanceUnit `json:"distance_unit"`
}

// DefaultSettings mirrors the first-run defaults.
func DefaultSettings() UserSettings {
	return UserSettings{Language: "es", DistanceUnit: DistanceUnitKilometers}
}

func validDistance(km float64) bool {
	return !math.IsNaN(km) && !math.IsInf(km, 0) && km >= 0
}
