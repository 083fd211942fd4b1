// Package events defines the reward event payloads published to Kafka.
package events

import "time"

// Event type names, also used as the Kafka `event_type` header.
const (
	TypeWorkoutFinished  = "workout.finished"
	TypeCreatureAcquired = "creature.acquired"
	TypeCreatureEvolved  = "creature.evolved"
	TypeCurrencyRefunded = "currency.refunded"
)

// WorkoutFinished is emitted once a workout record is persisted and its reward credited.
type WorkoutFinished struct {
	WorkoutID     string    `json:"workout_id"`
	Source        string    `json:"source"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	DistanceKm    float64   `json:"distance_km"`
	Steps         int       `json:"steps"`
	EggsEarned    int       `json:"eggs_earned"`
	CandiesEarned int       `json:"candies_earned"`
}

// CreatureAcquired is emitted when an egg hatches into a new owned creature.
type CreatureAcquired struct {
	InstanceID string    `json:"instance_id"`
	SpeciesID  int       `json:"species_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// CreatureEvolved is emitted when an owned creature advances along its chain.
type CreatureEvolved struct {
	InstanceID    string    `json:"instance_id"`
	FromSpeciesID int       `json:"from_species_id"`
	ToSpeciesID   int       `json:"to_species_id"`
	EvolvedAt     time.Time `json:"evolved_at"`
}

// CurrencyRefunded records a compensating refund after a failed grant.
type CurrencyRefunded struct {
	Operation   string    `json:"operation"`
	Eggs        int       `json:"eggs"`
	RareCandies int       `json:"rare_candies"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}
