// Package domain defines the reward and collection rules of the tracker:
// workout rewards, currency, creature acquisition and evolution.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/hatchery/internal/events"
	"example.com/hatchery/internal/observability"
)

// ErrIdempotentReplay is returned by a WorkoutStore when the idempotency key was already used.
var ErrIdempotentReplay = errors.New("workout already exists for idempotency key")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is the surface consumed by the presentation layer. It owns the
// single workout session and delegates currency operations to the Coordinator.
type Service struct {
	coordinator *Coordinator
	tracker     *Tracker
	workouts    WorkoutStore
	settings    SettingsStore
}

// NewService constructs a Service. Logging, events, clock and ids follow the coordinator.
func NewService(coordinator *Coordinator, workouts WorkoutStore, settings SettingsStore) *Service {
	return &Service{
		coordinator: coordinator,
		tracker:     NewTracker(coordinator.now),
		workouts:    workouts,
		settings:    settings,
	}
}

// Coordinator exposes the underlying coordinator.
func (s *Service) Coordinator() *Coordinator {
	return s.coordinator
}

// StartWorkout opens the tracked session.
func (s *Service) StartWorkout(context.Context) (SessionSnapshot, error) {
	return s.tracker.Start()
}

// RecordStepDelta feeds the device's cumulative step counter to the session.
func (s *Service) RecordStepDelta(_ context.Context, totalStepsSinceBoot int) (SessionSnapshot, error) {
	return s.tracker.RecordStepDelta(totalStepsSinceBoot)
}

// PauseWorkout freezes the tracked session.
func (s *Service) PauseWorkout(context.Context) (SessionSnapshot, error) {
	return s.tracker.Pause()
}

// Session returns the tracked session snapshot.
func (s *Service) Session(context.Context) SessionSnapshot {
	return s.tracker.Snapshot()
}

// FinishWorkout closes the tracked session, persists its record and credits
// the reward. A non-nil manualDistanceKm replaces the tracked distance. When
// idempotencyKey was already used the stored record is returned with
// replayed=true and nothing is credited.
func (s *Service) FinishWorkout(ctx context.Context, manualDistanceKm *float64, idempotencyKey string) (*WorkoutRecord, bool, error) {
	if existing, err := s.findReplay(ctx, idempotencyKey); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	var replayed bool
	record, err := s.tracker.Finish(manualDistanceKm, func(draft WorkoutRecord) (WorkoutRecord, error) {
		rec, replay, err := s.commitWorkout(ctx, draft, idempotencyKey)
		replayed = replay
		return rec, err
	})
	if err != nil && record.ID == "" {
		return nil, false, err
	}
	return &record, replayed, err
}

// ManualWorkoutInput captures a workout entered by hand or imported from another app.
type ManualWorkoutInput struct {
	StartTime      time.Time
	EndTime        time.Time
	DistanceKm     float64
	Source         WorkoutSource
	IdempotencyKey string
}

// LogManualWorkout records a workout without touching the tracked session.
// Steps are always zero.
func (s *Service) LogManualWorkout(ctx context.Context, input ManualWorkoutInput) (*WorkoutRecord, bool, error) {
	if !validDistance(input.DistanceKm) {
		return nil, false, ErrInvalidDistance
	}
	source := input.Source
	if source == "" {
		source = WorkoutSourceManual
	}
	if source != WorkoutSourceManual && source != WorkoutSourceImported {
		return nil, false, fmt.Errorf("%w: source %q", ErrInvalidWorkout, input.Source)
	}
	if input.StartTime.IsZero() {
		return nil, false, fmt.Errorf("%w: start time required", ErrInvalidWorkout)
	}
	end := input.EndTime
	if end.IsZero() {
		end = input.StartTime
	}
	if end.Before(input.StartTime) {
		return nil, false, fmt.Errorf("%w: end time before start time", ErrInvalidWorkout)
	}

	if existing, err := s.findReplay(ctx, input.IdempotencyKey); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	reward := RewardFor(input.DistanceKm)
	record, replayed, err := s.commitWorkout(ctx, WorkoutRecord{
		StartTime:     input.StartTime.UTC(),
		EndTime:       end.UTC(),
		DistanceKm:    input.DistanceKm,
		Source:        source,
		EggsEarned:    reward.Eggs,
		CandiesEarned: reward.Candies,
	}, input.IdempotencyKey)
	if err != nil && record.ID == "" {
		return nil, false, err
	}
	return &record, replayed, err
}

func (s *Service) findReplay(ctx context.Context, idempotencyKey string) (*WorkoutRecord, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	existing, err := s.workouts.FindWorkoutByIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, storeErr("find workout", err)
	}
	return existing, nil
}

// commitWorkout persists the record and then credits its reward. The reward
// is computed once by the caller and never reapplied to a stored record.
func (s *Service) commitWorkout(ctx context.Context, record WorkoutRecord, idempotencyKey string) (WorkoutRecord, bool, error) {
	c := s.coordinator
	record.ID = c.newID()

	if err := s.workouts.AppendWorkout(ctx, record, idempotencyKey); err != nil {
		if errors.Is(err, ErrIdempotentReplay) {
			existing, findErr := s.findReplay(ctx, idempotencyKey)
			if findErr != nil {
				return WorkoutRecord{}, false, findErr
			}
			if existing != nil {
				return *existing, true, nil
			}
		}
		return WorkoutRecord{}, false, storeErr("append workout", err)
	}
	observability.RecordWorkoutFinished(string(record.Source), record.EndTime)

	reward := record.Reward()
	if !reward.IsZero() {
		if _, err := c.Credit(ctx, reward); err != nil {
			creditErr := &CreditError{WorkoutID: record.ID, Reward: reward, Err: err}
			c.logger.Error("workout reward not credited",
				"workout_id", record.ID,
				"eggs", reward.Eggs,
				"candies", reward.Candies,
				"error", err,
			)
			return record, false, creditErr
		}
	}

	c.publish(ctx, Event{
		Type: events.TypeWorkoutFinished,
		Key:  record.ID,
		Payload: events.WorkoutFinished{
			WorkoutID:     record.ID,
			Source:        string(record.Source),
			StartedAt:     record.StartTime,
			EndedAt:       record.EndTime,
			DistanceKm:    record.DistanceKm,
			Steps:         record.Steps,
			EggsEarned:    record.EggsEarned,
			CandiesEarned: record.CandiesEarned,
		},
		OccurredAt: record.EndTime,
	})
	return record, false, nil
}

// Workouts lists the history newest first with cursor pagination.
func (s *Service) Workouts(ctx context.Context, cursor *Cursor, limit int) ([]WorkoutRecord, *Cursor, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	records, next, err := s.workouts.ListWorkouts(ctx, cursor, limit)
	if err != nil {
		return nil, nil, storeErr("list workouts", err)
	}
	return records, next, nil
}

// WorkoutStats aggregates the whole history.
func (s *Service) WorkoutStats(ctx context.Context) (WorkoutStats, error) {
	stats, err := s.workouts.WorkoutStats(ctx)
	if err != nil {
		return WorkoutStats{}, storeErr("workout stats", err)
	}
	return stats, nil
}

// AcquireFromEgg spends an egg and a rare candy on a new creature.
func (s *Service) AcquireFromEgg(ctx context.Context) (*OwnedCreature, error) {
	return s.coordinator.Acquire(ctx)
}

// Evolve spends a rare candy to evolve an owned creature.
func (s *Service) Evolve(ctx context.Context, instanceID string) (*EvolutionOutcome, error) {
	return s.coordinator.Evolve(ctx, instanceID)
}

// PreviewEvolution reports the species an owned creature would evolve into.
func (s *Service) PreviewEvolution(ctx context.Context, instanceID string) (*EvolutionPreview, error) {
	return s.coordinator.PreviewEvolution(ctx, instanceID)
}

// GetCreature fetches an owned creature by instance id.
func (s *Service) GetCreature(ctx context.Context, instanceID string) (*OwnedCreature, error) {
	return s.coordinator.GetCreature(ctx, instanceID)
}

// GetInventory returns the currency balance.
func (s *Service) GetInventory(ctx context.Context) (Inventory, error) {
	return s.coordinator.Inventory(ctx)
}

// GetOwnedCreatures lists owned creatures.
func (s *Service) GetOwnedCreatures(ctx context.Context) ([]OwnedCreature, error) {
	return s.coordinator.OwnedCreatures(ctx)
}

// GetCollectionEntries lists the collection log.
func (s *Service) GetCollectionEntries(ctx context.Context, unlockedOnly bool) ([]CollectionEntry, error) {
	return s.coordinator.CollectionEntries(ctx, unlockedOnly)
}

// CollectionProgress counts unlocked species.
func (s *Service) CollectionProgress(ctx context.Context) (CollectionProgress, error) {
	return s.coordinator.CollectionProgress(ctx)
}

// Settings returns the stored presentation settings.
func (s *Service) Settings(ctx context.Context) (UserSettings, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return UserSettings{}, storeErr("get settings", err)
	}
	return settings, nil
}

// UpdateSettings validates, normalises and stores presentation settings.
func (s *Service) UpdateSettings(ctx context.Context, settings UserSettings) (UserSettings, error) {
	normalized, err := NormalizeSettings(settings)
	if err != nil {
		return UserSettings{}, err
	}
	if err := s.settings.SaveSettings(ctx, normalized); err != nil {
		return UserSettings{}, storeErr("save settings", err)
	}
	return normalized, nil
}
