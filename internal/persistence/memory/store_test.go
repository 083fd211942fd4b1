package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
)

func TestSeedCatalogIsNoOpOnceProgressExists(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateCreature(ctx, domain.OwnedCreature{InstanceID: "x", SpeciesID: 1, OriginSpeciesID: 1}))

	seeded, err := store.SeedCatalog(ctx, []catalog.Species{{ID: 1, Name: "Sproutle"}})
	require.NoError(t, err)
	require.False(t, seeded)

	species, err := store.Species(ctx)
	require.NoError(t, err)
	require.Empty(t, species)
}

func TestTryConsumeNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	store := New()
	_, err := store.AddCurrency(ctx, 2, 1)
	require.NoError(t, err)

	ok, err := store.TryConsume(ctx, 1, 2)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.TryConsume(ctx, -1, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	inv, err := store.Inventory(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Inventory{Eggs: 2, RareCandies: 1}, inv)
}

func TestUnlockKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	store := New()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Unlock(ctx, 7, first))
	require.NoError(t, store.Unlock(ctx, 7, first.Add(time.Hour)))

	entries, err := store.CollectionEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, first.Equal(*entries[0].UnlockedAt))
}

func TestAppendWorkoutRejectsReusedKey(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.AppendWorkout(ctx, domain.WorkoutRecord{ID: "a"}, "k"))
	require.ErrorIs(t, store.AppendWorkout(ctx, domain.WorkoutRecord{ID: "b"}, "k"), domain.ErrIdempotentReplay)
	require.NoError(t, store.AppendWorkout(ctx, domain.WorkoutRecord{ID: "c"}, ""))

	rec, err := store.FindWorkoutByIdempotency(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "a", rec.ID)

	stats, err := store.WorkoutStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Count)
}
