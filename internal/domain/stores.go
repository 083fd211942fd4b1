package domain

import (
	"context"
	"time"

	"example.com/hatchery/internal/catalog"
)

// InventoryStore holds the single currency balance. Implementations must
// serialise AddCurrency and TryConsume against each other.
type InventoryStore interface {
	Inventory(ctx context.Context) (Inventory, error)
	// AddCurrency increases both balances and returns the new balance.
	AddCurrency(ctx context.Context, eggs, candies int) (Inventory, error)
	// TryConsume decrements both balances in one step if both suffice.
	// It reports false, and changes nothing, otherwise.
	TryConsume(ctx context.Context, eggs, candies int) (bool, error)
}

// CollectionStore holds one unlock flag per species.
type CollectionStore interface {
	// Unlock sets the flag for a species. Unlocking twice is a no-op.
	Unlock(ctx context.Context, speciesID int, at time.Time) error
	CollectionEntries(ctx context.Context) ([]CollectionEntry, error)
}

// OwnershipStore holds owned creature instances.
type OwnershipStore interface {
	CreateCreature(ctx context.Context, creature OwnedCreature) error
	// GetCreature returns nil, nil when the instance does not exist.
	GetCreature(ctx context.Context, instanceID string) (*OwnedCreature, error)
	ListCreatures(ctx context.Context) ([]OwnedCreature, error)
	// SetCreatureSpecies moves an instance to another species and records
	// evolvedAt (nil clears it). Identity is unchanged.
	SetCreatureSpecies(ctx context.Context, instanceID string, speciesID int, evolvedAt *time.Time) error
}

// WorkoutStore is the append-only workout history.
type WorkoutStore interface {
	// AppendWorkout persists a record. A non-empty idempotency key may only be used once.
	AppendWorkout(ctx context.Context, record WorkoutRecord, idempotencyKey string) error
	// FindWorkoutByIdempotency returns nil, nil when no record was stored under key.
	FindWorkoutByIdempotency(ctx context.Context, key string) (*WorkoutRecord, error)
	// ListWorkouts returns records newest first.
	ListWorkouts(ctx context.Context, cursor *Cursor, limit int) ([]WorkoutRecord, *Cursor, error)
	WorkoutStats(ctx context.Context) (WorkoutStats, error)
}

// SettingsStore holds presentation preferences.
type SettingsStore interface {
	Settings(ctx context.Context) (UserSettings, error)
	SaveSettings(ctx context.Context, settings UserSettings) error
}

// CatalogStore persists the species table and seeds first-run state.
type CatalogStore interface {
	// SeedCatalog writes species and locked collection entries. It is a no-op,
	// returning false, once any owned creature or collection entry exists.
	SeedCatalog(ctx context.Context, species []catalog.Species) (bool, error)
	Species(ctx context.Context) ([]catalog.Species, error)
}

// Store bundles every contract a backing store implements.
type Store interface {
	InventoryStore
	CollectionStore
	OwnershipStore
	WorkoutStore
	SettingsStore
	CatalogStore
	Close() error
}

// LoadCatalog rebuilds a catalog from the persisted species table.
func LoadCatalog(ctx context.Context, store CatalogStore) (*catalog.Catalog, error) {
	species, err := store.Species(ctx)
	if err != nil {
		return nil, storeErr("load species", err)
	}
	return catalog.New(species)
}
