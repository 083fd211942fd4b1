package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
)

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for the reward core.
type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Inventory implements domain.InventoryStore.
func (r *Repository) Inventory(ctx context.Context) (domain.Inventory, error) {
	var inv domain.Inventory
	err := r.pool.QueryRow(ctx, `SELECT eggs, rare_candies FROM inventory WHERE id = 1`).Scan(&inv.Eggs, &inv.RareCandies)
	return inv, err
}

// AddCurrency implements domain.InventoryStore.
func (r *Repository) AddCurrency(ctx context.Context, eggs, candies int) (domain.Inventory, error) {
	if eggs < 0 || candies < 0 {
		return domain.Inventory{}, domain.ErrInvalidAmount
	}
	var inv domain.Inventory
	err := r.pool.QueryRow(ctx,
		`UPDATE inventory SET eggs = eggs + $1, rare_candies = rare_candies + $2, updated_at = NOW()
        WHERE id = 1 RETURNING eggs, rare_candies`,
		eggs, candies).Scan(&inv.Eggs, &inv.RareCandies)
	return inv, err
}

// TryConsume implements domain.InventoryStore. The row lock taken by UPDATE
// serialises concurrent callers; the WHERE clause makes the check and the
// decrement one statement.
func (r *Repository) TryConsume(ctx context.Context, eggs, candies int) (bool, error) {
	if eggs < 0 || candies < 0 {
		return false, domain.ErrInvalidAmount
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE inventory SET eggs = eggs - $1, rare_candies = rare_candies - $2, updated_at = NOW()
        WHERE id = 1 AND eggs >= $1 AND rare_candies >= $2`,
		eggs, candies)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Unlock implements domain.CollectionStore.
func (r *Repository) Unlock(ctx context.Context, speciesID int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO collection_entries (species_id, unlocked, unlocked_at) VALUES ($1, TRUE, $2)
        ON CONFLICT (species_id) DO UPDATE SET unlocked = TRUE, unlocked_at = EXCLUDED.unlocked_at
        WHERE collection_entries.unlocked = FALSE`,
		speciesID, at.UTC())
	return err
}

// CollectionEntries implements domain.CollectionStore.
func (r *Repository) CollectionEntries(ctx context.Context) ([]domain.CollectionEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT species_id, unlocked, unlocked_at FROM collection_entries ORDER BY species_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CollectionEntry, 0)
	for rows.Next() {
		var e domain.CollectionEntry
		if err := rows.Scan(&e.SpeciesID, &e.Unlocked, &e.UnlockedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const creatureColumns = `instance_id, species_id, origin_species_id, acquired_at, evolved_at`

func scanCreature(row pgx.Row) (domain.OwnedCreature, error) {
	var c domain.OwnedCreature
	err := row.Scan(&c.InstanceID, &c.SpeciesID, &c.OriginSpeciesID, &c.AcquiredAt, &c.EvolvedAt)
	return c, err
}

// CreateCreature implements domain.OwnershipStore.
func (r *Repository) CreateCreature(ctx context.Context, c domain.OwnedCreature) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO owned_creatures (`+creatureColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		c.InstanceID, c.SpeciesID, c.OriginSpeciesID, c.AcquiredAt.UTC(), c.EvolvedAt)
	return err
}

// GetCreature implements domain.OwnershipStore.
func (r *Repository) GetCreature(ctx context.Context, instanceID string) (*domain.OwnedCreature, error) {
	c, err := scanCreature(r.pool.QueryRow(ctx, `SELECT `+creatureColumns+` FROM owned_creatures WHERE instance_id = $1`, instanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListCreatures implements domain.OwnershipStore.
func (r *Repository) ListCreatures(ctx context.Context) ([]domain.OwnedCreature, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+creatureColumns+` FROM owned_creatures ORDER BY acquired_at, instance_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creatures := make([]domain.OwnedCreature, 0)
	for rows.Next() {
		c, err := scanCreature(rows)
		if err != nil {
			return nil, err
		}
		creatures = append(creatures, c)
	}
	return creatures, rows.Err()
}

// SetCreatureSpecies implements domain.OwnershipStore.
func (r *Repository) SetCreatureSpecies(ctx context.Context, instanceID string, speciesID int, evolvedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE owned_creatures SET species_id = $2, evolved_at = $3 WHERE instance_id = $1`,
		instanceID, speciesID, evolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("creature %s not found", instanceID)
	}
	return nil
}

const workoutColumns = `workout_id, start_time, end_time, distance_km, steps, source, eggs_earned, candies_earned`

func scanWorkout(row pgx.Row) (domain.WorkoutRecord, error) {
	var w domain.WorkoutRecord
	err := row.Scan(&w.ID, &w.StartTime, &w.EndTime, &w.DistanceKm, &w.Steps, &w.Source, &w.EggsEarned, &w.CandiesEarned)
	return w, err
}

// AppendWorkout implements domain.WorkoutStore.
func (r *Repository) AppendWorkout(ctx context.Context, w domain.WorkoutRecord, idempotencyKey string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO workouts (`+workoutColumns+`, idempotency_key) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.StartTime.UTC(), w.EndTime.UTC(), w.DistanceKm, w.Steps, string(w.Source), w.EggsEarned, w.CandiesEarned, nullIfEmpty(idempotencyKey))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && idempotencyKey != "" {
		return domain.ErrIdempotentReplay
	}
	return err
}

// FindWorkoutByIdempotency implements domain.WorkoutStore.
func (r *Repository) FindWorkoutByIdempotency(ctx context.Context, key string) (*domain.WorkoutRecord, error) {
	if key == "" {
		return nil, nil
	}
	w, err := scanWorkout(r.pool.QueryRow(ctx, `SELECT `+workoutColumns+` FROM workouts WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// ListWorkouts implements domain.WorkoutStore.
func (r *Repository) ListWorkouts(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.WorkoutRecord, *domain.Cursor, error) {
	args := []interface{}{limit}
	query := `SELECT ` + workoutColumns + ` FROM workouts`
	if cursor != nil {
		query += ` WHERE (start_time, workout_id) < ($2, $3)`
		args = append(args, cursor.StartTime.UTC(), cursor.ID)
	}
	query += ` ORDER BY start_time DESC, workout_id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutRecord, 0, limit)
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// WorkoutStats implements domain.WorkoutStore.
func (r *Repository) WorkoutStats(ctx context.Context) (domain.WorkoutStats, error) {
	var stats domain.WorkoutStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(distance_km), 0), COALESCE(SUM(steps), 0),
            COALESCE(SUM(eggs_earned), 0), COALESCE(SUM(candies_earned), 0)
        FROM workouts`).Scan(&stats.Count, &stats.TotalDistanceKm, &stats.TotalSteps, &stats.EggsEarned, &stats.CandiesEarned)
	return stats, err
}

// Settings implements domain.SettingsStore.
func (r *Repository) Settings(ctx context.Context) (domain.UserSettings, error) {
	var s domain.UserSettings
	err := r.pool.QueryRow(ctx, `SELECT language, distance_unit FROM settings WHERE id = 1`).Scan(&s.Language, &s.DistanceUnit)
	return s, err
}

// SaveSettings implements domain.SettingsStore.
func (r *Repository) SaveSettings(ctx context.Context, s domain.UserSettings) error {
	_, err := r.pool.Exec(ctx, `UPDATE settings SET language = $1, distance_unit = $2 WHERE id = 1`, s.Language, string(s.DistanceUnit))
	return err
}

// SeedCatalog implements domain.CatalogStore inside a single transaction.
func (r *Repository) SeedCatalog(ctx context.Context, species []catalog.Species) (seeded bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// Concurrent seeders queue here instead of both seeing empty tables.
	if _, err = tx.Exec(ctx, `LOCK TABLE collection_entries IN EXCLUSIVE MODE`); err != nil {
		return false, err
	}
	var progress bool
	if err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM owned_creatures) OR EXISTS (SELECT 1 FROM collection_entries)`).Scan(&progress); err != nil {
		return false, err
	}
	if progress {
		return false, tx.Rollback(ctx)
	}

	batch := &pgx.Batch{}
	for _, s := range species {
		batch.Queue(`INSERT INTO species (species_id, name, name_alt, type1, type2, description, description_alt, evolves_from, evolves_to)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            ON CONFLICT (species_id) DO UPDATE SET name = EXCLUDED.name, name_alt = EXCLUDED.name_alt,
                type1 = EXCLUDED.type1, type2 = EXCLUDED.type2, description = EXCLUDED.description,
                description_alt = EXCLUDED.description_alt, evolves_from = EXCLUDED.evolves_from, evolves_to = EXCLUDED.evolves_to`,
			s.ID, s.Name, s.NameAlt, s.Type1, s.Type2, s.Description, s.DescriptionAlt, s.EvolvesFrom, s.EvolvesTo)
		batch.Queue(`INSERT INTO collection_entries (species_id, unlocked) VALUES ($1, FALSE)`, s.ID)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Species implements domain.CatalogStore.
func (r *Repository) Species(ctx context.Context) ([]catalog.Species, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT species_id, name, name_alt, type1, type2, description, description_alt, evolves_from, evolves_to
        FROM species ORDER BY species_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]catalog.Species, 0)
	for rows.Next() {
		var s catalog.Species
		if err := rows.Scan(&s.ID, &s.Name, &s.NameAlt, &s.Type1, &s.Type2, &s.Description, &s.DescriptionAlt, &s.EvolvesFrom, &s.EvolvesTo); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
