// Package sqlite provides the local-disk store used by personal deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
)

//go:embed schema.sql
var schema string

// Store implements domain.Store on a single SQLite file.
type Store struct {
	db *sqlx.DB
}

var _ domain.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time keeps check-then-decrement updates serialised.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func optionalMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromOptionalMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// Inventory implements domain.InventoryStore.
func (s *Store) Inventory(ctx context.Context) (domain.Inventory, error) {
	var inv domain.Inventory
	err := s.db.QueryRowxContext(ctx, `SELECT eggs, rare_candies FROM inventory WHERE id = 1`).Scan(&inv.Eggs, &inv.RareCandies)
	return inv, err
}

// AddCurrency implements domain.InventoryStore.
func (s *Store) AddCurrency(ctx context.Context, eggs, candies int) (domain.Inventory, error) {
	if eggs < 0 || candies < 0 {
		return domain.Inventory{}, domain.ErrInvalidAmount
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Inventory{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE inventory SET eggs = eggs + ?, rare_candies = rare_candies + ? WHERE id = 1`, eggs, candies); err != nil {
		return domain.Inventory{}, err
	}
	var inv domain.Inventory
	if err := tx.QueryRowxContext(ctx, `SELECT eggs, rare_candies FROM inventory WHERE id = 1`).Scan(&inv.Eggs, &inv.RareCandies); err != nil {
		return domain.Inventory{}, err
	}
	return inv, tx.Commit()
}

// TryConsume implements domain.InventoryStore with a single guarded UPDATE.
func (s *Store) TryConsume(ctx context.Context, eggs, candies int) (bool, error) {
	if eggs < 0 || candies < 0 {
		return false, domain.ErrInvalidAmount
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE inventory SET eggs = eggs - ?, rare_candies = rare_candies - ?
        WHERE id = 1 AND eggs >= ? AND rare_candies >= ?`,
		eggs, candies, eggs, candies)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Unlock implements domain.CollectionStore.
func (s *Store) Unlock(ctx context.Context, speciesID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_entries (species_id, unlocked, unlocked_at) VALUES (?, 1, ?)
        ON CONFLICT (species_id) DO UPDATE SET unlocked = 1, unlocked_at = excluded.unlocked_at
        WHERE collection_entries.unlocked = 0`,
		speciesID, toMillis(at))
	return err
}

type entryRow struct {
	SpeciesID  int           `db:"species_id"`
	Unlocked   bool          `db:"unlocked"`
	UnlockedAt sql.NullInt64 `db:"unlocked_at"`
}

// CollectionEntries implements domain.CollectionStore.
func (s *Store) CollectionEntries(ctx context.Context) ([]domain.CollectionEntry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT species_id, unlocked, unlocked_at FROM collection_entries ORDER BY species_id`); err != nil {
		return nil, err
	}
	out := make([]domain.CollectionEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CollectionEntry{SpeciesID: r.SpeciesID, Unlocked: r.Unlocked, UnlockedAt: fromOptionalMillis(r.UnlockedAt)})
	}
	return out, nil
}

type creatureRow struct {
	InstanceID      string        `db:"instance_id"`
	SpeciesID       int           `db:"species_id"`
	OriginSpeciesID int           `db:"origin_species_id"`
	AcquiredAt      int64         `db:"acquired_at"`
	EvolvedAt       sql.NullInt64 `db:"evolved_at"`
}

func (r creatureRow) toDomain() domain.OwnedCreature {
	return domain.OwnedCreature{
		InstanceID:      r.InstanceID,
		SpeciesID:       r.SpeciesID,
		OriginSpeciesID: r.OriginSpeciesID,
		AcquiredAt:      fromMillis(r.AcquiredAt),
		EvolvedAt:       fromOptionalMillis(r.EvolvedAt),
	}
}

const creatureColumns = `instance_id, species_id, origin_species_id, acquired_at, evolved_at`

// CreateCreature implements domain.OwnershipStore.
func (s *Store) CreateCreature(ctx context.Context, c domain.OwnedCreature) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owned_creatures (`+creatureColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.InstanceID, c.SpeciesID, c.OriginSpeciesID, toMillis(c.AcquiredAt), optionalMillis(c.EvolvedAt))
	return err
}

// GetCreature implements domain.OwnershipStore.
func (s *Store) GetCreature(ctx context.Context, instanceID string) (*domain.OwnedCreature, error) {
	var row creatureRow
	err := s.db.GetContext(ctx, &row, `SELECT `+creatureColumns+` FROM owned_creatures WHERE instance_id = ?`, instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

// ListCreatures implements domain.OwnershipStore.
func (s *Store) ListCreatures(ctx context.Context) ([]domain.OwnedCreature, error) {
	var rows []creatureRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+creatureColumns+` FROM owned_creatures ORDER BY acquired_at, instance_id`); err != nil {
		return nil, err
	}
	out := make([]domain.OwnedCreature, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// SetCreatureSpecies implements domain.OwnershipStore.
func (s *Store) SetCreatureSpecies(ctx context.Context, instanceID string, speciesID int, evolvedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE owned_creatures SET species_id = ?, evolved_at = ? WHERE instance_id = ?`,
		speciesID, optionalMillis(evolvedAt), instanceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("creature %s not found", instanceID)
	}
	return nil
}

type workoutRow struct {
	ID            string  `db:"id"`
	StartTime     int64   `db:"start_time"`
	EndTime       int64   `db:"end_time"`
	DistanceKm    float64 `db:"distance_km"`
	Steps         int     `db:"steps"`
	Source        string  `db:"source"`
	EggsEarned    int     `db:"eggs_earned"`
	CandiesEarned int     `db:"candies_earned"`
}

func (r workoutRow) toDomain() domain.WorkoutRecord {
	return domain.WorkoutRecord{
		ID:            r.ID,
		StartTime:     fromMillis(r.StartTime),
		EndTime:       fromMillis(r.EndTime),
		DistanceKm:    r.DistanceKm,
		Steps:         r.Steps,
		Source:        domain.WorkoutSource(r.Source),
		EggsEarned:    r.EggsEarned,
		CandiesEarned: r.CandiesEarned,
	}
}

const workoutColumns = `id, start_time, end_time, distance_km, steps, source, eggs_earned, candies_earned`

// AppendWorkout implements domain.WorkoutStore.
func (s *Store) AppendWorkout(ctx context.Context, w domain.WorkoutRecord, idempotencyKey string) error {
	var key sql.NullString
	if idempotencyKey != "" {
		key = sql.NullString{String: idempotencyKey, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workouts (`+workoutColumns+`, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, toMillis(w.StartTime), toMillis(w.EndTime), w.DistanceKm, w.Steps, string(w.Source), w.EggsEarned, w.CandiesEarned, key)
	if err != nil && key.Valid && isUniqueViolation(err) {
		return domain.ErrIdempotentReplay
	}
	return err
}

// FindWorkoutByIdempotency implements domain.WorkoutStore.
func (s *Store) FindWorkoutByIdempotency(ctx context.Context, key string) (*domain.WorkoutRecord, error) {
	if key == "" {
		return nil, nil
	}
	var row workoutRow
	err := s.db.GetContext(ctx, &row, `SELECT `+workoutColumns+` FROM workouts WHERE idempotency_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w := row.toDomain()
	return &w, nil
}

// ListWorkouts implements domain.WorkoutStore.
func (s *Store) ListWorkouts(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.WorkoutRecord, *domain.Cursor, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts`
	args := []interface{}{}
	if cursor != nil {
		query += ` WHERE start_time < ? OR (start_time = ? AND id < ?)`
		ms := toMillis(cursor.StartTime)
		args = append(args, ms, ms, cursor.ID)
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []workoutRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, err
	}
	results := make([]domain.WorkoutRecord, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toDomain())
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// WorkoutStats implements domain.WorkoutStore.
func (s *Store) WorkoutStats(ctx context.Context) (domain.WorkoutStats, error) {
	var stats domain.WorkoutStats
	err := s.db.QueryRowxContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(distance_km), 0), COALESCE(SUM(steps), 0),
            COALESCE(SUM(eggs_earned), 0), COALESCE(SUM(candies_earned), 0)
        FROM workouts`).Scan(&stats.Count, &stats.TotalDistanceKm, &stats.TotalSteps, &stats.EggsEarned, &stats.CandiesEarned)
	return stats, err
}

// Settings implements domain.SettingsStore.
func (s *Store) Settings(ctx context.Context) (domain.UserSettings, error) {
	var settings domain.UserSettings
	var unit string
	err := s.db.QueryRowxContext(ctx, `SELECT language, distance_unit FROM settings WHERE id = 1`).Scan(&settings.Language, &unit)
	settings.DistanceUnit = domain.DistanceUnit(unit)
	return settings, err
}

// SaveSettings implements domain.SettingsStore.
func (s *Store) SaveSettings(ctx context.Context, settings domain.UserSettings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET language = ?, distance_unit = ? WHERE id = 1`,
		settings.Language, string(settings.DistanceUnit))
	return err
}

type speciesRow struct {
	ID             int    `db:"id"`
	Name           string `db:"name"`
	NameAlt        string `db:"name_alt"`
	Type1          string `db:"type1"`
	Type2          string `db:"type2"`
	Description    string `db:"description"`
	DescriptionAlt string `db:"description_alt"`
	EvolvesFrom    int    `db:"evolves_from"`
	EvolvesTo      int    `db:"evolves_to"`
}

// SeedCatalog implements domain.CatalogStore.
func (s *Store) SeedCatalog(ctx context.Context, species []catalog.Species) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var progress int
	if err := tx.GetContext(ctx, &progress,
		`SELECT (SELECT COUNT(*) FROM owned_creatures) + (SELECT COUNT(*) FROM collection_entries)`); err != nil {
		return false, err
	}
	if progress > 0 {
		return false, nil
	}

	for _, sp := range species {
		row := speciesRow(sp)
		if _, err := tx.NamedExecContext(ctx,
			`INSERT OR REPLACE INTO species (id, name, name_alt, type1, type2, description, description_alt, evolves_from, evolves_to)
            VALUES (:id, :name, :name_alt, :type1, :type2, :description, :description_alt, :evolves_from, :evolves_to)`, row); err != nil {
			return false, fmt.Errorf("insert species %d: %w", sp.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO collection_entries (species_id, unlocked) VALUES (?, 0)`, sp.ID); err != nil {
			return false, fmt.Errorf("insert collection entry %d: %w", sp.ID, err)
		}
	}
	return true, tx.Commit()
}

// Species implements domain.CatalogStore.
func (s *Store) Species(ctx context.Context) ([]catalog.Species, error) {
	var rows []speciesRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM species ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]catalog.Species, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Species(r))
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
