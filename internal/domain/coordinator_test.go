package domain_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/events"
	"example.com/hatchery/internal/persistence/memory"
)

var errBoom = errors.New("store offline")

// faultyStore wraps the memory store and fails selected writes.
type faultyStore struct {
	*memory.Store
	createErr      error
	unlockErr      error
	addErr         error
	setSpeciesErrs []error
}

func (f *faultyStore) CreateCreature(ctx context.Context, c domain.OwnedCreature) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.CreateCreature(ctx, c)
}

func (f *faultyStore) Unlock(ctx context.Context, speciesID int, at time.Time) error {
	if f.unlockErr != nil {
		return f.unlockErr
	}
	return f.Store.Unlock(ctx, speciesID, at)
}

func (f *faultyStore) AddCurrency(ctx context.Context, eggs, candies int) (domain.Inventory, error) {
	if f.addErr != nil {
		return domain.Inventory{}, f.addErr
	}
	return f.Store.AddCurrency(ctx, eggs, candies)
}

func (f *faultyStore) SetCreatureSpecies(ctx context.Context, id string, speciesID int, at *time.Time) error {
	if len(f.setSpeciesErrs) > 0 {
		err := f.setSpeciesErrs[0]
		f.setSpeciesErrs = f.setSpeciesErrs[1:]
		if err != nil {
			return err
		}
	}
	return f.Store.SetCreatureSpecies(ctx, id, speciesID, at)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func buildCatalog(t *testing.T, records ...catalog.Record) *catalog.Catalog {
	t.Helper()
	if len(records) == 0 {
		records = []catalog.Record{
			{ID: 1, Name: "Sproutle", Type1: "grass", EvolvesTo: 2},
			{ID: 2, Name: "Sprouttree", Type1: "grass", EvolvesTo: 3},
			{ID: 3, Name: "Sproutking", Type1: "grass"},
			{ID: 4, Name: "Embercub", Type1: "fire", EvolvesTo: 5},
			{ID: 5, Name: "Emberlord", Type1: "fire"},
			{ID: 6, Name: "Pebblit", Type1: "rock"},
		}
	}
	c, err := catalog.Build(records)
	require.NoError(t, err)
	return c
}

type fixture struct {
	store     *faultyStore
	coord     *domain.Coordinator
	publisher *recordingPublisher
}

func newFixture(t *testing.T, cat *catalog.Catalog, inv domain.Inventory) *fixture {
	t.Helper()
	ctx := context.Background()
	store := &faultyStore{Store: memory.New()}
	seeded, err := store.SeedCatalog(ctx, cat.All())
	require.NoError(t, err)
	require.True(t, seeded)
	_, err = store.AddCurrency(ctx, inv.Eggs, inv.RareCandies)
	require.NoError(t, err)

	var seq atomic.Int64
	pub := &recordingPublisher{}
	coord := domain.NewCoordinator(cat,
		domain.Stores{Inventory: store, Collection: store, Ownership: store},
		domain.WithPublisher(pub),
		domain.WithRandom(rand.New(rand.NewPCG(7, 11))),
		domain.WithIDGenerator(func() string { return fmt.Sprintf("c-%d", seq.Add(1)) }),
	)
	return &fixture{store: store, coord: coord, publisher: pub}
}

func (f *fixture) own(t *testing.T, id string, speciesID, originID int) {
	t.Helper()
	require.NoError(t, f.store.Store.CreateCreature(context.Background(), domain.OwnedCreature{
		InstanceID:      id,
		SpeciesID:       speciesID,
		OriginSpeciesID: originID,
		AcquiredAt:      time.Now().UTC(),
	}))
}

func (f *fixture) inventory(t *testing.T) domain.Inventory {
	t.Helper()
	inv, err := f.store.Inventory(context.Background())
	require.NoError(t, err)
	return inv
}

func (f *fixture) unlocked(t *testing.T, speciesID int) bool {
	t.Helper()
	entries, err := f.store.CollectionEntries(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		if e.SpeciesID == speciesID {
			return e.Unlocked
		}
	}
	return false
}

func TestAcquireGrantsOnlyEligibleSpecies(t *testing.T) {
	cat := buildCatalog(t,
		catalog.Record{ID: 1, Name: "Sproutle", EvolvesTo: 2},
		catalog.Record{ID: 2, Name: "Sprouttree"},
	)
	f := newFixture(t, cat, domain.Inventory{Eggs: 1, RareCandies: 1})

	creature, err := f.coord.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, creature.SpeciesID)
	require.Equal(t, 1, creature.OriginSpeciesID)
	require.NotEmpty(t, creature.InstanceID)
	require.True(t, f.unlocked(t, 1))
	require.False(t, f.unlocked(t, 2))
	require.Equal(t, domain.Inventory{}, f.inventory(t))
	require.Equal(t, []string{events.TypeCreatureAcquired}, f.publisher.types())
}

func TestAcquireInsufficientResourcesLeavesInventory(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 0, RareCandies: 1})

	_, err := f.coord.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrInsufficientResources)
	require.Equal(t, domain.Inventory{Eggs: 0, RareCandies: 1}, f.inventory(t))

	owned, err := f.coord.OwnedCreatures(context.Background())
	require.NoError(t, err)
	require.Empty(t, owned)
}

func TestAcquireEmptyPoolRefunds(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 1, RareCandies: 1})
	f.own(t, "a", 1, 1)
	f.own(t, "b", 4, 4)
	f.own(t, "c", 6, 6)

	_, err := f.coord.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrNoEligibleSpecies)
	require.Equal(t, domain.Inventory{Eggs: 1, RareCandies: 1}, f.inventory(t))
	require.Equal(t, []string{events.TypeCurrencyRefunded}, f.publisher.types())
}

func TestAcquireExcludesOriginOfEvolvedCreatures(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 1, RareCandies: 1})
	f.own(t, "a", 2, 1)
	f.own(t, "b", 6, 6)

	creature, err := f.coord.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, creature.SpeciesID)
}

func TestAcquireNeverSelectsEvolvedSpecies(t *testing.T) {
	base := map[int]bool{1: true, 4: true, 6: true}
	for i := 0; i < 20; i++ {
		f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 3, RareCandies: 3})
		seen := map[int]bool{}
		for j := 0; j < 3; j++ {
			creature, err := f.coord.Acquire(context.Background())
			require.NoError(t, err)
			require.True(t, base[creature.SpeciesID])
			require.False(t, seen[creature.SpeciesID])
			seen[creature.SpeciesID] = true
		}
		_, err := f.coord.Acquire(context.Background())
		require.ErrorIs(t, err, domain.ErrInsufficientResources)
	}
}

func TestAcquireCreateFailureRefunds(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 2, RareCandies: 2})
	f.store.createErr = errBoom

	_, err := f.coord.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, domain.ErrInconsistentState)
	require.Equal(t, domain.Inventory{Eggs: 2, RareCandies: 2}, f.inventory(t))
}

func TestAcquireRefundFailureSignalsInconsistency(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 1, RareCandies: 1})
	f.store.createErr = errBoom
	f.store.addErr = errors.New("refund rejected")

	_, err := f.coord.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrInconsistentState)
	var inconsistent *domain.InconsistentStateError
	require.ErrorAs(t, err, &inconsistent)
	require.Equal(t, "acquire", inconsistent.Op)
	require.Error(t, inconsistent.RefundErr)
	require.Equal(t, domain.Inventory{}, f.inventory(t))
}

func TestAcquireUnlockFailureIsRepairedByReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 1, RareCandies: 1})
	f.store.unlockErr = errBoom

	_, err := f.coord.Acquire(ctx)
	require.ErrorIs(t, err, domain.ErrInconsistentState)
	require.Equal(t, domain.Inventory{}, f.inventory(t))

	owned, err := f.coord.OwnedCreatures(ctx)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.False(t, f.unlocked(t, owned[0].SpeciesID))

	f.store.unlockErr = nil
	repaired, err := f.coord.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.True(t, f.unlocked(t, owned[0].SpeciesID))

	repaired, err = f.coord.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, repaired)
}

func TestEvolveAdvancesSpeciesAndKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: 1})
	f.own(t, "pet", 1, 1)

	outcome, err := f.coord.Evolve(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, domain.EvolutionOutcome{InstanceID: "pet", FromSpeciesID: 1, ToSpeciesID: 2}, *outcome)

	creature, err := f.coord.GetCreature(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 2, creature.SpeciesID)
	require.Equal(t, 1, creature.OriginSpeciesID)
	require.NotNil(t, creature.EvolvedAt)
	require.True(t, f.unlocked(t, 2))
	require.Equal(t, domain.Inventory{}, f.inventory(t))
	require.Equal(t, []string{events.TypeCreatureEvolved}, f.publisher.types())
}

func TestEvolveFinalFormCannotEvolve(t *testing.T) {
	for _, candies := range []int{0, 1, 5} {
		f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: candies})
		f.own(t, "pet", 3, 1)

		_, err := f.coord.Evolve(context.Background(), "pet")
		require.ErrorIs(t, err, domain.ErrCannotEvolve)
		require.Equal(t, candies, f.inventory(t).RareCandies)
	}
}

func TestEvolveInsufficientCandies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 4})
	f.own(t, "pet", 4, 4)

	_, err := f.coord.Evolve(ctx, "pet")
	require.ErrorIs(t, err, domain.ErrInsufficientCandies)

	creature, err := f.coord.GetCreature(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 4, creature.SpeciesID)
	require.False(t, f.unlocked(t, 5))
	require.Equal(t, domain.Inventory{Eggs: 4}, f.inventory(t))
}

func TestEvolveUnknownCreatureAndSpecies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: 1})

	_, err := f.coord.Evolve(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrCreatureNotFound)

	f.own(t, "ghost", 99, 99)
	_, err = f.coord.Evolve(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrDataIntegrity)
	require.Equal(t, 1, f.inventory(t).RareCandies)
}

func TestEvolveMissingTargetIsDataIntegrityError(t *testing.T) {
	cat, err := catalog.New([]catalog.Species{{ID: 1, Name: "Orphan", EvolvesTo: 42}})
	require.NoError(t, err)
	f := newFixture(t, cat, domain.Inventory{RareCandies: 1})
	f.own(t, "pet", 1, 1)

	_, err = f.coord.Evolve(context.Background(), "pet")
	require.ErrorIs(t, err, domain.ErrDataIntegrity)
	require.Equal(t, 1, f.inventory(t).RareCandies)
}

func TestEvolveSpeciesUpdateFailureRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: 1})
	f.own(t, "pet", 1, 1)
	f.store.setSpeciesErrs = []error{errBoom}

	_, err := f.coord.Evolve(ctx, "pet")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Equal(t, 1, f.inventory(t).RareCandies)

	creature, err := f.coord.GetCreature(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 1, creature.SpeciesID)
}

func TestEvolveUnlockFailureRevertsAndRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: 1})
	f.own(t, "pet", 1, 1)
	f.store.unlockErr = errBoom

	_, err := f.coord.Evolve(ctx, "pet")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NotErrorIs(t, err, domain.ErrInconsistentState)
	require.Equal(t, 1, f.inventory(t).RareCandies)

	creature, err := f.coord.GetCreature(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 1, creature.SpeciesID)
	require.Nil(t, creature.EvolvedAt)
}

func TestEvolveUnlockAndRevertFailureSignalsInconsistency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{RareCandies: 1})
	f.own(t, "pet", 1, 1)
	f.store.unlockErr = errBoom
	f.store.setSpeciesErrs = []error{nil, errors.New("revert rejected")}

	_, err := f.coord.Evolve(ctx, "pet")
	require.ErrorIs(t, err, domain.ErrInconsistentState)

	creature, err := f.coord.GetCreature(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 2, creature.SpeciesID)

	f.store.unlockErr = nil
	repaired, err := f.coord.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repaired)
	require.True(t, f.unlocked(t, 2))
}

func TestPreviewEvolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{})
	f.own(t, "pet", 4, 4)
	f.own(t, "done", 5, 4)

	preview, err := f.coord.PreviewEvolution(ctx, "pet")
	require.NoError(t, err)
	require.Equal(t, 4, preview.From.ID)
	require.Equal(t, "Emberlord", preview.To.Name)
	require.Equal(t, domain.Reward{Candies: 1}, preview.Cost)

	_, err = f.coord.PreviewEvolution(ctx, "done")
	require.ErrorIs(t, err, domain.ErrCannotEvolve)
}

func TestCollectionProgressAndFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 1, RareCandies: 2})
	creature, err := f.coord.Acquire(ctx)
	require.NoError(t, err)
	_, _ = f.coord.Evolve(ctx, creature.InstanceID)

	progress, err := f.coord.CollectionProgress(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, progress.Total)
	require.GreaterOrEqual(t, progress.Unlocked, 1)

	all, err := f.coord.CollectionEntries(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 6)

	unlocked, err := f.coord.CollectionEntries(ctx, true)
	require.NoError(t, err)
	require.Len(t, unlocked, progress.Unlocked)
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.AddCurrency(ctx, 50, 50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryConsume(ctx, 1, 1)
			if err == nil && ok {
				successes.Add(1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.AddCurrency(ctx, 1, 1)
		}()
	}
	wg.Wait()

	inv, err := store.Inventory(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, inv.Eggs, 0)
	require.GreaterOrEqual(t, inv.RareCandies, 0)
	require.Equal(t, inv.Eggs, inv.RareCandies)
	require.Equal(t, int64(60), successes.Load()+int64(inv.Eggs))
}

func TestConcurrentAcquisitionsShareOnePool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, buildCatalog(t), domain.Inventory{Eggs: 10, RareCandies: 10})

	var wg sync.WaitGroup
	var granted, empty atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Acquire(ctx)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, domain.ErrNoEligibleSpecies):
				empty.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(3), granted.Load())
	require.Equal(t, int64(7), empty.Load())
	require.Equal(t, domain.Inventory{Eggs: 7, RareCandies: 7}, f.inventory(t))

	owned, err := f.coord.OwnedCreatures(ctx)
	require.NoError(t, err)
	species := map[int]bool{}
	for _, o := range owned {
		require.False(t, species[o.SpeciesID])
		species[o.SpeciesID] = true
	}
}

func TestCreditRejectsNegativeAmounts(t *testing.T) {
	f := newFixture(t, buildCatalog(t), domain.Inventory{})
	_, err := f.coord.Credit(context.Background(), domain.Reward{Eggs: -1})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	inv, err := f.coord.Credit(context.Background(), domain.Reward{Eggs: 1, Candies: 2})
	require.NoError(t, err)
	require.Equal(t, domain.Inventory{Eggs: 1, RareCandies: 2}, inv)
}
