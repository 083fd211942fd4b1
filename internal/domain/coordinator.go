package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/events"
	"example.com/hatchery/internal/observability"
)

var tracer = otel.Tracer("hatchery/domain")

var (
	acquireCost = Reward{Eggs: 1, Candies: 1}
	evolveCost  = Reward{Candies: 1}
)

// Stores groups the three stores the coordinator keeps mutually consistent.
type Stores struct {
	Inventory  InventoryStore
	Collection CollectionStore
	Ownership  OwnershipStore
}

// Coordinator runs the multi-store reward operations. Acquire, Evolve and
// Reconcile are serialised by a single mutex; inventory credits only rely on
// the inventory store's own atomicity.
type Coordinator struct {
	mu         sync.Mutex
	catalog    *catalog.Catalog
	inventory  InventoryStore
	collection CollectionStore
	ownership  OwnershipStore

	logger    *slog.Logger
	publisher EventPublisher
	intn      func(int) int
	now       func() time.Time
	newID     func() string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) CoordinatorOption {
	return func(c *Coordinator) {
		if publisher != nil {
			c.publisher = publisher
		}
	}
}

// WithRandom replaces the species selection source. The coordinator mutex
// guards every call, so r need not be safe for concurrent use.
func WithRandom(r *rand.Rand) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.intn = r.IntN
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator sets the instance id generator.
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(c *Coordinator) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewCoordinator constructs a Coordinator over a validated catalog.
func NewCoordinator(cat *catalog.Catalog, stores Stores, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		catalog:    cat,
		inventory:  stores.Inventory,
		collection: stores.Collection,
		ownership:  stores.Ownership,
		logger:     slog.Default(),
		publisher:  NoopPublisher{},
		intn:       rand.IntN,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the species table the coordinator resolves against.
func (c *Coordinator) Catalog() *catalog.Catalog {
	return c.catalog
}

// Credit adds a workout reward to the inventory.
func (c *Coordinator) Credit(ctx context.Context, reward Reward) (Inventory, error) {
	if reward.Eggs < 0 || reward.Candies < 0 {
		return Inventory{}, ErrInvalidAmount
	}
	inv, err := c.inventory.AddCurrency(ctx, reward.Eggs, reward.Candies)
	if err != nil {
		return Inventory{}, storeErr("add currency", err)
	}
	observability.RecordCredited(reward.Eggs, reward.Candies)
	observability.RecordBalance(inv.Eggs, inv.RareCandies)
	return inv, nil
}

// Acquire spends one egg and one rare candy on a uniformly random base-stage
// species not yet owned, creates the instance and unlocks its collection entry.
func (c *Coordinator) Acquire(ctx context.Context) (*OwnedCreature, error) {
	ctx, span := tracer.Start(ctx, "coordinator.Acquire")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	creature, err := c.acquireLocked(ctx)
	observability.RecordAcquisition(outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("creature.instance_id", creature.InstanceID),
		attribute.Int("creature.species_id", creature.SpeciesID),
	)

	c.publish(ctx, Event{
		Type: events.TypeCreatureAcquired,
		Key:  creature.InstanceID,
		Payload: events.CreatureAcquired{
			InstanceID: creature.InstanceID,
			SpeciesID:  creature.SpeciesID,
			AcquiredAt: creature.AcquiredAt,
		},
		OccurredAt: creature.AcquiredAt,
	})
	return creature, nil
}

func (c *Coordinator) acquireLocked(ctx context.Context) (*OwnedCreature, error) {
	ok, err := c.inventory.TryConsume(ctx, acquireCost.Eggs, acquireCost.Candies)
	if err != nil {
		return nil, storeErr("consume currency", err)
	}
	if !ok {
		return nil, ErrInsufficientResources
	}
	observability.RecordConsumed(acquireCost.Eggs, acquireCost.Candies)

	pool, err := c.eligiblePool(ctx)
	if err != nil {
		return nil, c.refund(ctx, "acquire", acquireCost, err)
	}
	if len(pool) == 0 {
		return nil, c.refund(ctx, "acquire", acquireCost, ErrNoEligibleSpecies)
	}

	selected := pool[c.intn(len(pool))]
	now := c.now().UTC()
	creature := OwnedCreature{
		InstanceID:      c.newID(),
		SpeciesID:       selected.ID,
		OriginSpeciesID: selected.ID,
		AcquiredAt:      now,
	}
	if err := c.ownership.CreateCreature(ctx, creature); err != nil {
		return nil, c.refund(ctx, "acquire", acquireCost, storeErr("create creature", err))
	}

	// The creature exists from here on, so currency is not returned; the
	// missing unlock is repaired by Reconcile.
	if err := c.collection.Unlock(ctx, selected.ID, now); err != nil {
		inconsistent := &InconsistentStateError{Op: "acquire", Cause: storeErr("unlock species", err)}
		c.logger.Error("acquisition left collection entry locked",
			"instance_id", creature.InstanceID,
			"species_id", selected.ID,
			"error", inconsistent,
		)
		return nil, inconsistent
	}
	return &creature, nil
}

// eligiblePool lists base-stage species that are neither the origin nor the
// current species of any owned instance. It is recomputed on every call.
func (c *Coordinator) eligiblePool(ctx context.Context) ([]catalog.Species, error) {
	owned, err := c.ownership.ListCreatures(ctx)
	if err != nil {
		return nil, storeErr("list creatures", err)
	}
	taken := make(map[int]struct{}, len(owned)*2)
	for _, o := range owned {
		taken[o.SpeciesID] = struct{}{}
		taken[o.OriginSpeciesID] = struct{}{}
	}

	pool := make([]catalog.Species, 0)
	for _, s := range c.catalog.BaseSpecies() {
		if _, ok := taken[s.ID]; !ok {
			pool = append(pool, s)
		}
	}
	return pool, nil
}

// Evolve spends one rare candy to move an owned creature to its successor
// species. The instance id never changes.
func (c *Coordinator) Evolve(ctx context.Context, instanceID string) (*EvolutionOutcome, error) {
	ctx, span := tracer.Start(ctx, "coordinator.Evolve",
		trace.WithAttributes(attribute.String("creature.instance_id", instanceID)),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	outcome, err := c.evolveLocked(ctx, instanceID)
	observability.RecordEvolution(outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evolve failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("creature.from_species_id", outcome.FromSpeciesID),
		attribute.Int("creature.to_species_id", outcome.ToSpeciesID),
	)

	now := c.now().UTC()
	c.publish(ctx, Event{
		Type: events.TypeCreatureEvolved,
		Key:  outcome.InstanceID,
		Payload: events.CreatureEvolved{
			InstanceID:    outcome.InstanceID,
			FromSpeciesID: outcome.FromSpeciesID,
			ToSpeciesID:   outcome.ToSpeciesID,
			EvolvedAt:     now,
		},
		OccurredAt: now,
	})
	return outcome, nil
}

func (c *Coordinator) evolveLocked(ctx context.Context, instanceID string) (*EvolutionOutcome, error) {
	creature, current, target, err := c.resolveEvolution(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	ok, err := c.inventory.TryConsume(ctx, evolveCost.Eggs, evolveCost.Candies)
	if err != nil {
		return nil, storeErr("consume currency", err)
	}
	if !ok {
		return nil, ErrInsufficientCandies
	}
	observability.RecordConsumed(evolveCost.Eggs, evolveCost.Candies)

	now := c.now().UTC()
	if err := c.ownership.SetCreatureSpecies(ctx, instanceID, target.ID, &now); err != nil {
		return nil, c.refund(ctx, "evolve", evolveCost, storeErr("update creature species", err))
	}

	if err := c.collection.Unlock(ctx, target.ID, now); err != nil {
		cause := storeErr("unlock species", err)
		if revertErr := c.ownership.SetCreatureSpecies(ctx, instanceID, current.ID, creature.EvolvedAt); revertErr != nil {
			inconsistent := &InconsistentStateError{
				Op:    "evolve",
				Cause: errors.Join(cause, storeErr("revert creature species", revertErr)),
			}
			c.logger.Error("evolution left collection entry locked",
				"instance_id", instanceID,
				"species_id", target.ID,
				"error", inconsistent,
			)
			return nil, inconsistent
		}
		return nil, c.refund(ctx, "evolve", evolveCost, cause)
	}

	return &EvolutionOutcome{
		InstanceID:    instanceID,
		FromSpeciesID: current.ID,
		ToSpeciesID:   target.ID,
	}, nil
}

// resolveEvolution loads the instance and its current and target species.
func (c *Coordinator) resolveEvolution(ctx context.Context, instanceID string) (*OwnedCreature, catalog.Species, catalog.Species, error) {
	var none catalog.Species
	creature, err := c.ownership.GetCreature(ctx, instanceID)
	if err != nil {
		return nil, none, none, storeErr("get creature", err)
	}
	if creature == nil {
		return nil, none, none, ErrCreatureNotFound
	}

	current, err := c.catalog.MustExist(creature.SpeciesID)
	if err != nil {
		c.logger.Error("owned creature references unknown species",
			"instance_id", instanceID,
			"species_id", creature.SpeciesID,
		)
		return nil, none, none, integrityErr(err)
	}
	if !current.CanEvolve() {
		return nil, none, none, ErrCannotEvolve
	}
	target, err := c.catalog.MustExist(current.EvolvesTo)
	if err != nil {
		c.logger.Error("species evolves into unknown species",
			"species_id", current.ID,
			"evolves_to", current.EvolvesTo,
		)
		return nil, none, none, integrityErr(err)
	}
	return creature, current, target, nil
}

// refund returns consumed currency after a failed grant. It always returns an
// error: cause itself when the refund succeeds, or an *InconsistentStateError
// when it does not.
func (c *Coordinator) refund(ctx context.Context, op string, cost Reward, cause error) error {
	if _, err := c.inventory.AddCurrency(ctx, cost.Eggs, cost.Candies); err != nil {
		observability.RecordRefund(op, observability.OutcomeRefundFailed)
		inconsistent := &InconsistentStateError{Op: op, Cause: cause, RefundErr: storeErr("refund", err)}
		c.logger.Error("compensating refund failed",
			"operation", op,
			"eggs", cost.Eggs,
			"rare_candies", cost.Candies,
			"error", inconsistent,
		)
		return inconsistent
	}
	observability.RecordRefund(op, observability.OutcomeRefunded)
	c.logger.Warn("currency refunded", "operation", op, "reason", cause)

	now := c.now().UTC()
	c.publish(ctx, Event{
		Type: events.TypeCurrencyRefunded,
		Key:  op,
		Payload: events.CurrencyRefunded{
			Operation:   op,
			Eggs:        cost.Eggs,
			RareCandies: cost.Candies,
			Reason:      cause.Error(),
			OccurredAt:  now,
		},
		OccurredAt: now,
	})
	return cause
}

// EvolutionPreview describes what an evolution would do without performing it.
type EvolutionPreview struct {
	InstanceID string          `json:"instance_id"`
	From       catalog.Species `json:"from"`
	To         catalog.Species `json:"to"`
	Cost       Reward          `json:"cost"`
}

// PreviewEvolution resolves the successor of an owned creature.
func (c *Coordinator) PreviewEvolution(ctx context.Context, instanceID string) (*EvolutionPreview, error) {
	_, current, target, err := c.resolveEvolution(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return &EvolutionPreview{InstanceID: instanceID, From: current, To: target, Cost: evolveCost}, nil
}

// GetCreature returns a single owned creature.
func (c *Coordinator) GetCreature(ctx context.Context, instanceID string) (*OwnedCreature, error) {
	creature, err := c.ownership.GetCreature(ctx, instanceID)
	if err != nil {
		return nil, storeErr("get creature", err)
	}
	if creature == nil {
		return nil, ErrCreatureNotFound
	}
	return creature, nil
}

// Inventory returns the current balance.
func (c *Coordinator) Inventory(ctx context.Context) (Inventory, error) {
	inv, err := c.inventory.Inventory(ctx)
	if err != nil {
		return Inventory{}, storeErr("get inventory", err)
	}
	observability.RecordBalance(inv.Eggs, inv.RareCandies)
	return inv, nil
}

// OwnedCreatures lists every owned instance.
func (c *Coordinator) OwnedCreatures(ctx context.Context) ([]OwnedCreature, error) {
	owned, err := c.ownership.ListCreatures(ctx)
	if err != nil {
		return nil, storeErr("list creatures", err)
	}
	return owned, nil
}

// CollectionEntries lists the collection log, optionally only unlocked entries.
func (c *Coordinator) CollectionEntries(ctx context.Context, unlockedOnly bool) ([]CollectionEntry, error) {
	entries, err := c.collection.CollectionEntries(ctx)
	if err != nil {
		return nil, storeErr("list collection", err)
	}
	if !unlockedOnly {
		return entries, nil
	}
	out := make([]CollectionEntry, 0, len(entries))
	for _, e := range entries {
		if e.Unlocked {
			out = append(out, e)
		}
	}
	return out, nil
}

// CollectionProgress counts unlocked entries against the catalog size.
func (c *Coordinator) CollectionProgress(ctx context.Context) (CollectionProgress, error) {
	entries, err := c.CollectionEntries(ctx, true)
	if err != nil {
		return CollectionProgress{}, err
	}
	return CollectionProgress{Unlocked: len(entries), Total: c.catalog.Len()}, nil
}

// Reconcile unlocks the origin and current species of every owned creature
// whose entry is still locked, and returns how many entries it unlocked.
// Running it repeatedly is safe.
func (c *Coordinator) Reconcile(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "coordinator.Reconcile")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	owned, err := c.ownership.ListCreatures(ctx)
	if err != nil {
		return 0, storeErr("list creatures", err)
	}
	entries, err := c.collection.CollectionEntries(ctx)
	if err != nil {
		return 0, storeErr("list collection", err)
	}
	unlocked := make(map[int]bool, len(entries))
	for _, e := range entries {
		unlocked[e.SpeciesID] = e.Unlocked
	}

	repaired := 0
	var errs []error
	for _, o := range owned {
		for _, id := range []int{o.OriginSpeciesID, o.SpeciesID} {
			if id == 0 || unlocked[id] {
				continue
			}
			if err := c.collection.Unlock(ctx, id, c.now().UTC()); err != nil {
				errs = append(errs, fmt.Errorf("species %d: %w", id, err))
				continue
			}
			unlocked[id] = true
			repaired++
		}
	}
	observability.RecordReconciled(repaired)
	span.SetAttributes(attribute.Int("reconcile.repaired", repaired))
	if len(errs) > 0 {
		err := storeErr("reconcile", errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile incomplete")
		return repaired, err
	}
	if repaired > 0 {
		c.logger.Info("reconciled collection entries", "repaired", repaired)
	}
	return repaired, nil
}

func (c *Coordinator) publish(ctx context.Context, event Event) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("event publish failed", "event_type", event.Type, "key", event.Key, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, ErrInconsistentState):
		return observability.OutcomeInconsistent
	case errors.Is(err, ErrInsufficientResources), errors.Is(err, ErrInsufficientCandies):
		return observability.OutcomeInsufficient
	case errors.Is(err, ErrNoEligibleSpecies):
		return observability.OutcomeNoEligible
	case errors.Is(err, ErrCannotEvolve):
		return observability.OutcomeCannotEvolve
	case errors.Is(err, ErrCreatureNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrDataIntegrity):
		return observability.OutcomeIntegrity
	default:
		return observability.OutcomeStoreError
	}
}
