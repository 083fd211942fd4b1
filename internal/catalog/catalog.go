// Package catalog holds the static creature species table and answers
// evolution-chain questions about it.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownSpecies is returned when a species id is not part of the catalog.
	ErrUnknownSpecies = errors.New("unknown species")
	// ErrCyclicChain is returned when walking an evolution chain does not reach a base species.
	ErrCyclicChain = errors.New("cyclic evolution chain")
	// ErrInvalidCatalog wraps structural problems found while building or validating a catalog.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Species is an immutable catalog entry. EvolvesFrom and EvolvesTo are zero when absent.
type Species struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	NameAlt        string `json:"name_alt,omitempty"`
	Type1          string `json:"type1"`
	Type2          string `json:"type2,omitempty"`
	Description    string `json:"description,omitempty"`
	DescriptionAlt string `json:"description_alt,omitempty"`
	EvolvesFrom    int    `json:"evolves_from"`
	EvolvesTo      int    `json:"evolves_to"`
}

// IsBase reports whether the species has no predecessor.
func (s Species) IsBase() bool {
	return s.EvolvesFrom == 0
}

// CanEvolve reports whether the species has a successor.
func (s Species) CanEvolve() bool {
	return s.EvolvesTo != 0
}

// Catalog is a read-only species table. It is safe for concurrent use.
type Catalog struct {
	byID    map[int]Species
	ordered []Species
}

// New builds a catalog from already-linked species. Ids must be positive and unique.
// Chain shape is not checked here; see Validate.
func New(species []Species) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[int]Species, len(species)),
		ordered: make([]Species, 0, len(species)),
	}
	for _, s := range species {
		if s.ID <= 0 {
			return nil, fmt.Errorf("%w: species id must be positive, got %d", ErrInvalidCatalog, s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate species id %d", ErrInvalidCatalog, s.ID)
		}
		c.byID[s.ID] = s
		c.ordered = append(c.ordered, s)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })
	return c, nil
}

// Len returns the number of species.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// Get returns the species with the given id.
func (c *Catalog) Get(id int) (Species, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// MustExist returns the species or ErrUnknownSpecies.
func (c *Catalog) MustExist(id int) (Species, error) {
	s, ok := c.byID[id]
	if !ok {
		return Species{}, fmt.Errorf("%w: %d", ErrUnknownSpecies, id)
	}
	return s, nil
}

// All returns every species ordered by id.
func (c *Catalog) All() []Species {
	out := make([]Species, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// IDs returns every species id in ascending order.
func (c *Catalog) IDs() []int {
	out := make([]int, 0, len(c.ordered))
	for _, s := range c.ordered {
		out = append(out, s.ID)
	}
	return out
}

// BaseSpecies returns the species that have no predecessor, ordered by id.
func (c *Catalog) BaseSpecies() []Species {
	out := make([]Species, 0)
	for _, s := range c.ordered {
		if s.IsBase() {
			out = append(out, s)
		}
	}
	return out
}

// EvolvesFrom returns the predecessor id (0 for base species).
func (c *Catalog) EvolvesFrom(id int) (int, error) {
	s, err := c.MustExist(id)
	if err != nil {
		return 0, err
	}
	return s.EvolvesFrom, nil
}

// EvolvesTo returns the successor id (0 for final forms).
func (c *Catalog) EvolvesTo(id int) (int, error) {
	s, err := c.MustExist(id)
	if err != nil {
		return 0, err
	}
	return s.EvolvesTo, nil
}

// Stage returns the distance from the chain's base species (base = 0).
// The walk is bounded by the catalog size so a corrupted table cannot loop forever.
func (c *Catalog) Stage(id int) (int, error) {
	current, err := c.MustExist(id)
	if err != nil {
		return 0, err
	}
	stage := 0
	for current.EvolvesFrom != 0 {
		if stage >= len(c.ordered) {
			return 0, fmt.Errorf("%w: species %d", ErrCyclicChain, id)
		}
		prev, ok := c.byID[current.EvolvesFrom]
		if !ok {
			return 0, fmt.Errorf("%w: %d (predecessor of %d)", ErrUnknownSpecies, current.EvolvesFrom, current.ID)
		}
		current = prev
		stage++
	}
	return stage, nil
}

// Chain returns the full evolution line containing id, base first.
func (c *Catalog) Chain(id int) ([]Species, error) {
	stage, err := c.Stage(id)
	if err != nil {
		return nil, err
	}
	base := c.byID[id]
	for i := 0; i < stage; i++ {
		base = c.byID[base.EvolvesFrom]
	}

	chain := []Species{base}
	current := base
	for current.EvolvesTo != 0 {
		if len(chain) > len(c.ordered) {
			return nil, fmt.Errorf("%w: species %d", ErrCyclicChain, id)
		}
		next, ok := c.byID[current.EvolvesTo]
		if !ok {
			return nil, fmt.Errorf("%w: %d (successor of %d)", ErrUnknownSpecies, current.EvolvesTo, current.ID)
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

// Validate checks that every link points at an existing species, that links are
// mutual, and that every chain terminates at a base species.
func (c *Catalog) Validate() error {
	var errs []error
	for _, s := range c.ordered {
		if s.EvolvesFrom == s.ID || s.EvolvesTo == s.ID {
			errs = append(errs, fmt.Errorf("species %d links to itself", s.ID))
			continue
		}
		if s.EvolvesFrom != 0 {
			prev, ok := c.byID[s.EvolvesFrom]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("species %d evolves from unknown species %d", s.ID, s.EvolvesFrom))
			case prev.EvolvesTo != s.ID:
				errs = append(errs, fmt.Errorf("species %d evolves from %d but %d evolves to %d", s.ID, prev.ID, prev.ID, prev.EvolvesTo))
			}
		}
		if s.EvolvesTo != 0 {
			next, ok := c.byID[s.EvolvesTo]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("species %d evolves to unknown species %d", s.ID, s.EvolvesTo))
			case next.EvolvesFrom != s.ID:
				errs = append(errs, fmt.Errorf("species %d evolves to %d but %d evolves from %d", s.ID, next.ID, next.ID, next.EvolvesFrom))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}

	for _, s := range c.ordered {
		if _, err := c.Stage(s.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
	}
	return nil
}
