package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/hatchery/internal/config"
	"example.com/hatchery/internal/persistence/memory"
)

const speciesYAML = `
- id: 1
  name: Sproutle
  type1: grass
  evolves_to: 2
- id: 2
  name: Sprouttree
  type1: grass
- id: 3
  name: Emberpup
  type1: fire
`

func TestLoadCatalogSeedsThenRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "species.yaml")
	require.NoError(t, os.WriteFile(path, []byte(speciesYAML), 0o600))

	store := memory.New()
	cat, err := LoadCatalog(ctx, path, store, slog.Default())
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())
	from, err := cat.EvolvesFrom(2)
	require.NoError(t, err)
	require.Equal(t, 1, from)

	rebuilt, err := LoadCatalog(ctx, "", store, slog.Default())
	require.NoError(t, err)
	require.Equal(t, cat.All(), rebuilt.All())
}

func TestLoadCatalogRequiresSource(t *testing.T) {
	_, err := LoadCatalog(context.Background(), "", memory.New(), slog.Default())
	require.ErrorIs(t, err, ErrNoCatalog)
}

func TestOpenStoreSQLite(t *testing.T) {
	store, err := OpenStore(context.Background(), config.Config{
		StoreDriver: config.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "hatchery.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
