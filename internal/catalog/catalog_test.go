package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func starterRecords() []Record {
	return []Record{
		{ID: 1, Name: "Sproutle", Type1: "grass", Type2: "poison", EvolvesTo: 2},
		{ID: 2, Name: "Sprouttree", Type1: "grass", Type2: "poison", EvolvesTo: 3},
		{ID: 3, Name: "Sproutking", Type1: "grass", Type2: "poison"},
		{ID: 4, Name: "Embercub", Type1: "fire", EvolvesTo: 5},
		{ID: 5, Name: "Emberlord", Type1: "fire"},
		{ID: 6, Name: "Pebblit", Type1: "rock"},
	}
}

func TestBuildDerivesPredecessorLinks(t *testing.T) {
	c, err := Build(starterRecords())
	require.NoError(t, err)
	require.Equal(t, 6, c.Len())

	from, err := c.EvolvesFrom(3)
	require.NoError(t, err)
	require.Equal(t, 2, from)

	to, err := c.EvolvesTo(4)
	require.NoError(t, err)
	require.Equal(t, 5, to)

	base := c.BaseSpecies()
	ids := make([]int, 0, len(base))
	for _, s := range base {
		ids = append(ids, s.ID)
	}
	require.Equal(t, []int{1, 4, 6}, ids)
}

func TestBuildDerivesSuccessorLinks(t *testing.T) {
	c, err := Build([]Record{
		{ID: 10, Name: "Drip"},
		{ID: 11, Name: "Puddle", EvolvesFrom: 10},
	})
	require.NoError(t, err)

	s, ok := c.Get(10)
	require.True(t, ok)
	require.Equal(t, 11, s.EvolvesTo)
	require.True(t, s.CanEvolve())
}

func TestBuildRejectsBranchingChains(t *testing.T) {
	_, err := Build([]Record{
		{ID: 133, Name: "Kit", EvolvesTo: 134},
		{ID: 134, Name: "Aquakit"},
		{ID: 135, Name: "Voltkit", EvolvesFrom: 133},
	})
	require.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestBuildRejectsDanglingLinks(t *testing.T) {
	_, err := Build([]Record{{ID: 1, Name: "Lonely", EvolvesTo: 99}})
	require.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestNewRejectsDuplicateAndNonPositiveIDs(t *testing.T) {
	_, err := New([]Species{{ID: 1}, {ID: 1}})
	require.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = New([]Species{{ID: 0}})
	require.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestStageWalksToBase(t *testing.T) {
	c, err := Build(starterRecords())
	require.NoError(t, err)

	for id, want := range map[int]int{1: 0, 2: 1, 3: 2, 4: 0, 5: 1, 6: 0} {
		stage, err := c.Stage(id)
		require.NoError(t, err)
		require.Equalf(t, want, stage, "species %d", id)
	}

	_, err = c.Stage(42)
	require.ErrorIs(t, err, ErrUnknownSpecies)
}

func TestStageTerminatesOnCycle(t *testing.T) {
	c, err := New([]Species{
		{ID: 1, EvolvesFrom: 2, EvolvesTo: 2},
		{ID: 2, EvolvesFrom: 1, EvolvesTo: 1},
	})
	require.NoError(t, err)

	_, err = c.Stage(1)
	require.ErrorIs(t, err, ErrCyclicChain)

	require.ErrorIs(t, c.Validate(), ErrInvalidCatalog)
}

func TestChainReturnsWholeLine(t *testing.T) {
	c, err := Build(starterRecords())
	require.NoError(t, err)

	chain, err := c.Chain(2)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, 1, chain[0].ID)
	require.Equal(t, 3, chain[2].ID)
}

func TestDecodeFormats(t *testing.T) {
	jsonData := `[{"id":1,"name":"Sproutle","type1":"grass","evolves_to":2},{"id":2,"name":"Sprouttree","type1":"grass"}]`
	records, err := Decode(strings.NewReader(jsonData), FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 2, records[0].EvolvesTo)

	csvData := "id,name,name_alt,type1,type2,description,description_alt,evolves_from,evolves_to\n" +
		"1,Sproutle,,grass,poison,,,0,2\n" +
		"2,Sprouttree,,grass,poison,,,0,0\n"
	records, err = Decode(strings.NewReader(csvData), FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "poison", records[1].Type2)

	yamlData := "- id: 7\n  name: Shellby\n  type1: water\n"
	records, err = Decode(strings.NewReader(yamlData), FormatYAML)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Shellby", records[0].Name)
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "species.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":1,"name":"Pebblit","type1":"rock"}]`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	_, err = LoadFile(filepath.Join(dir, "species.txt"))
	require.Error(t, err)
}
