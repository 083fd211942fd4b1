package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"
)

// Format names a bulk-load encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// Record is one row of an external species data file. Evolution links may be
// given in either direction; Build derives the other side.
type Record struct {
	ID             int    `json:"id" csv:"id" yaml:"id"`
	Name           string `json:"name" csv:"name" yaml:"name"`
	NameAlt        string `json:"name_alt" csv:"name_alt" yaml:"name_alt"`
	Type1          string `json:"type1" csv:"type1" yaml:"type1"`
	Type2          string `json:"type2" csv:"type2" yaml:"type2"`
	Description    string `json:"description" csv:"description" yaml:"description"`
	DescriptionAlt string `json:"description_alt" csv:"description_alt" yaml:"description_alt"`
	EvolvesFrom    int    `json:"evolves_from" csv:"evolves_from" yaml:"evolves_from"`
	EvolvesTo      int    `json:"evolves_to" csv:"evolves_to" yaml:"evolves_to"`
}

// FormatFromPath picks a Format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
	}
}

// Decode reads an ordered sequence of species records.
func Decode(r io.Reader, format Format) ([]Record, error) {
	var records []Record
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, fmt.Errorf("decode json catalog: %w", err)
		}
	case FormatCSV:
		if err := gocsv.Unmarshal(r, &records); err != nil {
			return nil, fmt.Errorf("decode csv catalog: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&records); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("decode yaml catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return records, nil
}

// Build turns records into a validated catalog. Missing reverse links are
// filled in once here so callers never maintain both directions by hand.
func Build(records []Record) (*Catalog, error) {
	species := make([]Species, len(records))
	index := make(map[int]int, len(records))
	for i, r := range records {
		species[i] = Species{
			ID:             r.ID,
			Name:           strings.TrimSpace(r.Name),
			NameAlt:        strings.TrimSpace(r.NameAlt),
			Type1:          strings.TrimSpace(r.Type1),
			Type2:          strings.TrimSpace(r.Type2),
			Description:    strings.TrimSpace(r.Description),
			DescriptionAlt: strings.TrimSpace(r.DescriptionAlt),
			EvolvesFrom:    r.EvolvesFrom,
			EvolvesTo:      r.EvolvesTo,
		}
		if _, dup := index[r.ID]; !dup {
			index[r.ID] = i
		}
	}

	for i := range species {
		s := species[i]
		if s.EvolvesTo != 0 {
			j, ok := index[s.EvolvesTo]
			if !ok {
				return nil, fmt.Errorf("%w: species %d evolves to unknown species %d", ErrInvalidCatalog, s.ID, s.EvolvesTo)
			}
			switch species[j].EvolvesFrom {
			case 0:
				species[j].EvolvesFrom = s.ID
			case s.ID:
			default:
				return nil, fmt.Errorf("%w: species %d claimed as successor by %d and %d", ErrInvalidCatalog, species[j].ID, species[j].EvolvesFrom, s.ID)
			}
		}
		if s.EvolvesFrom != 0 {
			j, ok := index[s.EvolvesFrom]
			if !ok {
				return nil, fmt.Errorf("%w: species %d evolves from unknown species %d", ErrInvalidCatalog, s.ID, s.EvolvesFrom)
			}
			switch species[j].EvolvesTo {
			case 0:
				species[j].EvolvesTo = s.ID
			case s.ID:
			default:
				return nil, fmt.Errorf("%w: species %d has successors %d and %d", ErrInvalidCatalog, species[j].ID, species[j].EvolvesTo, s.ID)
			}
		}
	}

	c, err := New(species)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile decodes and builds a catalog from a JSON, CSV or YAML file.
func LoadFile(path string) (*Catalog, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	records, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s contains no species", ErrInvalidCatalog, path)
	}
	return Build(records)
}
