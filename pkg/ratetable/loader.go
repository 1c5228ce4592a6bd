package ratetable

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTables []byte

type fileTier struct {
	Total    string `yaml:"total"`
	HoldDays int    `yaml:"hold_days"`
}

type fileTable struct {
	Version            string              `yaml:"version"`
	Scheme             string              `yaml:"scheme"`
	EffectiveFrom      time.Time           `yaml:"effective_from"`
	HoldDays           int                 `yaml:"hold_days"`
	HouseBeneficiaryID string              `yaml:"house_beneficiary_id"`
	Tiers              map[string]fileTier `yaml:"tiers"`
	Splits             map[int][]string    `yaml:"splits"`
}

type file struct {
	Tables []fileTable `yaml:"tables"`
}

// Default returns the registry built from the embedded tables.
func Default() (*Registry, error) {
	return Parse(defaultTables)
}

// LoadFile reads tables from path, or the embedded defaults when path is empty.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate tables %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rate tables: %w", err)
	}
	if len(f.Tables) == 0 {
		return nil, fmt.Errorf("rate table file defines no tables")
	}

	tables := make([]Table, 0, len(f.Tables))
	for _, ft := range f.Tables {
		t, err := ft.toTable()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return NewRegistry(tables...)
}

func (ft fileTable) toTable() (Table, error) {
	t := Table{
		Version:            ft.Version,
		Scheme:             models.Scheme(ft.Scheme),
		EffectiveFrom:      ft.EffectiveFrom.UTC(),
		HoldDays:           ft.HoldDays,
		HouseBeneficiaryID: ft.HouseBeneficiaryID,
		Tiers:              make(map[string]TierRate, len(ft.Tiers)),
		Splits:             make(map[int][]money.Rate, len(ft.Splits)),
	}
	for name, tier := range ft.Tiers {
		total, err := money.ParseRate(tier.Total)
		if err != nil {
			return Table{}, fmt.Errorf("rate table %s tier %s: %w", ft.Version, name, err)
		}
		t.Tiers[name] = TierRate{Total: total, HoldDays: tier.HoldDays}
	}
	for n, shares := range ft.Splits {
		row := make([]money.Rate, len(shares))
		for i, s := range shares {
			share, err := money.ParseRate(s)
			if err != nil {
				return Table{}, fmt.Errorf("rate table %s split %d: %w", ft.Version, n, err)
			}
			row[i] = share
		}
		t.Splits[n] = row
	}
	return t, nil
}
