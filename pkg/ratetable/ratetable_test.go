package ratetable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	network, err := reg.Resolve(models.SchemeNetwork, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "network-2024-01", network.Version)

	gold, err := network.Tier("gold")
	require.NoError(t, err)
	assert.True(t, money.Percent(6).Equal(gold.Total))
	assert.Equal(t, 45, network.HoldDaysFor(gold))

	direct, err := reg.Resolve(models.SchemeDirect, time.Now())
	require.NoError(t, err)
	diamond, err := direct.Tier("diamond")
	require.NoError(t, err)
	assert.True(t, money.Percent(15).Equal(diamond.Total))

	_, err = direct.Tier("obsidian")
	var tierErr *apperrors.UnknownTierError
	assert.ErrorAs(t, err, &tierErr)
}

func TestSplitFor(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	direct, err := reg.Resolve(models.SchemeDirect, time.Now())
	require.NoError(t, err)

	assert.Len(t, direct.SplitFor(1), 1)
	assert.Len(t, direct.SplitFor(3), 1, "falls back to the longest configured split")
}

const versioned = `
tables:
  - version: v1
    scheme: network
    effective_from: 2024-01-01T00:00:00Z
    house_beneficiary_id: house
    tiers:
      gold: { total: "6%" }
    splits:
      1: ["1"]
  - version: v2
    scheme: network
    effective_from: 2025-01-01T00:00:00Z
    house_beneficiary_id: house
    tiers:
      gold: { total: "7%", hold_days: 30 }
    splits:
      1: ["1"]
`

func TestResolveByEffectiveDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(versioned), 0o600))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, reg.Versions(models.SchemeNetwork))

	tests := []struct {
		at      time.Time
		version string
	}{
		{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "v1"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "v2"},
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "v2"},
	}
	for _, tt := range tests {
		table, err := reg.Resolve(models.SchemeNetwork, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.version, table.Version)
	}

	_, err = reg.Resolve(models.SchemeNetwork, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, apperrors.IsInputError(err))

	_, err = reg.Resolve(models.SchemeDirect, time.Now())
	var schemeErr *apperrors.UnknownSchemeError
	assert.ErrorAs(t, err, &schemeErr)

	v2, err := reg.Resolve(models.SchemeNetwork, time.Now())
	require.NoError(t, err)
	gold, err := v2.Tier("gold")
	require.NoError(t, err)
	assert.Equal(t, 30, v2.HoldDaysFor(gold))
}

func TestValidateRejectsBadTables(t *testing.T) {
	base := func() Table {
		return Table{
			Version:            "v",
			Scheme:             models.SchemeNetwork,
			HouseBeneficiaryID: "house",
			Tiers:              map[string]TierRate{"gold": {Total: money.Percent(6)}},
			Splits:             map[int][]money.Rate{2: {money.NewRate(2, 3), money.NewRate(1, 3)}},
		}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(*Table){
		"split does not sum to one": func(t *Table) { t.Splits[2] = []money.Rate{money.NewRate(1, 2), money.NewRate(1, 3)} },
		"split length mismatch":     func(t *Table) { t.Splits[3] = []money.Rate{money.One} },
		"chain too long":            func(t *Table) { t.Splits[4] = []money.Rate{money.One, money.Zero, money.Zero, money.Zero} },
		"zero total":                func(t *Table) { t.Tiers["gold"] = TierRate{Total: money.Zero} },
		"unknown scheme":            func(t *Table) { t.Scheme = "pyramid" },
		"missing house":             func(t *Table) { t.HouseBeneficiaryID = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			tbl := base()
			mutate(&tbl)
			assert.Error(t, tbl.Validate())
		})
	}
}

func TestParseRejectsDuplicateVersions(t *testing.T) {
	dup := versioned + `
  - version: v1
    scheme: direct
    effective_from: 2024-01-01T00:00:00Z
    house_beneficiary_id: house
    tiers:
      gold: { total: "10%" }
    splits:
      1: ["1"]
`
	_, err := Parse([]byte(dup))
	assert.ErrorContains(t, err, "duplicate")
}
