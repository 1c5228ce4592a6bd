package commission

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/Ramsey-B/fern/pkg/ratetable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tables(t *testing.T) *ratetable.Registry {
	t.Helper()
	reg, err := ratetable.Default()
	require.NoError(t, err)
	return reg
}

func table(t *testing.T, scheme models.Scheme) ratetable.Table {
	t.Helper()
	tbl, err := tables(t).Resolve(scheme, time.Now())
	require.NoError(t, err)
	return tbl
}

func chainOf(ids ...string) models.ReferralChain {
	links := make([]models.ChainLink, len(ids))
	for i, id := range ids {
		role := models.RoleUpline
		if i == 0 {
			role = models.RoleSeller
		}
		links[i] = models.ChainLink{Level: i, BeneficiaryID: id, Role: role}
	}
	return models.ReferralChain{Links: links}
}

func sale(amount money.Cents, tier string) models.Sale {
	return models.Sale{SaleID: "s-1", SaleAmount: amount, Tier: tier, CommissionScheme: models.SchemeNetwork}
}

func TestNetworkSplits(t *testing.T) {
	calc := NewCalculator()
	network := table(t, models.SchemeNetwork)

	tests := []struct {
		name  string
		chain models.ReferralChain
		want  map[string]money.Cents
		rates map[string]money.Rate
	}{
		{
			name:  "direct seller takes everything",
			chain: chainOf("A"),
			want:  map[string]money.Cents{"A": 60000},
			rates: map[string]money.Rate{"A": money.Percent(6)},
		},
		{
			name:  "two levels pay 4 and 2 percent",
			chain: chainOf("A", "B"),
			want:  map[string]money.Cents{"A": 40000, "B": 20000},
			rates: map[string]money.Rate{"A": money.Percent(4), "B": money.Percent(2)},
		},
		{
			name:  "three levels pay 3, 2 and 1 percent",
			chain: chainOf("A", "B", "C"),
			want:  map[string]money.Cents{"A": 30000, "B": 20000, "C": 10000},
			rates: map[string]money.Rate{"A": money.Percent(3), "B": money.Percent(2), "C": money.Percent(1)},
		},
		{
			name:  "no seller pays the house",
			chain: chainOf(),
			want:  map[string]money.Cents{"house": 60000},
			rates: map[string]money.Rate{"house": money.Percent(6)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Compute(sale(1000000, "gold"), tt.chain, network)
			require.NoError(t, err)
			assert.Equal(t, money.Cents(60000), got.Total)
			assert.Equal(t, "network-2024-01", got.RateTableVersion)
			assert.Equal(t, 45, got.HoldDays)
			require.Len(t, got.Lines, len(tt.want))
			for _, line := range got.Lines {
				assert.Equal(t, tt.want[line.BeneficiaryID], line.Amount, line.BeneficiaryID)
				assert.True(t, tt.rates[line.BeneficiaryID].Equal(line.Rate), "%s rate %s", line.BeneficiaryID, line.Rate.PercentString())
			}
		})
	}
}

func TestDirectSchemeIgnoresUplines(t *testing.T) {
	got, err := NewCalculator().Compute(sale(1000000, "diamond"), chainOf("A", "B", "C"), table(t, models.SchemeDirect))
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "A", got.Lines[0].BeneficiaryID)
	assert.Equal(t, money.Cents(150000), got.Lines[0].Amount)
}

func TestShortChainFoldsRemainderIntoDirectSeller(t *testing.T) {
	tbl := table(t, models.SchemeNetwork)
	tbl.Splits = map[int][]money.Rate{3: {money.NewRate(1, 2), money.NewRate(1, 3), money.NewRate(1, 6)}}

	got, err := NewCalculator().Compute(sale(1000000, "gold"), chainOf("A", "B"), tbl)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, money.Cents(40000), got.Lines[0].Amount)
	assert.Equal(t, money.Cents(20000), got.Lines[1].Amount)
}

func TestRoundingRemainderGoesToDirectSeller(t *testing.T) {
	// 6% of 0.99 is 0.0594: total rounds to 6 cents, the uplines floor to 1 and 0.
	got, err := NewCalculator().Compute(sale(99, "gold"), chainOf("A", "B", "C"), table(t, models.SchemeNetwork))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(6), got.Total)
	assert.Equal(t, money.Cents(5), got.Lines[0].Amount)
	assert.Equal(t, money.Cents(1), got.Lines[1].Amount)
	assert.Equal(t, money.Cents(0), got.Lines[2].Amount)
}

func TestComputeRejectsBadInput(t *testing.T) {
	calc := NewCalculator()
	network := table(t, models.SchemeNetwork)

	_, err := calc.Compute(sale(0, "gold"), chainOf("A"), network)
	assert.True(t, apperrors.IsInputError(err))

	_, err = calc.Compute(sale(-5, "gold"), chainOf("A"), network)
	assert.True(t, apperrors.IsInputError(err))

	_, err = calc.Compute(sale(100, "obsidian"), chainOf("A"), network)
	var tierErr *apperrors.UnknownTierError
	assert.ErrorAs(t, err, &tierErr)

	_, err = calc.Compute(sale(100, "gold"), chainOf("A", "B", "C", "D"), network)
	assert.True(t, apperrors.IsInputError(err))
}

func TestConservationProperty(t *testing.T) {
	calc := NewCalculator()
	reg := tables(t)
	rng := rand.New(rand.NewSource(42))
	tiers := []string{"silver", "gold", "platinum", "diamond"}
	schemes := []models.Scheme{models.SchemeNetwork, models.SchemeDirect}

	for i := 0; i < 5000; i++ {
		amount := money.Cents(rng.Int63n(100_000_000) + 1)
		depth := rng.Intn(models.MaxChainDepth + 1)
		ids := make([]string, depth)
		for j := range ids {
			ids[j] = fmt.Sprintf("m%d", j)
		}
		s := sale(amount, tiers[rng.Intn(len(tiers))])
		s.CommissionScheme = schemes[rng.Intn(len(schemes))]
		tbl, err := reg.Resolve(s.CommissionScheme, time.Now())
		require.NoError(t, err)

		got, err := calc.Compute(s, chainOf(ids...), tbl)
		require.NoError(t, err)

		tier, err := tbl.Tier(s.Tier)
		require.NoError(t, err)
		assert.Equal(t, tier.Total.Round(amount), got.Total)

		var sum money.Cents
		rateSum := money.Zero
		for _, line := range got.Lines {
			assert.GreaterOrEqual(t, int64(line.Amount), int64(0))
			sum += line.Amount
			rateSum = rateSum.Add(line.Rate)
		}
		if !assert.Equal(t, got.Total, sum, "amount=%d depth=%d scheme=%s", amount, depth, s.CommissionScheme) {
			return
		}
		assert.True(t, tier.Total.Equal(rateSum))
	}
}
