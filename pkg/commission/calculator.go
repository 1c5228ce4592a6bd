package commission

import (
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/money"
	"github.com/Ramsey-B/fern/pkg/ratetable"
)

// Calculator splits a sale's commission across its referral chain. It is pure:
// the same sale, chain and table always produce the same lines.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute returns one line per paid beneficiary. The tier total is rounded to
// the cent once; every line but the most direct is floored and level 0 takes
// whatever is left, so the lines always sum to the total.
func (c *Calculator) Compute(sale models.Sale, chain models.ReferralChain, table ratetable.Table) (models.CommissionBreakdown, error) {
	if sale.SaleAmount <= 0 {
		return models.CommissionBreakdown{}, apperrors.NewInvalidInput("sale_amount", "must be greater than zero")
	}
	if chain.Len() > models.MaxChainDepth {
		return models.CommissionBreakdown{}, apperrors.NewInvalidInput("chain", "has %d links, at most %d allowed", chain.Len(), models.MaxChainDepth)
	}

	tier, err := table.Tier(sale.Tier)
	if err != nil {
		return models.CommissionBreakdown{}, err
	}

	breakdown := models.CommissionBreakdown{
		Scheme:           table.Scheme,
		Tier:             sale.Tier,
		RateTableVersion: table.Version,
		TotalRate:        tier.Total,
		Total:            tier.Total.Round(sale.SaleAmount),
		HoldDays:         table.HoldDaysFor(tier),
	}

	links := chain.Links
	if len(links) == 0 {
		links = []models.ChainLink{{Level: 0, BeneficiaryID: table.HouseBeneficiaryID, Role: models.RoleHouse}}
	}

	split := table.SplitFor(len(links))
	n := len(split)
	if len(links) < n {
		n = len(links)
	}

	lines := make([]models.CommissionLine, n)
	distributedRate := money.Zero
	var distributed money.Cents
	for i := n - 1; i >= 1; i-- {
		rate := tier.Total.Mul(split[i])
		amount := rate.Floor(sale.SaleAmount)
		lines[i] = models.CommissionLine{
			BeneficiaryID: links[i].BeneficiaryID,
			Level:         links[i].Level,
			Role:          links[i].Role,
			Rate:          rate,
			Amount:        amount,
		}
		distributedRate = distributedRate.Add(rate)
		distributed += amount
	}

	lines[0] = models.CommissionLine{
		BeneficiaryID: links[0].BeneficiaryID,
		Level:         links[0].Level,
		Role:          links[0].Role,
		Rate:          tier.Total.Sub(distributedRate),
		Amount:        breakdown.Total - distributed,
	}

	breakdown.Lines = lines
	return breakdown, nil
}
