package referral

import (
	"context"

	"github.com/Gobusters/ectologger"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// IntermediaryReader looks up network members. Missing members are reported
// with a NotFoundError.
type IntermediaryReader interface {
	GetIntermediary(ctx context.Context, id string) (*models.Intermediary, error)
	GetIntermediaryByCode(ctx context.Context, code string) (*models.Intermediary, error)
}

// Resolver builds the beneficiary chain for a sale, starting at the direct
// seller and following sponsors upward.
type Resolver struct {
	repo     IntermediaryReader
	logger   ectologger.Logger
	maxDepth int
}

func NewResolver(repo IntermediaryReader, logger ectologger.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger, maxDepth: models.MaxChainDepth}
}

// Resolve returns at most three links. The walk stops at a missing or inactive
// sponsor and at the first repeated member.
func (r *Resolver) Resolve(ctx context.Context, sellerID, referralCode string) (models.ReferralChain, error) {
	ctx, span := tracing.StartSpan(ctx, "referral.Resolver.Resolve")
	defer span.End()

	chain := models.ReferralChain{Links: []models.ChainLink{}}

	start, err := r.start(ctx, sellerID, referralCode)
	if err != nil {
		return chain, err
	}
	if start == nil {
		return chain, nil
	}

	seen := map[string]bool{start.ID: true}
	chain.Links = append(chain.Links, models.ChainLink{Level: 0, BeneficiaryID: start.ID, Role: models.RoleSeller})

	current := start
	for len(chain.Links) < r.maxDepth && current.SponsorID != "" {
		if seen[current.SponsorID] {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"intermediary_id": current.ID,
				"sponsor_id":      current.SponsorID,
			}).Warn("referral cycle detected, truncating chain")
			break
		}

		sponsor, err := r.repo.GetIntermediary(ctx, current.SponsorID)
		if apperrors.IsNotFound(err) {
			break
		}
		if err != nil {
			return chain, err
		}
		if !sponsor.Active {
			break
		}

		seen[sponsor.ID] = true
		chain.Links = append(chain.Links, models.ChainLink{
			Level:         len(chain.Links),
			BeneficiaryID: sponsor.ID,
			Role:          models.RoleUpline,
		})
		current = sponsor
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"seller_id":    start.ID,
		"chain_length": chain.Len(),
	}).Debug("resolved referral chain")

	return chain, nil
}

func (r *Resolver) start(ctx context.Context, sellerID, referralCode string) (*models.Intermediary, error) {
	if sellerID != "" {
		seller, err := r.repo.GetIntermediary(ctx, sellerID)
		if apperrors.IsNotFound(err) {
			// Unregistered sellers still earn their direct share, without uplines.
			return &models.Intermediary{ID: sellerID, Active: true}, nil
		}
		return seller, err
	}
	if referralCode != "" {
		seller, err := r.repo.GetIntermediaryByCode(ctx, referralCode)
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewInvalidInput("referral_code", "referral code %q is not registered", referralCode)
		}
		return seller, err
	}
	return nil, nil
}
