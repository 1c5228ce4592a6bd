package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNetwork struct {
	members map[string]models.Intermediary
	err     error
}

func (f *fakeNetwork) GetIntermediary(ctx context.Context, id string) (*models.Intermediary, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[id]
	if !ok {
		return nil, apperrors.NewNotFound("intermediary", id)
	}
	return &m, nil
}

func (f *fakeNetwork) GetIntermediaryByCode(ctx context.Context, code string) (*models.Intermediary, error) {
	for _, m := range f.members {
		if m.ReferralCode == code {
			return &m, nil
		}
	}
	return nil, apperrors.NewNotFound("referral code", code)
}

func network(members ...models.Intermediary) *fakeNetwork {
	f := &fakeNetwork{members: map[string]models.Intermediary{}}
	for _, m := range members {
		f.members[m.ID] = m
	}
	return f
}

func member(id, sponsor string) models.Intermediary {
	return models.Intermediary{ID: id, SponsorID: sponsor, ReferralCode: "code-" + id, Active: true}
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestResolve(t *testing.T) {
	inactive := member("X", "")
	inactive.Active = false

	repo := network(
		member("A", "B"),
		member("B", "C"),
		member("C", "D"),
		member("D", ""),
		member("L", ""),
		member("P", "Q"),
		member("Q", "P"),
		member("S", "X"),
		inactive,
		member("O", "ghost"),
	)

	tests := []struct {
		name   string
		seller string
		code   string
		want   []string
	}{
		{"no seller", "", "", []string{}},
		{"lone seller", "L", "", []string{"L"}},
		{"capped at three levels", "A", "", []string{"A", "B", "C"}},
		{"two levels", "C", "", []string{"C", "D"}},
		{"cycle truncated", "P", "", []string{"P", "Q"}},
		{"inactive sponsor stops walk", "S", "", []string{"S"}},
		{"missing sponsor stops walk", "O", "", []string{"O"}},
		{"unregistered seller", "newbie", "", []string{"newbie"}},
		{"referral code", "", "code-B", []string{"B", "C", "D"}},
	}

	r := NewResolver(repo, noopLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := r.Resolve(context.Background(), tt.seller, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chain.BeneficiaryIDs())
			for i, link := range chain.Links {
				assert.Equal(t, i, link.Level)
			}
			if chain.Len() > 0 {
				assert.Equal(t, models.RoleSeller, chain.Links[0].Role)
			}
		})
	}
}

func TestResolveUnknownReferralCode(t *testing.T) {
	r := NewResolver(network(), noopLogger())
	_, err := r.Resolve(context.Background(), "", "nope")
	assert.True(t, apperrors.IsInputError(err))
}

func TestResolveRepositoryFailure(t *testing.T) {
	boom := apperrors.NewPersistenceError("load intermediary", errors.New("connection reset"))
	r := NewResolver(&fakeNetwork{err: boom}, noopLogger())
	_, err := r.Resolve(context.Background(), "A", "")
	assert.True(t, apperrors.IsPersistence(err))
}
