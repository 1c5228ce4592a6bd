package models

import "time"

const MaxChainDepth = 3

type Role string

const (
	RoleSeller Role = "seller"
	RoleUpline Role = "upline"
	RoleHouse  Role = "house"
)

// Intermediary is a seller or sponsor in the referral network.
type Intermediary struct {
	ID           string    `json:"id" db:"id"`
	SponsorID    string    `json:"sponsor_id,omitempty" db:"sponsor_id"`
	ReferralCode string    `json:"referral_code,omitempty" db:"referral_code"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type ChainLink struct {
	Level         int    `json:"level"`
	BeneficiaryID string `json:"beneficiary_id"`
	Role          Role   `json:"role"`
}

// ReferralChain lists beneficiaries from the direct seller (level 0) upward.
type ReferralChain struct {
	Links []ChainLink `json:"links"`
}

func (c ReferralChain) Len() int {
	return len(c.Links)
}

func (c ReferralChain) BeneficiaryIDs() []string {
	ids := make([]string, len(c.Links))
	for i, l := range c.Links {
		ids[i] = l.BeneficiaryID
	}
	return ids
}
