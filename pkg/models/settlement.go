package models

// SaleSettlement is everything ProcessSale produced for one sale.
type SaleSettlement struct {
	Sale        Sale               `json:"sale"`
	Chain       ReferralChain      `json:"chain"`
	Commissions []CommissionRecord `json:"commissions"`
	Escrow      EscrowRecord       `json:"escrow"`
	// Released lists the series records released by this sale reaching the unit target.
	Released []EscrowRecord `json:"released,omitempty"`
	Replayed bool           `json:"replayed"`
}

type RefundResult struct {
	SaleID   string             `json:"sale_id"`
	Reversed []CommissionRecord `json:"reversed"`
	Escrow   *EscrowRecord      `json:"escrow,omitempty"`
	// AlreadyRefunded is set when a previous refund already settled everything.
	AlreadyRefunded bool `json:"already_refunded"`
}
