package domain

import "sort"

// FundingSource identifies where money for one allocation comes from.
type FundingSource string

const (
	FundingSourceWallet FundingSource = "INTERNAL_WALLET"
	FundingSourceRailA  FundingSource = "EXTERNAL_RAIL_A"
	FundingSourceRailB  FundingSource = "EXTERNAL_RAIL_B"
	FundingSourceRailC  FundingSource = "EXTERNAL_RAIL_C"
)

// KnownFundingSource reports whether s is one of the recognized source types.
func KnownFundingSource(s FundingSource) bool {
	switch s {
	case FundingSourceWallet, FundingSourceRailA, FundingSourceRailB, FundingSourceRailC:
		return true
	}
	return false
}

// ExternalRails lists the rails in no particular order; dispatch order comes
// from allocation priority.
var ExternalRails = []FundingSource{FundingSourceRailA, FundingSourceRailB, FundingSourceRailC}

// FundingAllocation is one element of a funding plan. Priority ascending means
// first-consumed.
type FundingAllocation struct {
	SourceType FundingSource `json:"source_type"`
	SourceID   string        `json:"source_id"`
	Amount     int64         `json:"amount"` // In currency minor units
	Priority   int           `json:"priority"`
}

// FundingPlan is the ordered list of allocations covering an intent's amount due.
type FundingPlan []FundingAllocation

// Total returns the sum of all allocation amounts in minor units.
func (p FundingPlan) Total() int64 {
	var sum int64
	for _, a := range p {
		sum += a.Amount
	}
	return sum
}

// SortByPriority orders the plan ascending by priority, in place.
func (p FundingPlan) SortByPriority() {
	sort.SliceStable(p, func(i, j int) bool { return p[i].Priority < p[j].Priority })
}

// WalletLegs returns the allocations funded from the internal wallet.
func (p FundingPlan) WalletLegs() FundingPlan {
	var out FundingPlan
	for _, a := range p {
		if a.SourceType == FundingSourceWallet {
			out = append(out, a)
		}
	}
	return out
}

// ExternalLegs returns the allocations funded from external rails, in plan order.
func (p FundingPlan) ExternalLegs() FundingPlan {
	var out FundingPlan
	for _, a := range p {
		if a.SourceType != FundingSourceWallet {
			out = append(out, a)
		}
	}
	return out
}
