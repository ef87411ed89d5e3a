package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"github.com/shopspring/decimal"
)

// Outstanding is a snapshot of what a loan still owes per bucket, taken
// under the loan posting lock before allocation.
type Outstanding struct {
	Charges   decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
}

// Allocation is the split of one repayment across the three buckets.
// RemainingAmount is whatever exceeded the total outstanding; it is never
// posted to the ledger.
type Allocation struct {
	ChargesPayment   decimal.Decimal
	InterestPayment  decimal.Decimal
	PrincipalPayment decimal.Decimal
	RemainingAmount  decimal.Decimal
}

// ledger amounts are stored as decimal(20,4)
const amountScale = 4

// Allocate splits a repayment amount across charges, interest and principal.
// Charges are settled first regardless of policy; the chosen policy only
// decides how the remainder is split between interest and principal.
func Allocate(amount decimal.Decimal, outstanding Outstanding, policy models.AllocationPolicy) (Allocation, error) {
	var alloc Allocation
	if amount.LessThanOrEqual(decimal.Zero) {
		return alloc, ErrInvalidAmount
	}
	if !policy.Valid() {
		return alloc, fmt.Errorf("unknown allocation policy %q", policy)
	}

	remaining := amount
	alloc.ChargesPayment = decimal.Min(remaining, outstanding.Charges)
	remaining = remaining.Sub(alloc.ChargesPayment)

	switch policy {
	case models.AllocationInterestFirst:
		alloc.InterestPayment = decimal.Min(remaining, outstanding.Interest)
		remaining = remaining.Sub(alloc.InterestPayment)
		alloc.PrincipalPayment = decimal.Min(remaining, outstanding.Principal)
		remaining = remaining.Sub(alloc.PrincipalPayment)

	case models.AllocationPrincipalFirst:
		alloc.PrincipalPayment = decimal.Min(remaining, outstanding.Principal)
		remaining = remaining.Sub(alloc.PrincipalPayment)
		alloc.InterestPayment = decimal.Min(remaining, outstanding.Interest)
		remaining = remaining.Sub(alloc.InterestPayment)

	case models.AllocationProRata:
		combined := outstanding.Interest.Add(outstanding.Principal)
		if combined.IsPositive() && remaining.IsPositive() {
			applied := decimal.Min(remaining, combined)
			// Interest share is rounded to the ledger scale; principal
			// absorbs the rounding residue so the legs sum exactly.
			alloc.InterestPayment = applied.Mul(outstanding.Interest).
				Div(combined).Round(amountScale)
			alloc.PrincipalPayment = applied.Sub(alloc.InterestPayment)
			remaining = remaining.Sub(applied)
		}
	}

	alloc.RemainingAmount = remaining
	return alloc, nil
}
