package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
)

// LoanRepayment records one repayment and how the allocation engine split
// it. RemainingAmount is non-zero only when the payment exceeded the
// loan's total outstanding; disposition of that excess is the caller's
// decision, the ledger never absorbs it silently.
type LoanRepayment struct {
	ID              int              `gorm:"primary_key" json:"id"`
	BusinessId      string           `gorm:"index;not null" json:"business_id"`
	LoanId          int              `gorm:"index;not null" json:"loan_id"`
	MemberId        int              `gorm:"index;not null" json:"member_id"`
	Amount          decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	ChargesPaid     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"charges_paid"`
	InterestPaid    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"interest_paid"`
	PrincipalPaid   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"principal_paid"`
	RemainingAmount decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"remaining_amount"`
	Policy          AllocationPolicy `gorm:"size:32;not null" json:"policy"`
	PaymentMethod   string           `gorm:"size:64" json:"payment_method"`
	ReferenceNumber string           `gorm:"size:255" json:"reference_number"`
	Notes           string           `gorm:"type:text" json:"notes"`
	PaymentDate     time.Time        `gorm:"index;not null" json:"payment_date"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func GetLoanRepayment(ctx context.Context, id int) (*LoanRepayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[LoanRepayment](ctx, businessId, id)
}

func GetLoanRepayments(ctx context.Context, loanId int) ([]*LoanRepayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*LoanRepayment
	err := db.WithContext(ctx).
		Where("business_id = ? AND loan_id = ?", businessId, loanId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
