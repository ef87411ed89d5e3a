package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanProduct maps a loan offering to its posting behavior: which scope
// its receivable accounts live in and how repayments are split by default.
// The same posting code serves every product through this indirection.
type LoanProduct struct {
	ID                   int              `gorm:"primary_key" json:"id"`
	BusinessId           string           `gorm:"index;not null" json:"business_id"`
	Name                 string           `gorm:"index;size:255;not null" json:"name" binding:"required"`
	AllocationPolicy     AllocationPolicy `gorm:"type:enum('interest_first','principal_first','pro_rata');default:'interest_first';size:32;not null" json:"allocation_policy"`
	GroupScoped          *bool            `gorm:"not null;default:false" json:"group_scoped"`
	InterestRate         decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"interest_rate"`
	ProcessingChargeRate decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"processing_charge_rate"`
	IsActive             *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLoanProduct struct {
	Name                 string           `json:"name" binding:"required"`
	AllocationPolicy     AllocationPolicy `json:"allocation_policy"`
	GroupScoped          bool             `json:"group_scoped"`
	InterestRate         decimal.Decimal  `json:"interest_rate"`
	ProcessingChargeRate decimal.Decimal  `json:"processing_charge_rate"`
}

func CreateLoanProduct(ctx context.Context, input *NewLoanProduct) (*LoanProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[LoanProduct](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}
	policy := input.AllocationPolicy
	if policy == "" {
		policy = AllocationInterestFirst
	}
	if !policy.Valid() {
		return nil, errors.New("invalid allocation policy")
	}

	product := LoanProduct{
		BusinessId:           businessId,
		Name:                 input.Name,
		AllocationPolicy:     policy,
		GroupScoped:          &input.GroupScoped,
		InterestRate:         input.InterestRate,
		ProcessingChargeRate: input.ProcessingChargeRate,
		IsActive:             utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Loan is a reference aggregate: its outstanding principal, interest and
// charges are always derived from the ledger, never stored as counters.
type Loan struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	MemberId    int             `gorm:"index;not null" json:"member_id" binding:"required"`
	GroupId     int             `gorm:"index" json:"group_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id" binding:"required"`
	LoanNumber  string          `gorm:"index;size:64" json:"loan_number"`
	Principal   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"principal"`
	Status      LoanStatus      `gorm:"type:enum('PENDING','ACTIVE','CLOSED');default:'PENDING';size:16;not null;index" json:"status"`
	DisbursedAt *time.Time      `json:"disbursed_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLoan struct {
	MemberId   int             `json:"member_id" binding:"required"`
	ProductId  int             `json:"product_id" binding:"required"`
	LoanNumber string          `json:"loan_number"`
	Principal  decimal.Decimal `json:"principal" binding:"required"`
}

func CreateLoan(ctx context.Context, input *NewLoan) (*Loan, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Principal.IsPositive() {
		return nil, errors.New("loan principal must be positive")
	}
	member, err := utils.FetchModel[Member](ctx, businessId, input.MemberId)
	if err != nil {
		return nil, errors.New("member not found")
	}
	if err := utils.ValidateResourceId[LoanProduct](ctx, businessId, input.ProductId); err != nil {
		return nil, errors.New("loan product not found")
	}

	loan := Loan{
		BusinessId: businessId,
		MemberId:   input.MemberId,
		GroupId:    member.GroupId,
		ProductId:  input.ProductId,
		LoanNumber: input.LoanNumber,
		Principal:  input.Principal,
		Status:     LoanStatusPending,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func GetLoan(ctx context.Context, id int) (*Loan, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Loan](ctx, businessId, id)
}

func GetLoanById(tx *gorm.DB, businessId string, id int) (*Loan, error) {
	var loan Loan
	err := tx.Where("business_id = ?", businessId).First(&loan, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &loan, nil
}

// Scope returns the account scope the loan's product posts receivables in.
func (l *Loan) Scope(tx *gorm.DB) (AccountScope, error) {
	var product LoanProduct
	if err := tx.Where("business_id = ?", l.BusinessId).First(&product, l.ProductId).Error; err != nil {
		return AccountScope{}, utils.ErrorRecordNotFound
	}
	if product.GroupScoped != nil && *product.GroupScoped && l.GroupId > 0 {
		return GroupScope(l.GroupId), nil
	}
	return OrganizationScope(), nil
}

// LoanOutstanding is the derived state of a loan, computed from the ledger.
type LoanOutstanding struct {
	Charges   decimal.Decimal `json:"charges"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
}

func (o LoanOutstanding) Total() decimal.Decimal {
	return o.Charges.Add(o.Interest).Add(o.Principal)
}

// GetLoanOutstanding derives the loan's unpaid charges, interest and
// principal by netting each receivable account's debits against credits,
// clamped at zero. Must run on the same tx as any posting that depends on
// the figures.
func GetLoanOutstanding(tx *gorm.DB, loan *Loan) (*LoanOutstanding, error) {
	scope, err := loan.Scope(tx)
	if err != nil {
		return nil, err
	}

	out := &LoanOutstanding{}
	for _, item := range []struct {
		role AccountRole
		dest *decimal.Decimal
	}{
		{AccountRoleChargesReceivable, &out.Charges},
		{AccountRoleInterestReceivable, &out.Interest},
		{AccountRoleLoansReceivable, &out.Principal},
	} {
		account, err := ResolveAccount(tx, loan.BusinessId, scope, item.role)
		if err != nil {
			return nil, err
		}
		balance, err := AccountBalance(tx, loan.BusinessId, account, LedgerFilter{LoanId: loan.ID})
		if err != nil {
			return nil, err
		}
		*item.dest = ClampZero(balance)
	}
	return out, nil
}
