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

type SavingsProduct struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSavingsProduct struct {
	Name string `json:"name" binding:"required"`
}

func CreateSavingsProduct(ctx context.Context, input *NewSavingsProduct) (*SavingsProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[SavingsProduct](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	product := SavingsProduct{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// SavingsAccount holds a member's savings. Its balance is the derived
// sub-balance of the savings-payable liability filtered by account id.
type SavingsAccount struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	MemberId      int       `gorm:"index;not null" json:"member_id" binding:"required"`
	ProductId     int       `gorm:"index;not null" json:"product_id" binding:"required"`
	AccountNumber string    `gorm:"index;size:64" json:"account_number"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSavingsAccount struct {
	MemberId      int    `json:"member_id" binding:"required"`
	ProductId     int    `json:"product_id" binding:"required"`
	AccountNumber string `json:"account_number"`
}

func CreateSavingsAccount(ctx context.Context, input *NewSavingsAccount) (*SavingsAccount, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Member](ctx, businessId, input.MemberId); err != nil {
		return nil, errors.New("member not found")
	}
	if err := utils.ValidateResourceId[SavingsProduct](ctx, businessId, input.ProductId); err != nil {
		return nil, errors.New("savings product not found")
	}

	account := SavingsAccount{
		BusinessId:    businessId,
		MemberId:      input.MemberId,
		ProductId:     input.ProductId,
		AccountNumber: input.AccountNumber,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetSavingsAccount(ctx context.Context, id int) (*SavingsAccount, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[SavingsAccount](ctx, businessId, id)
}

// GetSavingsBalance derives the member-facing balance of one savings
// account on the given tx.
func GetSavingsBalance(tx *gorm.DB, businessId string, savingsAccountId int) (decimal.Decimal, error) {
	account, err := ResolveAccount(tx, businessId, OrganizationScope(), AccountRoleSavingsPayable)
	if err != nil {
		return decimal.Zero, err
	}
	return AccountBalance(tx, businessId, account, LedgerFilter{SavingsAccountId: savingsAccountId})
}
