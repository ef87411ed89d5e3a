package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
)

// ProductSubscription is a member's enrollment in a fee-bearing product
// (share capital, welfare fund, insurance). Payments against it post to
// subscription income and are filterable by subscription id.
type ProductSubscription struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	MemberId    int             `gorm:"index;not null" json:"member_id" binding:"required"`
	ProductCode string          `gorm:"index;size:64;not null" json:"product_code" binding:"required"`
	FeeAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fee_amount"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductSubscription struct {
	MemberId    int             `json:"member_id" binding:"required"`
	ProductCode string          `json:"product_code" binding:"required"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

func CreateProductSubscription(ctx context.Context, input *NewProductSubscription) (*ProductSubscription, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Member](ctx, businessId, input.MemberId); err != nil {
		return nil, errors.New("member not found")
	}

	subscription := ProductSubscription{
		BusinessId:  businessId,
		MemberId:    input.MemberId,
		ProductCode: input.ProductCode,
		FeeAmount:   input.FeeAmount,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&subscription).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

func GetProductSubscription(ctx context.Context, id int) (*ProductSubscription, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ProductSubscription](ctx, businessId, id)
}
