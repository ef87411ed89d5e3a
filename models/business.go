package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/google/uuid"
)

// Business is one SACCO tenant. Every ledger row, account and reference
// aggregate is scoped to a business id.
type Business struct {
	ID           uuid.UUID `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name" binding:"required"`
	ContactName  string    `gorm:"size:255" json:"contact_name"`
	Email        string    `gorm:"size:255" json:"email"`
	Phone        string    `gorm:"size:64" json:"phone"`
	CurrencyCode string    `gorm:"size:3;not null;default:'KES'" json:"currency_code"`
	Timezone     string    `gorm:"size:64;not null;default:'Africa/Nairobi'" json:"timezone"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name         string `json:"name" binding:"required"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	CurrencyCode string `json:"currency_code"`
	Timezone     string `json:"timezone"`
}

// CreateBusiness registers a SACCO and seeds its system chart of accounts
// in one transaction, so posting code can rely on every role existing.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if input.Name == "" {
		return nil, errors.New("business name is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	BID := uuid.New()
	currency := input.CurrencyCode
	if currency == "" {
		currency = "KES"
	}
	timezone := input.Timezone
	if timezone == "" {
		timezone = "Africa/Nairobi"
	}

	business := Business{
		ID:           BID,
		Name:         input.Name,
		ContactName:  input.ContactName,
		Email:        input.Email,
		Phone:        input.Phone,
		CurrencyCode: currency,
		Timezone:     timezone,
		IsActive:     utils.NewTrue(),
	}

	if err := tx.WithContext(ctx).Create(&business).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := CreateDefaultAccounts(tx, ctx, BID.String()); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusiness(ctx context.Context) (*Business, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return GetBusinessById(ctx, businessId)
}

func GetBusinessById(ctx context.Context, id string) (*Business, error) {
	db := config.GetDB()
	businessUuid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessUuid).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}
