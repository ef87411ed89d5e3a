package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
)

type Member struct {
	ID           int       `gorm:"primary_key" json:"id"`
	BusinessId   string    `gorm:"index;not null" json:"business_id"`
	Name         string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	MemberNumber string    `gorm:"index;size:64;not null" json:"member_number" binding:"required"`
	GroupId      int       `gorm:"index" json:"group_id"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMember struct {
	Name         string `json:"name" binding:"required"`
	MemberNumber string `json:"member_number" binding:"required"`
	GroupId      int    `json:"group_id"`
}

func CreateMember(ctx context.Context, input *NewMember) (*Member, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[Member](ctx, businessId, "member_number", input.MemberNumber, 0); err != nil {
		return nil, err
	}
	if input.GroupId > 0 {
		if err := utils.ValidateResourceId[Group](ctx, businessId, input.GroupId); err != nil {
			return nil, errors.New("group not found")
		}
	}

	member := Member{
		BusinessId:   businessId,
		Name:         input.Name,
		MemberNumber: input.MemberNumber,
		GroupId:      input.GroupId,
		IsActive:     utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func GetMember(ctx context.Context, id int) (*Member, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Member](ctx, businessId, id)
}
