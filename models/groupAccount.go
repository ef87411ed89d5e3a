package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"gorm.io/gorm"
)

// Group is a member group (chama) keeping a sub-ledger inside the SACCO's
// books. Its accounts are instantiated once at setup from groupAccountRoles.
type Group struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	GroupNumber string    `gorm:"index;size:64" json:"group_number"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GroupAccount is a per-group instantiation of an account role. AccountCode
// is scoped with the group id so group sub-ledgers never collide with the
// organization chart or with each other.
type GroupAccount struct {
	ID            int              `gorm:"primary_key" json:"id"`
	BusinessId    string           `gorm:"index;not null" json:"business_id"`
	GroupId       int              `gorm:"index;not null" json:"group_id"`
	Role          GroupAccountRole `gorm:"index;size:32;not null" json:"role"`
	AccountName   string           `gorm:"size:255;not null" json:"account_name"`
	AccountCode   string           `gorm:"index;size:64;not null" json:"account_code"`
	AccountNature AccountNature    `gorm:"type:enum('Asset','Liability','Equity','Income','Expense');size:10;not null" json:"account_nature"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewGroup struct {
	Name        string `json:"name" binding:"required"`
	GroupNumber string `json:"group_number"`
}

type groupAccountRoleData struct {
	Role   GroupAccountRole
	Name   string
	Code   string
	Nature AccountNature
}

var groupAccountRoles = []groupAccountRoleData{
	{GroupRoleBank, "Group Bank", "GB", AccountNatureAsset},
	{GroupRoleLoansReceivable, "Group Loans Receivable", "GLR", AccountNatureAsset},
	{GroupRoleInterestReceivable, "Group Interest Receivable", "GIR", AccountNatureAsset},
	{GroupRoleChargesReceivable, "Group Charges Receivable", "GCR", AccountNatureAsset},
	{GroupRoleCapitalPayable, "Group Capital Payable", "GCP", AccountNatureLiability},
}

// CreateGroup registers a group and instantiates its account roles in one
// transaction; posting code may rely on every role existing afterwards.
func CreateGroup(ctx context.Context, input *NewGroup) (*Group, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[Group](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	group := Group{
		BusinessId:  businessId,
		Name:        input.Name,
		GroupNumber: input.GroupNumber,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&group).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, data := range groupAccountRoles {
		ga := GroupAccount{
			BusinessId:    businessId,
			GroupId:       group.ID,
			Role:          data.Role,
			AccountName:   fmt.Sprintf("%s - %s", data.Name, group.Name),
			AccountCode:   fmt.Sprintf("G%d-%s", group.ID, data.Code),
			AccountNature: data.Nature,
		}
		if err := tx.WithContext(ctx).Create(&ga).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func GetGroup(ctx context.Context, id int) (*Group, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Group](ctx, businessId, id)
}

func GetGroups(ctx context.Context) ([]*Group, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Group](ctx, businessId)
}

// GetGroupAccount fetches one role's account for a group on the given tx.
// Returns ErrAccountNotConfigured when the role was never instantiated.
func GetGroupAccount(tx *gorm.DB, businessId string, groupId int, role GroupAccountRole) (*GroupAccount, error) {
	var ga GroupAccount
	err := tx.Where("business_id = ? AND group_id = ? AND role = ?", businessId, groupId, role).
		First(&ga).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group=%d role=%s", ErrAccountNotConfigured, groupId, role)
		}
		return nil, err
	}
	return &ga, nil
}
