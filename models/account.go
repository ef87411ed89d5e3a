package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"gorm.io/gorm"
)

// Account is one entry in the organization-level chart of accounts.
// System-default accounts carry a SystemRole so posting code can resolve
// them by role instead of hardcoding ids or numbers.
type Account struct {
	ID              int           `gorm:"primary_key" json:"id"`
	BusinessId      string        `gorm:"index;not null" json:"business_id"`
	Name            string        `gorm:"index;size:100;not null" json:"name" binding:"required"`
	AccountNumber   string        `gorm:"index;size:100;not null" json:"account_number" binding:"required"`
	Nature          AccountNature `gorm:"type:enum('Asset','Liability','Equity','Income','Expense');default:'Expense';index;size:10;not null" json:"nature" binding:"required"`
	Description     string        `gorm:"type:text" json:"description"`
	IsActive        *bool         `gorm:"not null;default:true" json:"is_active"`
	IsSystemDefault *bool         `gorm:"not null;default:false" json:"is_system_default"`
	SystemRole      AccountRole   `gorm:"index;size:32" json:"system_role"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name          string        `json:"name" binding:"required"`
	AccountNumber string        `json:"account_number" binding:"required"`
	Nature        AccountNature `json:"nature" binding:"required"`
	Description   string        `json:"description"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewAccount) validate(ctx context.Context, businessId string, id int) error {
	if !input.Nature.Valid() {
		return errors.New("invalid account nature")
	}
	if err := utils.ValidateUnique[Account](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Account](ctx, businessId, "account_number", input.AccountNumber, id); err != nil {
		return err
	}
	return nil
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	account := Account{
		BusinessId:      businessId,
		Name:            input.Name,
		AccountNumber:   input.AccountNumber,
		Nature:          input.Nature,
		Description:     input.Description,
		IsActive:        utils.NewTrue(),
		IsSystemDefault: utils.NewFalse(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccount(ctx context.Context, id int) (*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Account](ctx, businessId, id)
}

func GetAccounts(ctx context.Context, name *string) ([]*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%").Limit(config.SearchLimit)
	}
	var results []*Account
	if err := dbCtx.Order("account_number").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetSystemAccounts returns the role -> account id map for a business,
// cached in redis. The cache is read-through; the chart of accounts is
// effectively static after business setup.
func GetSystemAccounts(businessId string) (map[AccountRole]int, error) {
	var sysAccounts map[AccountRole]int

	exists, err := config.GetRedisObject("SystemAccounts:"+businessId, &sysAccounts)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		var accounts []*Account
		if err := db.Select("id", "system_role").
			Where("business_id = ?", businessId).
			Where("is_system_default = ?", true).
			Find(&accounts).Error; err != nil {
			return nil, err
		}
		sysAccounts = make(map[AccountRole]int)
		for _, acc := range accounts {
			sysAccounts[acc.SystemRole] = acc.ID
		}
		if err := config.SetRedisObject("SystemAccounts:"+businessId, &sysAccounts, 0); err != nil {
			return nil, err
		}
	}
	return sysAccounts, nil
}

type defaultAccountData struct {
	Name          string
	AccountNumber string
	Nature        AccountNature
	SystemRole    AccountRole
}

var defaultChart = []defaultAccountData{
	{"Bank", "1000", AccountNatureAsset, AccountRoleBank},
	{"Loans Receivable", "1100", AccountNatureAsset, AccountRoleLoansReceivable},
	{"Interest Receivable", "1110", AccountNatureAsset, AccountRoleInterestReceivable},
	{"Charges Receivable", "1120", AccountNatureAsset, AccountRoleChargesReceivable},
	{"Capital Advances to Groups", "1200", AccountNatureAsset, AccountRoleCapitalAdvances},
	{"Member Savings", "2000", AccountNatureLiability, AccountRoleSavingsPayable},
	{"Interest Income", "4000", AccountNatureIncome, AccountRoleInterestIncome},
	{"Charges Income", "4100", AccountNatureIncome, AccountRoleChargesIncome},
	{"Subscription Income", "4200", AccountNatureIncome, AccountRoleSubscriptionIncome},
}

// CreateDefaultAccounts seeds the system chart of accounts for a new
// business. Called inside the CreateBusiness transaction. Roles that
// already exist are left untouched, so re-seeding is safe.
func CreateDefaultAccounts(tx *gorm.DB, ctx context.Context, businessId string) error {
	for _, data := range defaultChart {
		var count int64
		err := tx.Model(&Account{}).
			Where("business_id = ? AND system_role = ?", businessId, data.SystemRole).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		account := Account{
			BusinessId:      businessId,
			Name:            data.Name,
			AccountNumber:   data.AccountNumber,
			Nature:          data.Nature,
			IsActive:        utils.NewTrue(),
			IsSystemDefault: utils.NewTrue(),
			SystemRole:      data.SystemRole,
		}
		if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
			return err
		}
	}
	return config.DeleteRedisObject("SystemAccounts:" + businessId)
}
