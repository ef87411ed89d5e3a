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

// LedgerTransaction is one leg of a double-entry pair. Rows are append-only:
// every business event writes exactly two rows with equal amount and
// opposite dr_cr inside one transaction, and corrections are new reversal
// rows, never edits.
type LedgerTransaction struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null;index:idx_lt_biz_code_date,priority:1;index:idx_lt_biz_type,priority:1" json:"business_id"`

	// Account identity, denormalized at post time.
	AccountName   string        `gorm:"size:255;not null" json:"account_name"`
	AccountCode   string        `gorm:"index;size:64;not null;index:idx_lt_biz_code_date,priority:2" json:"account_code"`
	AccountNature AccountNature `gorm:"size:10;not null" json:"account_nature"`

	DrCr            DrCr                  `gorm:"type:enum('DEBIT','CREDIT');not null" json:"dr_cr"`
	Amount          decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType LedgerTransactionType `gorm:"index;size:64;not null;index:idx_lt_biz_type,priority:2" json:"transaction_type"`
	TransactionDate time.Time             `gorm:"index;not null;index:idx_lt_biz_code_date,priority:3" json:"transaction_date"`

	// Business references used for sub-balance filtering. Zero means unset.
	LoanId                int `gorm:"index" json:"loan_id"`
	MemberId              int `gorm:"index" json:"member_id"`
	GroupId               int `gorm:"index" json:"group_id"`
	SavingsAccountId      int `gorm:"index" json:"savings_account_id"`
	ProductSubscriptionId int `gorm:"index" json:"product_subscription_id"`
	RepaymentId           int `gorm:"index" json:"repayment_id"`

	Description     string      `gorm:"size:255" json:"description"`
	ReferenceNumber string      `gorm:"size:255" json:"reference_number"`
	Metadata        MetadataMap `gorm:"type:text" json:"metadata"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// MetadataKeyReverses links a reversal row back to the row it cancels.
const MetadataKeyReverses = "reverses_transaction_id"

// MetadataKeyCapitalTransferId correlates the four rows of a capital
// transfer across the two account scopes.
const MetadataKeyCapitalTransferId = "capital_transfer_id"

// Ledger immutability guardrails: rows are append-only.

func (t *LedgerTransaction) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_transactions cannot be updated")
}

func (t *LedgerTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_transactions cannot be deleted")
}

func (t *LedgerTransaction) BeforeCreate(tx *gorm.DB) error {
	if !t.Amount.IsPositive() {
		return errors.New("ledger amount must be positive")
	}
	if t.DrCr != Debit && t.DrCr != Credit {
		return errors.New("ledger dr_cr must be DEBIT or CREDIT")
	}
	return nil
}

func GetLedgerTransaction(ctx context.Context, id int) (*LedgerTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[LedgerTransaction](ctx, businessId, id)
}

// GetLedgerTransactions lists ledger rows matching the filter, oldest
// first. Used for loan statements and account histories.
func GetLedgerTransactions(ctx context.Context, filter LedgerFilter) ([]*LedgerTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	return ListLedgerTransactions(db.WithContext(ctx), businessId, filter)
}

// ListLedgerTransactions is the tx-scoped variant used inside posting
// transactions.
func ListLedgerTransactions(tx *gorm.DB, businessId string, filter LedgerFilter) ([]*LedgerTransaction, error) {
	dbCtx := filter.apply(tx.Where("business_id = ?", businessId))
	var results []*LedgerTransaction
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
