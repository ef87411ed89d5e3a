package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerFilter restricts a balance computation or listing to a slice of
// the ledger. Zero-valued fields are ignored.
type LedgerFilter struct {
	AccountCode           string
	TransactionType       LedgerTransactionType
	LoanId                int
	MemberId              int
	GroupId               int
	SavingsAccountId      int
	ProductSubscriptionId int
	RepaymentId           int
	FromDate              *time.Time
	ToDate                *time.Time
}

func (f LedgerFilter) apply(dbCtx *gorm.DB) *gorm.DB {
	if f.AccountCode != "" {
		dbCtx = dbCtx.Where("account_code = ?", f.AccountCode)
	}
	if f.TransactionType != "" {
		dbCtx = dbCtx.Where("transaction_type = ?", f.TransactionType)
	}
	if f.LoanId > 0 {
		dbCtx = dbCtx.Where("loan_id = ?", f.LoanId)
	}
	if f.MemberId > 0 {
		dbCtx = dbCtx.Where("member_id = ?", f.MemberId)
	}
	if f.GroupId > 0 {
		dbCtx = dbCtx.Where("group_id = ?", f.GroupId)
	}
	if f.SavingsAccountId > 0 {
		dbCtx = dbCtx.Where("savings_account_id = ?", f.SavingsAccountId)
	}
	if f.ProductSubscriptionId > 0 {
		dbCtx = dbCtx.Where("product_subscription_id = ?", f.ProductSubscriptionId)
	}
	if f.RepaymentId > 0 {
		dbCtx = dbCtx.Where("repayment_id = ?", f.RepaymentId)
	}
	if f.FromDate != nil {
		dbCtx = dbCtx.Where("transaction_date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		dbCtx = dbCtx.Where("transaction_date <= ?", *f.ToDate)
	}
	return dbCtx
}

// SumDebitsCredits aggregates the filtered ledger slice. Read-only and
// side-effect free; safe to call concurrently and arbitrarily often.
func SumDebitsCredits(tx *gorm.DB, businessId string, filter LedgerFilter) (debits, credits decimal.Decimal, err error) {
	type row struct {
		DrCr  DrCr
		Total decimal.Decimal
	}
	var rows []row
	dbCtx := filter.apply(tx.Model(&LedgerTransaction{}).Where("business_id = ?", businessId))
	err = dbCtx.Select("dr_cr, COALESCE(SUM(amount), 0) AS total").
		Group("dr_cr").
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	debits, credits = decimal.Zero, decimal.Zero
	for _, r := range rows {
		switch r.DrCr {
		case Debit:
			debits = r.Total
		case Credit:
			credits = r.Total
		}
	}
	return debits, credits, nil
}

// BalanceFromTotals applies the sign convention for an account nature:
// debit-normal natures (Asset, Expense) balance as debits-credits,
// credit-normal natures (Liability, Equity, Income) as credits-debits.
func BalanceFromTotals(nature AccountNature, debits, credits decimal.Decimal) decimal.Decimal {
	if nature.DebitIncreases() {
		return debits.Sub(credits)
	}
	return credits.Sub(debits)
}

// AccountBalance derives the balance of a resolved account over the
// filtered ledger slice. The raw signed value is returned; callers that
// need "cannot be negative" semantics clamp with ClampZero.
func AccountBalance(tx *gorm.DB, businessId string, account *ResolvedAccount, filter LedgerFilter) (decimal.Decimal, error) {
	filter.AccountCode = account.AccountCode
	debits, credits, err := SumDebitsCredits(tx, businessId, filter)
	if err != nil {
		return decimal.Zero, err
	}
	return BalanceFromTotals(account.AccountNature, debits, credits), nil
}

// ClampZero floors a derived amount at zero, for balances whose business
// meaning cannot go negative (outstanding principal, interest, charges).
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
