package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type AccountNature string

const (
	AccountNatureAsset     AccountNature = "Asset"
	AccountNatureLiability AccountNature = "Liability"
	AccountNatureEquity    AccountNature = "Equity"
	AccountNatureIncome    AccountNature = "Income"
	AccountNatureExpense   AccountNature = "Expense"
)

// DebitIncreases reports whether debits increase the balance of an account
// of this nature. Asset and Expense accounts are debit-normal; Liability,
// Equity and Income accounts are credit-normal.
func (n AccountNature) DebitIncreases() bool {
	return n == AccountNatureAsset || n == AccountNatureExpense
}

func (n AccountNature) Valid() bool {
	switch n {
	case AccountNatureAsset, AccountNatureLiability, AccountNatureEquity,
		AccountNatureIncome, AccountNatureExpense:
		return true
	}
	return false
}

type DrCr string

const (
	Debit  DrCr = "DEBIT"
	Credit DrCr = "CREDIT"
)

// AccountRole names a logical organization-level account that posting code
// resolves through the chart of accounts instead of hardcoding account ids.
// Stored on accounts as system_role.
type AccountRole string

const (
	AccountRoleBank               AccountRole = "bank"
	AccountRoleLoansReceivable    AccountRole = "loans_receivable"
	AccountRoleInterestReceivable AccountRole = "interest_receivable"
	AccountRoleChargesReceivable  AccountRole = "charges_receivable"
	AccountRoleInterestIncome     AccountRole = "interest_income"
	AccountRoleChargesIncome      AccountRole = "charges_income"
	AccountRoleSavingsPayable     AccountRole = "savings_payable"
	AccountRoleSubscriptionIncome AccountRole = "subscription_income"
	AccountRoleCapitalAdvances    AccountRole = "capital_advances"
)

// GroupAccountRole names a per-group account instantiated at group setup.
type GroupAccountRole string

const (
	GroupRoleBank               GroupAccountRole = "group_bank"
	GroupRoleLoansReceivable    GroupAccountRole = "group_loans_receivable"
	GroupRoleInterestReceivable GroupAccountRole = "group_interest_receivable"
	GroupRoleChargesReceivable  GroupAccountRole = "group_charges_receivable"
	GroupRoleCapitalPayable     GroupAccountRole = "group_capital_payable"
)

type LedgerTransactionType string

const (
	TransactionTypeLoanIssue           LedgerTransactionType = "loan_issue"
	TransactionTypeInterestAccrual     LedgerTransactionType = "interest_accrual"
	TransactionTypeChargesAssessment   LedgerTransactionType = "charges_assessment"
	TransactionTypePrincipalPayment    LedgerTransactionType = "principal_payment"
	TransactionTypeInterestPayment     LedgerTransactionType = "interest_payment"
	TransactionTypeChargesPayment      LedgerTransactionType = "charges_payment"
	TransactionTypeSavingsDeposit      LedgerTransactionType = "savings_deposit"
	TransactionTypeSavingsWithdrawal   LedgerTransactionType = "savings_withdrawal"
	TransactionTypeSubscriptionPayment LedgerTransactionType = "subscription_payment"
	TransactionTypeCapitalAdvance      LedgerTransactionType = "capital_advance"
	TransactionTypeCapitalReturn       LedgerTransactionType = "capital_return"
)

const ReversalSuffix = "_reversal"

// Reversal returns the transaction type tagging a reversal of t.
func (t LedgerTransactionType) Reversal() LedgerTransactionType {
	return t + ReversalSuffix
}

func (t LedgerTransactionType) IsReversal() bool {
	n := len(t)
	s := len(ReversalSuffix)
	return n > s && string(t[n-s:]) == ReversalSuffix
}

// AllocationPolicy decides how the part of a repayment left after charges
// is split between interest and principal.
type AllocationPolicy string

const (
	AllocationInterestFirst  AllocationPolicy = "interest_first"
	AllocationPrincipalFirst AllocationPolicy = "principal_first"
	AllocationProRata        AllocationPolicy = "pro_rata"
)

func (p AllocationPolicy) Valid() bool {
	switch p {
	case AllocationInterestFirst, AllocationPrincipalFirst, AllocationProRata:
		return true
	}
	return false
}

type CapitalTransferType string

const (
	CapitalTransferAdvance CapitalTransferType = "ADVANCE"
	CapitalTransferReturn  CapitalTransferType = "RETURN"
)

type LoanStatus string

const (
	LoanStatusPending LoanStatus = "PENDING"
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusClosed  LoanStatus = "CLOSED"
)

// MetadataMap is the free-form key/value metadata stored on ledger rows
// (payment method, notes, correlation ids). Persisted as JSON text.
type MetadataMap map[string]string

func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *MetadataMap) Scan(value interface{}) error {
	if value == nil {
		*m = MetadataMap{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", value)
	}
	if len(b) == 0 {
		*m = MetadataMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

var ErrAccountNotConfigured = errors.New("account not configured for requested role")
