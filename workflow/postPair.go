package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// References carries the reference ids stamped onto both legs of a pair.
// Zero-valued fields are stored as NULL-equivalent zeros and excluded from
// balance filters.
type References struct {
	LoanId                int
	MemberId              int
	GroupId               int
	SavingsAccountId      int
	ProductSubscriptionId int
	RepaymentId           int
}

// PairInput describes one balanced double-entry pair. DebitAccount and
// CreditAccount must already be resolved for the correct scope.
type PairInput struct {
	DebitAccount    *models.ResolvedAccount
	CreditAccount   *models.ResolvedAccount
	Amount          decimal.Decimal
	TransactionType models.LedgerTransactionType
	TransactionDate time.Time
	Description     string
	ReferenceNumber string
	References      References
	Metadata        models.MetadataMap
}

// PostedPair holds the two rows written for one pair, debit leg first.
type PostedPair struct {
	Debit  *models.LedgerTransaction
	Credit *models.LedgerTransaction
}

func buildLeg(businessId string, account *models.ResolvedAccount, drCr models.DrCr, input *PairInput) *models.LedgerTransaction {
	return &models.LedgerTransaction{
		BusinessId:            businessId,
		AccountName:           account.AccountName,
		AccountCode:           account.AccountCode,
		AccountNature:         account.AccountNature,
		DrCr:                  drCr,
		Amount:                input.Amount,
		TransactionType:       input.TransactionType,
		TransactionDate:       input.TransactionDate,
		LoanId:                input.References.LoanId,
		MemberId:              input.References.MemberId,
		GroupId:               input.References.GroupId,
		SavingsAccountId:      input.References.SavingsAccountId,
		ProductSubscriptionId: input.References.ProductSubscriptionId,
		RepaymentId:           input.References.RepaymentId,
		Description:           input.Description,
		ReferenceNumber:       input.ReferenceNumber,
		Metadata:              input.Metadata,
	}
}

// PostPair writes one balanced debit/credit pair inside the caller's
// transaction. It is the only path that inserts ledger rows, so every
// business event leaves exactly two rows of equal amount.
func PostPair(tx *gorm.DB, businessId string, input *PairInput) (*PostedPair, error) {
	if input.DebitAccount == nil || input.CreditAccount == nil {
		return nil, fmt.Errorf("post pair: %w", models.ErrAccountNotConfigured)
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if input.TransactionDate.IsZero() {
		input.TransactionDate = time.Now()
	}

	debit := buildLeg(businessId, input.DebitAccount, models.Debit, input)
	credit := buildLeg(businessId, input.CreditAccount, models.Credit, input)

	if err := tx.Create(debit).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(credit).Error; err != nil {
		return nil, err
	}
	return &PostedPair{Debit: debit, Credit: credit}, nil
}
