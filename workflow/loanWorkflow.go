package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LoanDisbursement struct {
	LoanId           int       `json:"loan_id" binding:"required"`
	ReferenceNumber  string    `json:"reference_number"`
	DisbursementDate time.Time `json:"disbursement_date"`
}

// DisburseLoan activates a pending loan and posts its principal:
// debit loans receivable, credit bank, in the loan product's scope.
func DisburseLoan(ctx context.Context, input *LoanDisbursement) (*models.Loan, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.DisbursementDate.IsZero() {
		input.DisbursementDate = time.Now()
	}

	db := config.GetDB()
	var loan *models.Loan
	err := WithLoanPostingLock(db.WithContext(ctx), businessId, input.LoanId, func(tx *gorm.DB) error {
		var err error
		loan, err = models.GetLoanById(tx, businessId, input.LoanId)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending {
			return errors.New("loan has already been disbursed")
		}

		scope, err := loan.Scope(tx)
		if err != nil {
			return err
		}
		receivable, err := models.ResolveAccount(tx, businessId, scope, models.AccountRoleLoansReceivable)
		if err != nil {
			return err
		}
		bank, err := models.ResolveAccount(tx, businessId, scope, models.AccountRoleBank)
		if err != nil {
			return err
		}

		_, err = PostPair(tx, businessId, &PairInput{
			DebitAccount:    receivable,
			CreditAccount:   bank,
			Amount:          loan.Principal,
			TransactionType: models.TransactionTypeLoanIssue,
			TransactionDate: input.DisbursementDate,
			Description:     "Loan disbursement",
			ReferenceNumber: input.ReferenceNumber,
			References: References{
				LoanId:   loan.ID,
				MemberId: loan.MemberId,
				GroupId:  loan.GroupId,
			},
		})
		if err != nil {
			config.LogError(logger, "loanWorkflow.go", "DisburseLoan", "PostPair", loan.ID, err)
			return err
		}

		loan.Status = models.LoanStatusActive
		loan.DisbursedAt = &input.DisbursementDate
		return tx.Model(&models.Loan{}).
			Where("business_id = ? AND id = ?", businessId, loan.ID).
			Updates(map[string]interface{}{
				"status":       models.LoanStatusActive,
				"disbursed_at": input.DisbursementDate,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

type LoanCharge struct {
	LoanId      int             `json:"loan_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
	ChargeDate  time.Time       `json:"charge_date"`
}

// AccrueInterest raises the loan's interest receivable against interest
// income. Interest income always sits in the organization books, even for
// group-scoped loans.
func AccrueInterest(ctx context.Context, input *LoanCharge) error {
	return postLoanAccrual(ctx, input,
		models.AccountRoleInterestReceivable,
		models.AccountRoleInterestIncome,
		models.TransactionTypeInterestAccrual,
		"Interest accrual")
}

// AssessCharge raises a fee on the loan: debit charges receivable, credit
// charges income.
func AssessCharge(ctx context.Context, input *LoanCharge) error {
	return postLoanAccrual(ctx, input,
		models.AccountRoleChargesReceivable,
		models.AccountRoleChargesIncome,
		models.TransactionTypeChargesAssessment,
		"Charge assessment")
}

func postLoanAccrual(ctx context.Context, input *LoanCharge, receivableRole, incomeRole models.AccountRole, txType models.LedgerTransactionType, description string) error {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if input.ChargeDate.IsZero() {
		input.ChargeDate = time.Now()
	}
	if input.Description != "" {
		description = input.Description
	}

	db := config.GetDB()
	return WithLoanPostingLock(db.WithContext(ctx), businessId, input.LoanId, func(tx *gorm.DB) error {
		loan, err := models.GetLoanById(tx, businessId, input.LoanId)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return errors.New("loan is not active")
		}

		scope, err := loan.Scope(tx)
		if err != nil {
			return err
		}
		receivable, err := models.ResolveAccount(tx, businessId, scope, receivableRole)
		if err != nil {
			return err
		}
		// Income accounts have no group-scope counterpart.
		income, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), incomeRole)
		if err != nil {
			return err
		}

		_, err = PostPair(tx, businessId, &PairInput{
			DebitAccount:    receivable,
			CreditAccount:   income,
			Amount:          input.Amount,
			TransactionType: txType,
			TransactionDate: input.ChargeDate,
			Description:     description,
			References: References{
				LoanId:   loan.ID,
				MemberId: loan.MemberId,
				GroupId:  loan.GroupId,
			},
		})
		if err != nil {
			config.LogError(logger, "loanWorkflow.go", "postLoanAccrual", string(txType), loan.ID, err)
		}
		return err
	})
}

// GetLoanStatement lists the ledger rows for one loan, oldest first, with
// the derived outstanding snapshot.
type LoanStatement struct {
	Loan         *models.Loan                `json:"loan"`
	Outstanding  *models.LoanOutstanding     `json:"outstanding"`
	Transactions []*models.LedgerTransaction `json:"transactions"`
}

func GetLoanStatement(ctx context.Context, loanId int) (*LoanStatement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var statement LoanStatement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := models.GetLoanById(tx, businessId, loanId)
		if err != nil {
			return err
		}
		outstanding, err := models.GetLoanOutstanding(tx, loan)
		if err != nil {
			return err
		}
		rows, err := models.ListLedgerTransactions(tx, businessId, models.LedgerFilter{LoanId: loanId})
		if err != nil {
			return err
		}
		statement = LoanStatement{Loan: loan, Outstanding: outstanding, Transactions: rows}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &statement, nil
}
