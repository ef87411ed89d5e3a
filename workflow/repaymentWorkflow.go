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

type NewLoanRepayment struct {
	LoanId          int                      `json:"loan_id" binding:"required"`
	Amount          decimal.Decimal          `json:"amount" binding:"required"`
	Policy          *models.AllocationPolicy `json:"policy"`
	PaymentMethod   string                   `json:"payment_method"`
	ReferenceNumber string                   `json:"reference_number"`
	Notes           string                   `json:"notes"`
	PaymentDate     time.Time                `json:"payment_date"`
}

// AllocateRepayment applies one repayment to a loan: it snapshots the
// loan's outstanding charges, interest and principal under the loan
// posting lock, splits the amount by the allocation policy, and posts one
// balanced pair per non-zero bucket. Any excess over the total outstanding
// is recorded on the repayment as RemainingAmount and never posted.
func AllocateRepayment(ctx context.Context, input *NewLoanRepayment) (*models.LoanRepayment, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = time.Now()
	}

	release, err := utils.BusinessLock(ctx, businessId, "loanRepayment", "repaymentWorkflow.go", "AllocateRepayment")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var repayment *models.LoanRepayment
	err = WithLoanPostingLock(db.WithContext(ctx), businessId, input.LoanId, func(tx *gorm.DB) error {
		loan, err := models.GetLoanById(tx, businessId, input.LoanId)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			return errors.New("loan is not active")
		}

		policy, err := resolvePolicy(tx, loan, input.Policy)
		if err != nil {
			return err
		}

		outstanding, err := models.GetLoanOutstanding(tx, loan)
		if err != nil {
			config.LogError(logger, "repaymentWorkflow.go", "AllocateRepayment", "GetLoanOutstanding", loan.ID, err)
			return err
		}

		alloc, err := Allocate(input.Amount, Outstanding{
			Charges:   outstanding.Charges,
			Interest:  outstanding.Interest,
			Principal: outstanding.Principal,
		}, policy)
		if err != nil {
			return err
		}

		repayment = &models.LoanRepayment{
			BusinessId:      businessId,
			LoanId:          loan.ID,
			MemberId:        loan.MemberId,
			Amount:          input.Amount,
			ChargesPaid:     alloc.ChargesPayment,
			InterestPaid:    alloc.InterestPayment,
			PrincipalPaid:   alloc.PrincipalPayment,
			RemainingAmount: alloc.RemainingAmount,
			Policy:          policy,
			PaymentMethod:   input.PaymentMethod,
			ReferenceNumber: input.ReferenceNumber,
			Notes:           input.Notes,
			PaymentDate:     input.PaymentDate,
		}
		if err := tx.Create(repayment).Error; err != nil {
			return err
		}

		if err := postRepaymentPairs(tx, businessId, loan, repayment, alloc, input); err != nil {
			config.LogError(logger, "repaymentWorkflow.go", "AllocateRepayment", "postRepaymentPairs", repayment, err)
			return err
		}

		return closeLoanIfSettled(tx, loan)
	})
	if err != nil {
		return nil, err
	}
	return repayment, nil
}

func resolvePolicy(tx *gorm.DB, loan *models.Loan, override *models.AllocationPolicy) (models.AllocationPolicy, error) {
	if override != nil {
		if !override.Valid() {
			return "", errors.New("invalid allocation policy")
		}
		return *override, nil
	}
	var product models.LoanProduct
	if err := tx.Where("business_id = ?", loan.BusinessId).First(&product, loan.ProductId).Error; err != nil {
		return "", utils.ErrorRecordNotFound
	}
	return product.AllocationPolicy, nil
}

// postRepaymentPairs writes up to three pairs, all debiting the bank
// account in the loan's scope. Zero buckets post nothing.
func postRepaymentPairs(tx *gorm.DB, businessId string, loan *models.Loan, repayment *models.LoanRepayment, alloc Allocation, input *NewLoanRepayment) error {
	scope, err := loan.Scope(tx)
	if err != nil {
		return err
	}
	bank, err := models.ResolveAccount(tx, businessId, scope, models.AccountRoleBank)
	if err != nil {
		return err
	}

	refs := References{
		LoanId:      loan.ID,
		MemberId:    loan.MemberId,
		GroupId:     loan.GroupId,
		RepaymentId: repayment.ID,
	}
	metadata := models.MetadataMap{}
	if input.PaymentMethod != "" {
		metadata["payment_method"] = input.PaymentMethod
	}

	for _, leg := range []struct {
		amount decimal.Decimal
		role   models.AccountRole
		txType models.LedgerTransactionType
	}{
		{alloc.ChargesPayment, models.AccountRoleChargesReceivable, models.TransactionTypeChargesPayment},
		{alloc.InterestPayment, models.AccountRoleInterestReceivable, models.TransactionTypeInterestPayment},
		{alloc.PrincipalPayment, models.AccountRoleLoansReceivable, models.TransactionTypePrincipalPayment},
	} {
		if !leg.amount.IsPositive() {
			continue
		}
		receivable, err := models.ResolveAccount(tx, businessId, scope, leg.role)
		if err != nil {
			return err
		}
		_, err = PostPair(tx, businessId, &PairInput{
			DebitAccount:    bank,
			CreditAccount:   receivable,
			Amount:          leg.amount,
			TransactionType: leg.txType,
			TransactionDate: input.PaymentDate,
			Description:     "Loan repayment",
			ReferenceNumber: input.ReferenceNumber,
			References:      refs,
			Metadata:        metadata,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// closeLoanIfSettled marks the loan CLOSED once the ledger shows nothing
// outstanding. Status is reference data, so updating it is allowed.
func closeLoanIfSettled(tx *gorm.DB, loan *models.Loan) error {
	outstanding, err := models.GetLoanOutstanding(tx, loan)
	if err != nil {
		return err
	}
	if !outstanding.Total().IsZero() {
		return nil
	}
	return tx.Model(&models.Loan{}).
		Where("business_id = ? AND id = ?", loan.BusinessId, loan.ID).
		Update("status", models.LoanStatusClosed).Error
}
