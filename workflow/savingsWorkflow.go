package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SavingsMovement struct {
	SavingsAccountId int             `json:"savings_account_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod    string          `json:"payment_method"`
	ReferenceNumber  string          `json:"reference_number"`
	TransactionDate  time.Time       `json:"transaction_date"`
}

// DepositSavings posts a member deposit: debit bank, credit member savings
// payable, tagged with the savings account id for per-account balances.
func DepositSavings(ctx context.Context, input *SavingsMovement) (*PostedPair, error) {
	return postSavingsMovement(ctx, input, models.TransactionTypeSavingsDeposit)
}

// WithdrawSavings posts a member withdrawal after verifying the derived
// account balance covers it. The check and the posting share one
// transaction under the savings posting lock, so concurrent withdrawals
// cannot overdraw the account.
func WithdrawSavings(ctx context.Context, input *SavingsMovement) (*PostedPair, error) {
	return postSavingsMovement(ctx, input, models.TransactionTypeSavingsWithdrawal)
}

func postSavingsMovement(ctx context.Context, input *SavingsMovement, txType models.LedgerTransactionType) (*PostedPair, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if input.TransactionDate.IsZero() {
		input.TransactionDate = time.Now()
	}

	db := config.GetDB()
	var pair *PostedPair
	err := WithSavingsPostingLock(db.WithContext(ctx), businessId, input.SavingsAccountId, func(tx *gorm.DB) error {
		var account models.SavingsAccount
		err := tx.Where("business_id = ?", businessId).First(&account, input.SavingsAccountId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		if txType == models.TransactionTypeSavingsWithdrawal {
			balance, err := models.GetSavingsBalance(tx, businessId, account.ID)
			if err != nil {
				return err
			}
			if balance.LessThan(input.Amount) {
				return fmt.Errorf("%w: savings balance %s below withdrawal %s",
					ErrInsufficientFunds, balance.String(), input.Amount.String())
			}
		}

		bank, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleBank)
		if err != nil {
			return err
		}
		payable, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleSavingsPayable)
		if err != nil {
			return err
		}

		debit, credit := bank, payable
		description := "Savings deposit"
		if txType == models.TransactionTypeSavingsWithdrawal {
			debit, credit = payable, bank
			description = "Savings withdrawal"
		}

		metadata := models.MetadataMap{}
		if input.PaymentMethod != "" {
			metadata["payment_method"] = input.PaymentMethod
		}

		pair, err = PostPair(tx, businessId, &PairInput{
			DebitAccount:    debit,
			CreditAccount:   credit,
			Amount:          input.Amount,
			TransactionType: txType,
			TransactionDate: input.TransactionDate,
			Description:     description,
			ReferenceNumber: input.ReferenceNumber,
			References: References{
				SavingsAccountId: account.ID,
				MemberId:         account.MemberId,
			},
			Metadata: metadata,
		})
		if err != nil {
			config.LogError(logger, "savingsWorkflow.go", "postSavingsMovement", string(txType), input, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}
