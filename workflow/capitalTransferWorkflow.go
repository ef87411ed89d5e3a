package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewCapitalTransfer struct {
	GroupId         int             `json:"group_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Purpose         string          `json:"purpose"`
	ApprovedBy      string          `json:"approved_by"`
	ReferenceNumber string          `json:"reference_number"`
	TransferDate    time.Time       `json:"transfer_date"`
}

// AdvanceCapital moves funds from the organization's books into a group's
// books: one pair in each scope, four rows total, all committed in one
// transaction and correlated by the transfer's id in metadata.
//
// Organization pair: debit capital advances, credit bank.
// Group pair: debit group bank, credit capital payable.
func AdvanceCapital(ctx context.Context, input *NewCapitalTransfer) (*models.CapitalTransfer, error) {
	return postCapitalTransfer(ctx, input, models.CapitalTransferAdvance)
}

// ReturnCapital moves funds back from a group to the organization with the
// inverse pairs. It fails with ErrInsufficientFunds, before posting
// anything, if the group's derived bank balance cannot cover the amount.
func ReturnCapital(ctx context.Context, input *NewCapitalTransfer) (*models.CapitalTransfer, error) {
	return postCapitalTransfer(ctx, input, models.CapitalTransferReturn)
}

func postCapitalTransfer(ctx context.Context, input *NewCapitalTransfer, transferType models.CapitalTransferType) (*models.CapitalTransfer, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if input.TransferDate.IsZero() {
		input.TransferDate = time.Now()
	}
	if input.ApprovedBy == "" {
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			input.ApprovedBy = userName
		}
	}

	release, err := utils.BusinessLock(ctx, businessId, "capitalTransfer", "capitalTransferWorkflow.go", "postCapitalTransfer")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var transfer *models.CapitalTransfer
	err = WithGroupPostingLock(db.WithContext(ctx), businessId, input.GroupId, func(tx *gorm.DB) error {
		orgBank, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleBank)
		if err != nil {
			return err
		}
		orgAdvances, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleCapitalAdvances)
		if err != nil {
			return err
		}
		groupBank, err := models.ResolveGroupAccount(tx, businessId, input.GroupId, models.GroupRoleBank)
		if err != nil {
			return err
		}
		groupPayable, err := models.ResolveGroupAccount(tx, businessId, input.GroupId, models.GroupRoleCapitalPayable)
		if err != nil {
			return err
		}

		if transferType == models.CapitalTransferReturn {
			balance, err := models.AccountBalance(tx, businessId, groupBank, models.LedgerFilter{})
			if err != nil {
				return err
			}
			if balance.LessThan(input.Amount) {
				return fmt.Errorf("%w: group bank balance %s below return %s",
					ErrInsufficientFunds, balance.String(), input.Amount.String())
			}
		}

		transfer = &models.CapitalTransfer{
			BusinessId:    businessId,
			GroupId:       input.GroupId,
			TransferType:  transferType,
			Amount:        input.Amount,
			Purpose:       input.Purpose,
			ApprovedBy:    input.ApprovedBy,
			CorrelationId: uuid.NewString(),
			TransferDate:  input.TransferDate,
		}
		if err := tx.Create(transfer).Error; err != nil {
			return err
		}

		txType := models.TransactionTypeCapitalAdvance
		description := "Capital advance to group"
		orgPair := PairInput{DebitAccount: orgAdvances, CreditAccount: orgBank}
		groupPair := PairInput{DebitAccount: groupBank, CreditAccount: groupPayable}
		if transferType == models.CapitalTransferReturn {
			txType = models.TransactionTypeCapitalReturn
			description = "Capital return from group"
			orgPair = PairInput{DebitAccount: orgBank, CreditAccount: orgAdvances}
			groupPair = PairInput{DebitAccount: groupPayable, CreditAccount: groupBank}
		}

		metadata := models.MetadataMap{models.MetadataKeyCapitalTransferId: transfer.CorrelationId}
		for _, pair := range []PairInput{orgPair, groupPair} {
			pair.Amount = input.Amount
			pair.TransactionType = txType
			pair.TransactionDate = input.TransferDate
			pair.Description = description
			pair.ReferenceNumber = input.ReferenceNumber
			pair.References = References{GroupId: input.GroupId}
			pair.Metadata = metadata
			if _, err := PostPair(tx, businessId, &pair); err != nil {
				config.LogError(logger, "capitalTransferWorkflow.go", "postCapitalTransfer", string(txType), transfer, err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// CapitalReconciliation pairs the record-level summary with the ledger's
// derived capital-payable balance for one group. The two must match; a
// mismatch means rows were posted outside this workflow.
type CapitalReconciliation struct {
	Summary       *models.CapitalTransferSummary `json:"summary"`
	LedgerBalance decimal.Decimal                `json:"ledger_balance"`
	Reconciled    bool                           `json:"reconciled"`
}

func ReconcileCapital(ctx context.Context, groupId int) (*CapitalReconciliation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var result CapitalReconciliation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		summary, err := models.SumCapitalTransfers(tx, businessId, groupId)
		if err != nil {
			return err
		}
		payable, err := models.ResolveGroupAccount(tx, businessId, groupId, models.GroupRoleCapitalPayable)
		if err != nil {
			return err
		}
		balance, err := models.AccountBalance(tx, businessId, payable, models.LedgerFilter{})
		if err != nil {
			return err
		}
		result = CapitalReconciliation{
			Summary:       summary,
			LedgerBalance: balance,
			Reconciled:    summary.NetOutstanding.Equal(balance),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
