package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"gorm.io/gorm"
)

// Reversals never delete or edit ledger rows. A reversal is a new row with
// the opposite dr_cr, the same account and amount, a <type>_reversal
// transaction type, and a metadata link back to the original.

func oppositeDrCr(d models.DrCr) models.DrCr {
	if d == models.Debit {
		return models.Credit
	}
	return models.Debit
}

func buildReversalRow(original *models.LedgerTransaction, reason string, reversalDate time.Time) *models.LedgerTransaction {
	metadata := models.MetadataMap{
		models.MetadataKeyReverses: strconv.Itoa(original.ID),
	}
	if reason != "" {
		metadata["reversal_reason"] = reason
	}
	if id, ok := original.Metadata[models.MetadataKeyCapitalTransferId]; ok {
		metadata[models.MetadataKeyCapitalTransferId] = id
	}
	return &models.LedgerTransaction{
		BusinessId:            original.BusinessId,
		AccountName:           original.AccountName,
		AccountCode:           original.AccountCode,
		AccountNature:         original.AccountNature,
		DrCr:                  oppositeDrCr(original.DrCr),
		Amount:                original.Amount,
		TransactionType:       original.TransactionType.Reversal(),
		TransactionDate:       reversalDate,
		LoanId:                original.LoanId,
		MemberId:              original.MemberId,
		GroupId:               original.GroupId,
		SavingsAccountId:      original.SavingsAccountId,
		ProductSubscriptionId: original.ProductSubscriptionId,
		RepaymentId:           original.RepaymentId,
		Description:           "Reversal: " + original.Description,
		ReferenceNumber:       original.ReferenceNumber,
		Metadata:              metadata,
	}
}

func reversalExists(tx *gorm.DB, businessId string, originalId int) (bool, error) {
	var count int64
	err := tx.Model(&models.LedgerTransaction{}).
		Where("business_id = ? AND metadata LIKE ?", businessId,
			fmt.Sprintf(`%%"%s":"%d"%%`, models.MetadataKeyReverses, originalId)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func reverseRow(tx *gorm.DB, businessId string, transactionId int, reason string, reversalDate time.Time) (*models.LedgerTransaction, error) {
	var original models.LedgerTransaction
	err := tx.Where("business_id = ?", businessId).First(&original, transactionId).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if original.TransactionType.IsReversal() {
		return nil, errors.New("cannot reverse a reversal row")
	}
	exists, err := reversalExists(tx, businessId, original.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.New("transaction has already been reversed")
	}

	row := buildReversalRow(&original, reason, reversalDate)
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ReverseTransaction reverses a single ledger row. Balances derived from
// the affected account return to their prior value; reversing only one leg
// of a pair is visible in per-type sums, so full corrections use
// ReversePair.
func ReverseTransaction(ctx context.Context, transactionId int, reason string) (*models.LedgerTransaction, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var row *models.LedgerTransaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = reverseRow(tx, businessId, transactionId, reason, time.Now())
		if err != nil {
			config.LogError(logger, "reversalWorkflow.go", "ReverseTransaction", "reverseRow", transactionId, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// sameEvent reports whether two rows carry the reference fields one
// posted pair shares. Equal amount and type alone would also match two
// unrelated events of the same shape.
func sameEvent(a, b *models.LedgerTransaction) bool {
	return a.LoanId == b.LoanId &&
		a.MemberId == b.MemberId &&
		a.GroupId == b.GroupId &&
		a.SavingsAccountId == b.SavingsAccountId &&
		a.ProductSubscriptionId == b.ProductSubscriptionId &&
		a.RepaymentId == b.RepaymentId &&
		a.TransactionDate.Equal(b.TransactionDate)
}

// ReversePair reverses both legs of one posted pair atomically. The two
// ids must belong to the same event: equal amount and type, opposite
// dr_cr, matching references.
func ReversePair(ctx context.Context, debitId, creditId int, reason string) (*PostedPair, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if debitId == creditId {
		return nil, errors.New("pair legs must be distinct rows")
	}

	db := config.GetDB()
	var pair PostedPair
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var first, second models.LedgerTransaction
		if err := tx.Where("business_id = ?", businessId).First(&first, debitId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if err := tx.Where("business_id = ?", businessId).First(&second, creditId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if !first.Amount.Equal(second.Amount) ||
			first.TransactionType != second.TransactionType ||
			first.DrCr == second.DrCr ||
			!sameEvent(&first, &second) {
			return errors.New("rows do not form a balanced pair")
		}

		reversalDate := time.Now()
		for _, leg := range []int{debitId, creditId} {
			row, err := reverseRow(tx, businessId, leg, reason, reversalDate)
			if err != nil {
				config.LogError(logger, "reversalWorkflow.go", "ReversePair", "reverseRow", leg, err)
				return err
			}
			// The reversal of the debit leg is a credit row and vice
			// versa.
			if row.DrCr == models.Debit {
				pair.Debit = row
			} else {
				pair.Credit = row
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
