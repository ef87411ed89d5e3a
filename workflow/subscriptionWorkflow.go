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

type SubscriptionPayment struct {
	ProductSubscriptionId int             `json:"product_subscription_id" binding:"required"`
	Amount                decimal.Decimal `json:"amount"`
	PaymentMethod         string          `json:"payment_method"`
	ReferenceNumber       string          `json:"reference_number"`
	PaymentDate           time.Time       `json:"payment_date"`
}

// PaySubscription posts a subscription fee payment: debit bank, credit
// subscription income. A zero amount falls back to the subscription's
// configured fee.
func PaySubscription(ctx context.Context, input *SubscriptionPayment) (*PostedPair, error) {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = time.Now()
	}

	db := config.GetDB()
	var pair *PostedPair
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subscription models.ProductSubscription
		err := tx.Where("business_id = ?", businessId).
			First(&subscription, input.ProductSubscriptionId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		amount := input.Amount
		if amount.IsZero() {
			amount = subscription.FeeAmount
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidAmount
		}

		bank, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleBank)
		if err != nil {
			return err
		}
		income, err := models.ResolveAccount(tx, businessId, models.OrganizationScope(), models.AccountRoleSubscriptionIncome)
		if err != nil {
			return err
		}

		metadata := models.MetadataMap{"product_code": subscription.ProductCode}
		if input.PaymentMethod != "" {
			metadata["payment_method"] = input.PaymentMethod
		}

		pair, err = PostPair(tx, businessId, &PairInput{
			DebitAccount:    bank,
			CreditAccount:   income,
			Amount:          amount,
			TransactionType: models.TransactionTypeSubscriptionPayment,
			TransactionDate: input.PaymentDate,
			Description:     "Subscription payment",
			ReferenceNumber: input.ReferenceNumber,
			References: References{
				ProductSubscriptionId: subscription.ID,
				MemberId:              subscription.MemberId,
			},
			Metadata: metadata,
		})
		if err != nil {
			config.LogError(logger, "subscriptionWorkflow.go", "PaySubscription", "PostPair", input, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}
