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

// CapitalTransfer records one advance or return between the organization's
// books and a group's books. The four ledger rows it produces carry
// CorrelationId in metadata so the two scopes can be reconciled.
type CapitalTransfer struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	BusinessId    string              `gorm:"index;not null" json:"business_id"`
	GroupId       int                 `gorm:"index;not null" json:"group_id"`
	TransferType  CapitalTransferType `gorm:"type:enum('ADVANCE','RETURN');not null;index" json:"transfer_type"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Purpose       string              `gorm:"size:255" json:"purpose"`
	ApprovedBy    string              `gorm:"size:255" json:"approved_by"`
	CorrelationId string              `gorm:"index;size:64;not null" json:"correlation_id"`
	TransferDate  time.Time           `gorm:"index;not null" json:"transfer_date"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// CapitalTransferSummary aggregates a group's transfer records. Its
// NetOutstanding must reconcile exactly with the derived balance of the
// group's capital-payable account.
type CapitalTransferSummary struct {
	GroupId        int             `json:"group_id"`
	TotalAdvanced  decimal.Decimal `json:"total_advanced"`
	TotalReturned  decimal.Decimal `json:"total_returned"`
	NetOutstanding decimal.Decimal `json:"net_outstanding"`
}

func GetCapitalTransfers(ctx context.Context, groupId int) ([]*CapitalTransfer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*CapitalTransfer
	err := db.WithContext(ctx).
		Where("business_id = ? AND group_id = ?", businessId, groupId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SumCapitalTransfers computes the per-group summary on the given tx.
func SumCapitalTransfers(tx *gorm.DB, businessId string, groupId int) (*CapitalTransferSummary, error) {
	type row struct {
		TransferType CapitalTransferType
		Total        decimal.Decimal
	}
	var rows []row
	err := tx.Model(&CapitalTransfer{}).
		Where("business_id = ? AND group_id = ?", businessId, groupId).
		Select("transfer_type, COALESCE(SUM(amount), 0) AS total").
		Group("transfer_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &CapitalTransferSummary{GroupId: groupId, TotalAdvanced: decimal.Zero, TotalReturned: decimal.Zero}
	for _, r := range rows {
		switch r.TransferType {
		case CapitalTransferAdvance:
			summary.TotalAdvanced = r.Total
		case CapitalTransferReturn:
			summary.TotalReturned = r.Total
		}
	}
	summary.NetOutstanding = summary.TotalAdvanced.Sub(summary.TotalReturned)
	return summary, nil
}

func GetCapitalTransferSummary(ctx context.Context, groupId int) (*CapitalTransferSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	return SumCapitalTransfers(db.WithContext(ctx), businessId, groupId)
}
