package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"github.com/shopspring/decimal"
)

// tolerance is the absolute drift allowed when comparing sums, for
// auditing ledgers migrated from systems with coarser amount scales.
var tolerance = decimal.Zero

// ledger-verify audits the double-entry invariants of one or all SACCOs:
// per-type debit/credit totals must match, and each group's recorded
// capital transfers must reconcile with its derived capital-payable
// balance. Exits non-zero on any violation.
func main() {
	businessID := flag.String("business-id", "", "Optional: verify only one SACCO (uuid string). If empty, verifies all.")
	toleranceFlag := flag.String("tolerance", "0", "Absolute amount drift to tolerate per comparison, e.g. 0.01.")
	flag.Parse()

	var err error
	tolerance, err = utils.ParseDecimal(*toleranceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -tolerance: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var businesses []models.Business
	query := db.Model(&models.Business{})
	if strings.TrimSpace(*businessID) != "" {
		query = query.Where("id = ?", strings.TrimSpace(*businessID))
	}
	if err := query.Find(&businesses).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
		os.Exit(1)
	}

	violations := 0
	for _, b := range businesses {
		bid := b.ID.String()
		violations += verifyPairBalance(bid)
		violations += verifyCapitalReconciliation(bid)
	}
	if violations > 0 {
		fmt.Fprintf(os.Stderr, "%d violation(s) found\n", violations)
		os.Exit(1)
	}
	fmt.Println("ledger verified: all invariants hold")
}

// verifyPairBalance checks that debits equal credits per transaction type.
// Every posting path writes balanced pairs, so any mismatch means rows
// were written outside the posting workflows.
func verifyPairBalance(businessId string) int {
	db := config.GetDB()
	type row struct {
		TransactionType string
		Debits          decimal.Decimal
		Credits         decimal.Decimal
	}
	var rows []row
	err := db.Model(&models.LedgerTransaction{}).
		Where("business_id = ?", businessId).
		Select(`transaction_type,
			COALESCE(SUM(CASE WHEN dr_cr = 'DEBIT' THEN amount ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN dr_cr = 'CREDIT' THEN amount ELSE 0 END), 0) AS credits`).
		Group("transaction_type").
		Scan(&rows).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "business %s: pair balance query failed: %v\n", businessId, err)
		return 1
	}

	violations := 0
	for _, r := range rows {
		if r.Debits.Sub(r.Credits).Abs().GreaterThan(tolerance) {
			fmt.Fprintf(os.Stderr, "business %s: %s unbalanced: debits=%s credits=%s\n",
				businessId, r.TransactionType, r.Debits.String(), r.Credits.String())
			violations++
		}
	}
	return violations
}

func verifyCapitalReconciliation(businessId string) int {
	db := config.GetDB()
	var groups []models.Group
	if err := db.Where("business_id = ?", businessId).Find(&groups).Error; err != nil {
		fmt.Fprintf(os.Stderr, "business %s: failed to list groups: %v\n", businessId, err)
		return 1
	}

	violations := 0
	for _, g := range groups {
		summary, err := models.SumCapitalTransfers(db, businessId, g.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "business %s group %d: summary failed: %v\n", businessId, g.ID, err)
			violations++
			continue
		}
		payable, err := models.ResolveGroupAccount(db, businessId, g.ID, models.GroupRoleCapitalPayable)
		if err != nil {
			fmt.Fprintf(os.Stderr, "business %s group %d: %v\n", businessId, g.ID, err)
			violations++
			continue
		}
		balance, err := models.AccountBalance(db, businessId, payable, models.LedgerFilter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "business %s group %d: balance failed: %v\n", businessId, g.ID, err)
			violations++
			continue
		}
		if summary.NetOutstanding.Sub(balance).Abs().GreaterThan(tolerance) {
			fmt.Fprintf(os.Stderr, "business %s group %d: capital mismatch: records=%s ledger=%s\n",
				businessId, g.ID, summary.NetOutstanding.String(), balance.String())
			violations++
		}
	}
	return violations
}
