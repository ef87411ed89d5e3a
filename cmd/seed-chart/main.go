package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
)

// seed-chart creates a SACCO with its default chart of accounts, or
// re-seeds missing system accounts for an existing one.
func main() {
	businessID := flag.String("business-id", "", "Optional: re-seed missing system accounts for an existing SACCO (uuid string). If empty, creates a new SACCO.")
	name := flag.String("name", "", "SACCO name (required when creating)")
	currency := flag.String("currency", "KES", "Currency code for a new SACCO")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetUserNameInContext(context.Background(), "SeedChart")

	if strings.TrimSpace(*businessID) != "" {
		bid := strings.TrimSpace(*businessID)
		ctx = utils.SetBusinessIdInContext(ctx, bid)
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			fmt.Fprintf(os.Stderr, "begin: %v\n", tx.Error)
			os.Exit(1)
		}
		if err := models.CreateDefaultAccounts(tx, ctx, bid); err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "seed accounts: %v\n", err)
			os.Exit(1)
		}
		if err := tx.Commit().Error; err != nil {
			fmt.Fprintf(os.Stderr, "commit: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("re-seeded system accounts for business %s\n", bid)
		return
	}

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "-name is required when creating a new SACCO")
		os.Exit(1)
	}
	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:         strings.TrimSpace(*name),
		CurrencyCode: strings.TrimSpace(*currency),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create business: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created business %s (%s) with default chart of accounts\n", business.Name, business.ID)
}
