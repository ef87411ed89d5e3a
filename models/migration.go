package models

import (
	"log"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Account{}, &Group{}, &GroupAccount{},
		&Member{},
		&LoanProduct{}, &Loan{}, &LoanRepayment{},
		&SavingsProduct{}, &SavingsAccount{},
		&ProductSubscription{},
		&LedgerTransaction{},
		&CapitalTransfer{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
